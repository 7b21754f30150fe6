// Command genmock generates a synthetic sample fixture for offline
// calibration runs (SAMPLE_SOURCE=file). Speeds follow a per-road dry speed
// minus a linear rainfall penalty, a rush-hour dip and Gaussian noise, so the
// fitted models are predictable enough to eyeball.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/samples.json -roads "OXFORD STREET,M25,A40"
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/couchcryptid/road-rainfall-speed/internal/adapter/samplefile"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the sample fixture")
	roadList := flag.String("roads", "OXFORD STREET,M25,A40", "comma-separated road identifiers")
	perNature := flag.Int("samples", 200, "training samples per (road, nature)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" || *perNature <= 0 {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	var fixture samplefile.Fixture
	for _, part := range strings.Split(*roadList, ",") {
		road := domain.NormalizeRoad(part)
		if road == "" {
			continue
		}
		fixture.Roads = append(fixture.Roads, domain.RoadFilter{Column: roadColumn(road), Value: road})

		dry := 20 + rng.Float64()*40
		for _, nature := range domain.DefaultNatures() {
			fixture.Training = append(fixture.Training, generate(rng, road, nature, dry, *perNature)...)
			fixture.Validation = append(fixture.Validation, generate(rng, road, nature, dry, *perNature/4+1)...)
		}
		log.Printf("%s: dry speed %.1f mph", road, dry)
	}
	if len(fixture.Roads) == 0 {
		return fmt.Errorf("no roads given")
	}

	if err := samplefile.Write(*out, fixture); err != nil {
		return err
	}
	log.Printf("wrote %d training and %d validation samples to %s",
		len(fixture.Training), len(fixture.Validation), *out)
	printStats(fixture)
	return nil
}

// roadColumn guesses the link column a road identifier lives in: motorway
// classifications look like "M25" or "A1(M)".
func roadColumn(road string) string {
	if strings.HasPrefix(road, "M") || strings.HasSuffix(road, "(M)") {
		if !strings.Contains(road, " ") {
			return "classification"
		}
	}
	return "street"
}

func generate(rng *rand.Rand, road, nature string, dry float64, n int) []domain.Sample {
	out := make([]domain.Sample, 0, n)
	for range n {
		hour := rng.IntN(24)
		dow := rng.IntN(7)
		depth := 0.0
		if rng.Float64() < 0.4 {
			depth = math.Round(rng.ExpFloat64()*200) / 100
		}
		speed := dry - 2.5*depth + 1.5*float64(domain.DayBinary(dow)) + rng.NormFloat64()
		if hour >= 7 && hour <= 9 || hour >= 16 && hour <= 18 {
			speed -= 6
		}
		out = append(out, domain.Sample{
			Depth:     depth,
			Speed:     math.Max(speed, 1),
			Nature:    nature,
			Road:      road,
			Hour:      hour,
			DayOfWeek: dow,
		})
	}
	return out
}

func printStats(f samplefile.Fixture) {
	wet := 0
	byNature := map[string]int{}
	for _, s := range f.Training {
		byNature[s.Nature]++
		if s.Depth > 0 {
			wet++
		}
	}
	natures := make([]string, 0, len(byNature))
	for n := range byNature {
		natures = append(natures, n)
	}
	sort.Strings(natures)

	fmt.Println("\n=== Fixture stats ===")
	fmt.Printf("Roads: %d\n", len(f.Roads))
	fmt.Printf("Training samples with rainfall: %d of %d\n", wet, len(f.Training))
	for _, n := range natures {
		fmt.Printf("  %-32s %d\n", n, byNature[n])
	}
}
