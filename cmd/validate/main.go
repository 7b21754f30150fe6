// Command validate performs integrity checks over a calibrated model
// directory: every road record parses and matches the current candidate set,
// per-road tallies agree with their nature results, the aggregate file agrees
// with the records, and every stored model yields a finite prediction.
//
// Usage:
//
//	go run ./cmd/validate -model-dir data/roads -aggregate data/aggregate.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/inference"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/couchcryptid/road-rainfall-speed/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	modelDir := flag.String("model-dir", "", "directory of per-road model records")
	aggregatePath := flag.String("aggregate", "", "path to the aggregate statistics file (optional)")
	flag.Parse()

	if *modelDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*modelDir, *aggregatePath); code != 0 {
		os.Exit(code)
	}
}

func run(modelDir, aggregatePath string) int {
	ctx := context.Background()
	set := candidate.Default()
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	files := store.NewFileStore(modelDir, aggregatePath, logger, metrics)

	fmt.Println("=== Road Model Integrity Validation ===")
	fmt.Println()

	roads, err := files.ListRoads(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list roads: %v\n", err)
		return 1
	}

	records, p1 := validateRecords(files, roads, set)
	phases := []*phase{
		p1,
		validateTallies(records),
	}
	if aggregatePath != "" {
		phases = append(phases, validateAggregate(ctx, files, records, set.Len()))
	}
	phases = append(phases, validatePredictions(ctx, files, records, set, logger, metrics))

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Roads: %d files, %d valid records\n", len(roads), len(records))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Record Integrity ──
// Parses each record strictly; the store itself treats corrupt files as empty.

func validateRecords(files *store.FileStore, roads []string, set *candidate.Set) ([]domain.RoadModelRecord, *phase) {
	p := &phase{name: "Phase 1: Record Integrity"}
	paramCounts := set.ParamCounts()

	records := make([]domain.RoadModelRecord, 0, len(roads))
	for _, road := range roads {
		path := files.RecordPath(road)
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("%s: %v", road, err)
			continue
		}
		var rec domain.RoadModelRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			p.errorf("%s: corrupt record: %v", road, err)
			continue
		}
		if rec.Road != "" && domain.NormalizeRoad(rec.Road) != road {
			p.errorf("%s: record names road %q", road, rec.Road)
		}
		if rec.IsEmpty() {
			p.errorf("%s: record has no nature results", road)
			continue
		}
		if err := rec.Validate(paramCounts); err != nil {
			p.errorf("%s: %v", road, err)
			continue
		}
		if rec.Road == "" {
			rec.Road = road
		}
		records = append(records, rec)
	}
	return records, p
}

// ── Phase 2: Tally Consistency ──

func validateTallies(records []domain.RoadModelRecord) *phase {
	p := &phase{name: "Phase 2: Per-road Tally Consistency"}
	for _, rec := range records {
		counts := make([]int, len(rec.CandidateTally))
		for nature, res := range rec.NatureResults {
			if res.Fitted == nil {
				continue
			}
			if res.Fitted.Candidate >= len(counts) {
				p.errorf("%s/%s: candidate %d outside tally of %d", rec.Road, nature, res.Fitted.Candidate, len(counts))
				continue
			}
			counts[res.Fitted.Candidate]++
		}
		if diff := cmp.Diff(rec.CandidateTally, counts); diff != "" {
			p.errorf("%s: tally disagrees with nature results (-stored +derived):\n%s", rec.Road, diff)
		}
	}
	return p
}

// ── Phase 3: Aggregate Consistency ──

func validateAggregate(ctx context.Context, files *store.FileStore, records []domain.RoadModelRecord, candidates int) *phase {
	p := &phase{name: "Phase 3: Aggregate Consistency"}

	stored, err := files.LoadAggregate(ctx)
	if err != nil {
		p.errorf("load aggregate: %v", err)
		return p
	}
	derived := domain.Aggregate(records, candidates)
	if diff := cmp.Diff(derived, stored, cmpopts.EquateApprox(0, 1e-9), cmpopts.EquateEmpty()); diff != "" {
		p.errorf("aggregate disagrees with records (-derived +stored):\n%s", diff)
	}

	sum := 0.0
	for _, pct := range stored.Total.FunctionPercentages {
		sum += pct
	}
	if stored.Total.TotalCount > 0 && (sum < 99.999 || sum > 100.001) {
		p.errorf("function percentages sum to %g, want 100", sum)
	}
	return p
}

// ── Phase 4: Prediction Sanity ──
// Every stored model must produce a finite dry speed and a slowdown within
// [0, 100] at a representative weekday rush hour and a heavy shower.

func validatePredictions(ctx context.Context, files *store.FileStore, records []domain.RoadModelRecord,
	set *candidate.Set, logger *slog.Logger, metrics *observability.Metrics,
) *phase {
	p := &phase{name: "Phase 4: Prediction Sanity"}
	engine := inference.NewEngine(files, inference.Options{Candidates: set}, logger, metrics)

	for _, rec := range records {
		for _, nature := range rec.Natures() {
			q := inference.Query{Road: rec.Road, Nature: nature, Hour: domain.HourOf(8), Day: domain.DayOf(2)}
			dry, err := engine.SpeedWithoutRainfall(ctx, q, inference.MPH)
			if err != nil {
				p.errorf("%s/%s: dry speed: %v", rec.Road, nature, err)
				continue
			}
			if dry <= 0 {
				p.errorf("%s/%s: non-positive dry speed %g", rec.Road, nature, dry)
				continue
			}
			pct, err := engine.PercentageSlowdown(ctx, q, 5)
			if err != nil {
				p.errorf("%s/%s: slowdown: %v", rec.Road, nature, err)
				continue
			}
			if pct < 0 || pct > 100 {
				p.errorf("%s/%s: slowdown %g%% outside [0, 100]", rec.Road, nature, pct)
			}
		}
	}
	return p
}
