// Package samplefile serves calibration samples from a JSON fixture, for
// offline runs and tests without the road link database.
package samplefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
)

// Fixture is the on-disk layout. Roads is optional; when empty the road
// universe is derived from the samples.
type Fixture struct {
	Roads      []domain.RoadFilter `json:"roads,omitempty"`
	Training   []domain.Sample     `json:"training"`
	Validation []domain.Sample     `json:"validation"`
}

// Provider implements pipeline.SampleProvider over an in-memory Fixture.
// Source table names in a query are ignored.
type Provider struct {
	fixture Fixture
}

// Load reads a fixture file.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sample file: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sample file %s: %w", path, err)
	}
	return New(f), nil
}

func New(f Fixture) *Provider {
	return &Provider{fixture: f}
}

// Write stores a fixture as indented JSON.
func Write(path string, f Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sample file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sample file: %w", err)
	}
	return nil
}

func (p *Provider) Roads(_ context.Context) ([]domain.RoadFilter, error) {
	if len(p.fixture.Roads) > 0 {
		return slices.Clone(p.fixture.Roads), nil
	}
	seen := make(map[string]bool)
	var roads []string
	for _, set := range [][]domain.Sample{p.fixture.Training, p.fixture.Validation} {
		for _, s := range set {
			key := domain.NormalizeRoad(s.Road)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			roads = append(roads, key)
		}
	}
	sort.Strings(roads)
	out := make([]domain.RoadFilter, len(roads))
	for i, r := range roads {
		out[i] = domain.RoadFilter{Column: "street", Value: r}
	}
	return out, nil
}

func (p *Provider) Samples(ctx context.Context, q domain.SampleQuery) ([]domain.Sample, []domain.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m := newMatcher(q)
	return m.filter(p.fixture.Training), m.filter(p.fixture.Validation), nil
}

type matcher struct {
	roads   map[string]bool
	natures map[string]bool
	hours   map[int]bool
	days    map[int]bool
}

func newMatcher(q domain.SampleQuery) matcher {
	m := matcher{roads: make(map[string]bool)}
	for _, f := range q.Roads {
		m.roads[f.Key()] = true
	}
	if len(q.Natures) > 0 {
		m.natures = make(map[string]bool)
		for _, n := range q.Natures {
			m.natures[n] = true
		}
	}
	m.hours = intSet(q.Hours)
	m.days = intSet(q.Days)
	return m
}

func intSet(vs []int) map[int]bool {
	if len(vs) == 0 {
		return nil
	}
	set := make(map[int]bool, len(vs))
	for _, v := range vs {
		set[v] = true
	}
	return set
}

func (m matcher) filter(samples []domain.Sample) []domain.Sample {
	var out []domain.Sample
	for _, s := range samples {
		if !m.roads[domain.NormalizeRoad(s.Road)] {
			continue
		}
		if m.natures != nil && !m.natures[s.Nature] {
			continue
		}
		if m.hours != nil && !m.hours[s.Hour] {
			continue
		}
		if m.days != nil && !m.days[s.DayOfWeek] {
			continue
		}
		s.Road = domain.NormalizeRoad(s.Road)
		out = append(out, s)
	}
	return out
}
