package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// FittedModel is the winning candidate for one (road, nature) pair.
type FittedModel struct {
	Candidate  int       `json:"best_function"`
	Parameters []float64 `json:"parameters"`
	MSE        float64   `json:"mse"`
	MAE        float64   `json:"mae"`
}

// FallbackAverage is the constant prediction used when no candidate could be fit.
type FallbackAverage struct {
	AvgSpeed float64 `json:"avg_speed"`
}

// NatureResult holds exactly one of a FittedModel or a FallbackAverage.
type NatureResult struct {
	Fitted   *FittedModel
	Fallback *FallbackAverage
}

// Fitted wraps a fitted model as a nature result.
func Fitted(m FittedModel) NatureResult {
	return NatureResult{Fitted: &m}
}

// Fallback wraps a constant average speed as a nature result.
func Fallback(avgSpeed float64) NatureResult {
	return NatureResult{Fallback: &FallbackAverage{AvgSpeed: avgSpeed}}
}

// Validate checks the exactly-one invariant.
func (r NatureResult) Validate() error {
	switch {
	case r.Fitted != nil && r.Fallback != nil:
		return errors.New("nature result is both fitted and fallback")
	case r.Fitted == nil && r.Fallback == nil:
		return errors.New("nature result is empty")
	}
	return nil
}

func (r NatureResult) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Fitted != nil {
		return json.Marshal(r.Fitted)
	}
	return json.Marshal(r.Fallback)
}

func (r *NatureResult) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	_, hasFitted := fields["best_function"]
	_, hasFallback := fields["avg_speed"]

	switch {
	case hasFitted && hasFallback:
		return errors.New("nature result has both best_function and avg_speed")
	case hasFitted:
		var m FittedModel
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode fitted model: %w", err)
		}
		*r = NatureResult{Fitted: &m}
	case hasFallback:
		var f FallbackAverage
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode fallback average: %w", err)
		}
		*r = NatureResult{Fallback: &f}
	default:
		return errors.New("nature result has neither best_function nor avg_speed")
	}
	return nil
}

// RoadModelRecord is the persisted calibration outcome for one road.
type RoadModelRecord struct {
	Road string `json:"road,omitempty"`
	// CandidateSetSize is the length of the candidate set at calibration time.
	// Zero means the record predates versioning.
	CandidateSetSize int                     `json:"candidate_set_size,omitempty"`
	CandidateTally   []int                   `json:"candidate_tally"`
	NatureResults    map[string]NatureResult `json:"nature_results"`
}

// NewRoadModelRecord returns an empty record for road sized for a candidate set.
func NewRoadModelRecord(road string, candidates int) RoadModelRecord {
	return RoadModelRecord{
		Road:             NormalizeRoad(road),
		CandidateSetSize: candidates,
		CandidateTally:   make([]int, candidates),
		NatureResults:    make(map[string]NatureResult),
	}
}

// IsEmpty reports whether the record holds no nature results.
func (r RoadModelRecord) IsEmpty() bool {
	return len(r.NatureResults) == 0
}

// Natures returns the natures present in the record, sorted.
func (r RoadModelRecord) Natures() []string {
	out := make([]string, 0, len(r.NatureResults))
	for n := range r.NatureResults {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Put stores the result for a nature and counts fitted selections in the tally.
func (r *RoadModelRecord) Put(nature string, res NatureResult) {
	if r.NatureResults == nil {
		r.NatureResults = make(map[string]NatureResult)
	}
	r.NatureResults[nature] = res
	if res.Fitted != nil && res.Fitted.Candidate >= 0 && res.Fitted.Candidate < len(r.CandidateTally) {
		r.CandidateTally[res.Fitted.Candidate]++
	}
}

// Validate checks the record against a candidate set described by its size and
// per-index parameter counts.
func (r RoadModelRecord) Validate(paramCounts []int) error {
	size := len(paramCounts)
	if r.CandidateSetSize > size {
		return fmt.Errorf("%w: record written by a set of %d candidates, current set has %d",
			ErrModelMismatch, r.CandidateSetSize, size)
	}
	if len(r.CandidateTally) > size {
		return fmt.Errorf("%w: tally has %d entries, current set has %d", ErrModelMismatch, len(r.CandidateTally), size)
	}
	for nature, res := range r.NatureResults {
		if err := res.Validate(); err != nil {
			return fmt.Errorf("nature %q: %w", nature, err)
		}
		if res.Fallback != nil {
			if !isFinite(res.Fallback.AvgSpeed) {
				return fmt.Errorf("nature %q: %w: avg_speed", nature, ErrNonFinitePrediction)
			}
			continue
		}
		m := res.Fitted
		if m.Candidate < 0 || m.Candidate >= size {
			return fmt.Errorf("nature %q: %w: candidate index %d", nature, ErrModelMismatch, m.Candidate)
		}
		if len(m.Parameters) != paramCounts[m.Candidate] {
			return fmt.Errorf("nature %q: %w: candidate %d takes %d parameters, record has %d",
				nature, ErrModelMismatch, m.Candidate, paramCounts[m.Candidate], len(m.Parameters))
		}
		for i, p := range m.Parameters {
			if !isFinite(p) {
				return fmt.Errorf("nature %q: %w: parameter %d", nature, ErrNonFinitePrediction, i)
			}
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
