package domain

import "sort"

// Tally summarises candidate selections over a set of (road, nature) pairs.
type Tally struct {
	FunctionTally       []int     `json:"function_tally"`
	AvgMSE              float64   `json:"avg_mse"`
	AvgMAE              float64   `json:"avg_mae"`
	TotalCount          int       `json:"total_count"`
	FunctionPercentages []float64 `json:"function_percentages,omitempty"`
}

// AggregateStats is the cross-road summary written next to the per-road records.
type AggregateStats struct {
	Total    Tally            `json:"total_tally"`
	ByNature map[string]Tally `json:"total_nature_tally"`
}

type tallyAccumulator struct {
	counts []int
	sumMSE float64
	sumMAE float64
	n      int
}

func (a *tallyAccumulator) add(m FittedModel) {
	if m.Candidate < 0 || m.Candidate >= len(a.counts) {
		return
	}
	a.counts[m.Candidate]++
	a.sumMSE += m.MSE
	a.sumMAE += m.MAE
	a.n++
}

func (a *tallyAccumulator) tally() Tally {
	t := Tally{
		FunctionTally:       a.counts,
		TotalCount:          a.n,
		FunctionPercentages: make([]float64, len(a.counts)),
	}
	if a.n == 0 {
		return t
	}
	t.AvgMSE = a.sumMSE / float64(a.n)
	t.AvgMAE = a.sumMAE / float64(a.n)
	for i, c := range a.counts {
		t.FunctionPercentages[i] = float64(c) * 100 / float64(a.n)
	}
	return t
}

// Aggregate reduces road records into cross-road statistics. Only fitted
// models contribute; fallback averages carry no error statistics.
func Aggregate(records []RoadModelRecord, candidates int) AggregateStats {
	sorted := make([]RoadModelRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Road < sorted[j].Road })

	total := &tallyAccumulator{counts: make([]int, candidates)}
	byNature := make(map[string]*tallyAccumulator)

	for _, rec := range sorted {
		for _, nature := range rec.Natures() {
			res := rec.NatureResults[nature]
			if res.Fitted == nil {
				continue
			}
			acc, ok := byNature[nature]
			if !ok {
				acc = &tallyAccumulator{counts: make([]int, candidates)}
				byNature[nature] = acc
			}
			acc.add(*res.Fitted)
			total.add(*res.Fitted)
		}
	}

	stats := AggregateStats{
		Total:    total.tally(),
		ByNature: make(map[string]Tally, len(byNature)),
	}
	for nature, acc := range byNature {
		stats.ByNature[nature] = acc.tally()
	}
	return stats
}
