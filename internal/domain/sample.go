package domain

import "strings"

// Sample is a single traffic/rainfall observation for one road link.
type Sample struct {
	Depth     float64 `json:"depth" db:"depth"`
	Speed     float64 `json:"speed" db:"speed"`
	Nature    string  `json:"nature" db:"nature"`
	Road      string  `json:"road" db:"road"`
	Hour      int     `json:"hour" db:"hour"`
	DayOfWeek int     `json:"dow" db:"dow"`
}

// RoadFilter selects road links by a column of the link table, e.g.
// {Column: "street", Value: "HIGH STREET"} or {Column: "classification", Value: "M25"}.
type RoadFilter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Key returns the canonical road identifier for the filter.
func (f RoadFilter) Key() string {
	return NormalizeRoad(f.Value)
}

// Source names the traffic and rainfall tables of one sampling window.
type Source struct {
	TrafficTable  string `json:"traffic_table"`
	RainfallTable string `json:"rainfall_table"`
}

// SampleQuery is the narrow contract between the calibration job and the
// data provider. Hours and Days restrict the periods considered; empty
// slices mean "all".
type SampleQuery struct {
	Training   Source
	Validation Source
	Roads      []RoadFilter
	Natures    []string
	Hours      []int
	Days       []int
}

// AllHours returns 0..23.
func AllHours() []int {
	hours := make([]int, 24)
	for i := range hours {
		hours[i] = i
	}
	return hours
}

// AllDays returns 0..6.
func AllDays() []int {
	days := make([]int, 7)
	for i := range days {
		days[i] = i
	}
	return days
}

// NormalizeRoad returns the canonical (uppercase, trimmed) form of a road identifier.
func NormalizeRoad(road string) string {
	return strings.ToUpper(strings.TrimSpace(road))
}

// DayBinary collapses a 0-6 weekday into the weekend (0) / weekday (1) model feature.
func DayBinary(dow int) int {
	if dow == 0 || dow == 6 {
		return 0
	}
	return 1
}

// GroupByNature splits samples by their nature field, preserving order.
func GroupByNature(samples []Sample) map[string][]Sample {
	groups := make(map[string][]Sample)
	for _, s := range samples {
		groups[s.Nature] = append(groups[s.Nature], s)
	}
	return groups
}

// Speeds extracts the speed column.
func Speeds(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Speed
	}
	return out
}
