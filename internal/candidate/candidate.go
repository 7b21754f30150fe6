// Package candidate defines the fixed, ordered set of parametric speed models
// that compete during calibration.
//
// A persisted model refers to its formula only by index into the set, so the
// set may grow by appending but must never be reordered or shrunk.
package candidate

import (
	"fmt"
	"math"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
)

// Form maps parameters and features to a predicted speed in mph. day is the
// weekend/weekday flag (0 or 1), hour is 0-23.
type Form func(params []float64, depth, day, hour float64) float64

// Candidate is one parametric functional form with its starting guess.
type Candidate struct {
	Name    string
	Params  int
	Initial []float64
	Predict Form
}

// Evaluate applies the form. A parameter vector of the wrong length means
// the caller holds parameters fitted for another form.
func (c Candidate) Evaluate(params []float64, depth float64, dayBinary, hour int) (float64, error) {
	if len(params) != c.Params {
		return 0, fmt.Errorf("%w: candidate %q takes %d parameters, got %d",
			domain.ErrModelMismatch, c.Name, c.Params, len(params))
	}
	return c.Predict(params, depth, float64(dayBinary), float64(hour)), nil
}

// Set is an immutable ordered list of candidates.
type Set struct {
	candidates []Candidate
}

// NewSet builds a set, checking each initial guess against the parameter count.
func NewSet(candidates ...Candidate) (*Set, error) {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		if c.Predict == nil {
			return nil, fmt.Errorf("candidate %d (%s): nil form", i, c.Name)
		}
		if c.Params <= 0 {
			return nil, fmt.Errorf("candidate %d (%s): parameter count must be positive", i, c.Name)
		}
		if len(c.Initial) != c.Params {
			return nil, fmt.Errorf("candidate %d (%s): initial guess has %d values, want %d", i, c.Name, len(c.Initial), c.Params)
		}
		c.Initial = append([]float64(nil), c.Initial...)
		out[i] = c
	}
	return &Set{candidates: out}, nil
}

// MustNewSet is NewSet that panics on error, for static definitions.
func MustNewSet(candidates ...Candidate) *Set {
	s, err := NewSet(candidates...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of candidates.
func (s *Set) Len() int { return len(s.candidates) }

// At returns the candidate at index i.
func (s *Set) At(i int) (Candidate, error) {
	if i < 0 || i >= len(s.candidates) {
		return Candidate{}, fmt.Errorf("%w: candidate index %d outside set of %d", domain.ErrModelMismatch, i, len(s.candidates))
	}
	return s.candidates[i], nil
}

// All returns the candidates in order.
func (s *Set) All() []Candidate {
	return append([]Candidate(nil), s.candidates...)
}

// ParamCounts returns the parameter count of each candidate in order.
func (s *Set) ParamCounts() []int {
	out := make([]int, len(s.candidates))
	for i, c := range s.candidates {
		out[i] = c.Params
	}
	return out
}

// InitialGuess returns a fresh copy of the candidate's starting guess.
func (c Candidate) InitialGuess() []float64 {
	return append([]float64(nil), c.Initial...)
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

// PowerSum is p0·depth^e0 + p1·day^e1 + p2·hour^e2 + c.
func PowerSum() Candidate {
	return Candidate{
		Name:    "power-sum",
		Params:  7,
		Initial: ones(7),
		Predict: func(p []float64, depth, day, hour float64) float64 {
			p0, e0, p1, e1, p2, e2, c := p[0], p[1], p[2], p[3], p[4], p[5], p[6]
			return p0*math.Pow(depth, e0) + p1*math.Pow(day, e1) + p2*math.Pow(hour, e2) + c
		},
	}
}

// ExpDecay is p0·exp(p1·depth^e1 + p2·hour^e2) + p3·day^e3 + c.
func ExpDecay() Candidate {
	return Candidate{
		Name:    "exp-decay",
		Params:  8,
		Initial: ones(8),
		Predict: func(p []float64, depth, day, hour float64) float64 {
			p0, p1, e1, p2, e2, p3, e3, c := p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7]
			return p0*math.Exp(p1*math.Pow(depth, e1)+p2*math.Pow(hour, e2)) + p3*math.Pow(day, e3) + c
		},
	}
}

// QuarticHour is p0·depth^e0 + p1·day^e1 + p2·hour⁴ + p3·hour³ + p4·hour² + p5·hour + c.
func QuarticHour() Candidate {
	return Candidate{
		Name:    "quartic-hour",
		Params:  9,
		Initial: ones(9),
		Predict: func(p []float64, depth, day, hour float64) float64 {
			p0, e0, p1, e1, p2, p3, p4, p5, c := p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7], p[8]
			h2 := hour * hour
			return p0*math.Pow(depth, e0) + p1*math.Pow(day, e1) +
				p2*h2*h2 + p3*h2*hour + p4*h2 + p5*hour + c
		},
	}
}

// Default returns the production candidate set. New forms are appended only.
func Default() *Set {
	return MustNewSet(PowerSum(), ExpDecay(), QuarticHour())
}
