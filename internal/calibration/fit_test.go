package calibration

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func speeds(vs ...float64) []domain.Sample {
	out := make([]domain.Sample, len(vs))
	for i, v := range vs {
		out[i] = domain.Sample{Speed: v, Nature: domain.NatureSingleCarriageway}
	}
	return out
}

func TestRejectOutliers(t *testing.T) {
	in := speeds(10, 11, 9, 10, 10, 50)

	kept := rejectOutliers(in, 2)
	assert.Equal(t, []float64{10, 11, 9, 10, 10}, domain.Speeds(kept))
}

func TestRejectOutliers_Disabled(t *testing.T) {
	in := speeds(10, 11, 9, 10, 10, 50)
	assert.Len(t, rejectOutliers(in, 0), 6)
}

func TestRejectOutliers_ZeroSpread(t *testing.T) {
	in := speeds(12, 12, 12)
	assert.Len(t, rejectOutliers(in, 1), 3)
}

func TestFitCandidate_EvaluationCap(t *testing.T) {
	cand := candidate.Candidate{
		Name:    "quadratic",
		Params:  2,
		Initial: []float64{1, 1},
		Predict: func(p []float64, depth, _, _ float64) float64 {
			return p[0] + p[1]*depth*depth
		},
	}
	samples := []domain.Sample{
		{Depth: 0, Speed: 40},
		{Depth: 1, Speed: 35},
		{Depth: 2, Speed: 20},
	}

	_, err := fitCandidate(context.Background(), cand, samples, 1)
	require.ErrorIs(t, err, domain.ErrFitNotConverged)

	params, err := fitCandidate(context.Background(), cand, samples, 10000)
	require.NoError(t, err)
	require.Len(t, params, 2)
	for _, p := range params {
		assert.False(t, math.IsNaN(p))
	}
}

func TestValidationErrors(t *testing.T) {
	cand := candidate.Candidate{
		Name:    "constant",
		Params:  1,
		Initial: []float64{1},
		Predict: func(p []float64, _, _, _ float64) float64 { return p[0] },
	}

	mse, mae, err := validationErrors(cand, []float64{10}, speeds(8, 13))
	require.NoError(t, err)
	assert.InDelta(t, (4.0+9.0)/2, mse, 1e-12)
	assert.InDelta(t, (2.0+3.0)/2, mae, 1e-12)

	_, _, err = validationErrors(cand, []float64{10, 1}, speeds(8))
	require.ErrorIs(t, err, domain.ErrModelMismatch)
}

func largeSamples(n int) []domain.Sample {
	out := make([]domain.Sample, n)
	for i := range out {
		depth := float64(i%40) / 10
		hour := i % 24
		out[i] = domain.Sample{
			Depth:     depth,
			Speed:     30 - 5*depth + 0.2*float64(hour) + float64(i%7)/10,
			Nature:    domain.NatureSingleCarriageway,
			Hour:      hour,
			DayOfWeek: i % 7,
		}
	}
	return out
}

func TestFitCandidate_CancelStopsRunningFit(t *testing.T) {
	cand, err := candidate.Default().At(2)
	require.NoError(t, err)
	samples := largeSamples(50000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err = fitCandidate(ctx, cand, samples, 10000)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrFitNotConverged)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestFitCandidate_AlreadyCancelled(t *testing.T) {
	cand, err := candidate.Default().At(0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = fitCandidate(ctx, cand, largeSamples(100), 10000)
	require.ErrorIs(t, err, context.Canceled)
}
