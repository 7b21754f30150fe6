package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

type features struct {
	depth, day, hour, speed float64
}

func toFeatures(samples []domain.Sample) []features {
	out := make([]features, len(samples))
	for i, s := range samples {
		out[i] = features{
			depth: s.Depth,
			day:   float64(domain.DayBinary(s.DayOfWeek)),
			hour:  float64(s.Hour),
			speed: s.Speed,
		}
	}
	return out
}

// fitCandidate minimises the sum of squared residuals (predicted - observed)
// with Nelder-Mead from the candidate's initial guess. A non-finite optimum,
// early termination (evaluation cap) or an optimizer error is reported as
// domain.ErrFitNotConverged. Cancelling ctx stops the run and returns ctx.Err().
func fitCandidate(ctx context.Context, cand candidate.Candidate, samples []domain.Sample, evalsPerParam int) ([]float64, error) {
	xs := toFeatures(samples)
	objective := func(p []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		var sse float64
		for _, x := range xs {
			r := safePredict(cand.Predict, p, x) - x.speed
			sse += r * r
		}
		// Nelder-Mead ranks vertices by value; map NaN to +Inf so
		// undefined regions (e.g. 0 raised to a negative power) are simply worst.
		if math.IsNaN(sse) {
			return math.Inf(1)
		}
		return sse
	}

	settings := &optimize.Settings{
		FuncEvaluations: evalsPerParam * (cand.Params + 1),
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 200,
		},
		Recorder: contextRecorder{ctx: ctx},
	}

	result, err := optimize.Minimize(optimize.Problem{Func: objective}, cand.InitialGuess(), settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFitNotConverged, err)
	}
	if result.Status.Early() {
		return nil, fmt.Errorf("%w: terminated with %s", domain.ErrFitNotConverged, result.Status)
	}
	if math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, fmt.Errorf("%w: residuals are not finite", domain.ErrFitNotConverged)
	}
	for _, v := range result.X {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: non-finite parameter", domain.ErrFitNotConverged)
		}
	}
	return result.X, nil
}

// contextRecorder aborts a Minimize run once its context is done.
type contextRecorder struct {
	ctx context.Context
}

func (r contextRecorder) Init() error { return r.ctx.Err() }

func (r contextRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}

// safePredict evaluates a form, turning a panic into NaN. The optimizer calls
// the objective from its own goroutines, where a panic cannot be recovered.
func safePredict(form candidate.Form, p []float64, x features) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			v = math.NaN()
		}
	}()
	return form(p, x.depth, x.day, x.hour)
}

var errNonFiniteValidation = errors.New("validation error is not finite")

// validationErrors returns the mean squared and mean absolute error of the
// fitted candidate over the validation samples.
func validationErrors(cand candidate.Candidate, params []float64, samples []domain.Sample) (mse, mae float64, err error) {
	if len(params) != cand.Params {
		return 0, 0, fmt.Errorf("%w: candidate %q takes %d parameters, got %d",
			domain.ErrModelMismatch, cand.Name, cand.Params, len(params))
	}
	xs := toFeatures(samples)
	sq := make([]float64, len(xs))
	abs := make([]float64, len(xs))
	for i, x := range xs {
		diff := safePredict(cand.Predict, params, x) - x.speed
		sq[i] = diff * diff
		abs[i] = math.Abs(diff)
	}
	mse = stat.Mean(sq, nil)
	mae = stat.Mean(abs, nil)
	if math.IsNaN(mse) || math.IsInf(mse, 0) {
		return 0, 0, errNonFiniteValidation
	}
	return mse, mae, nil
}

func meanSpeed(samples []domain.Sample) float64 {
	return stat.Mean(domain.Speeds(samples), nil)
}

// rejectOutliers keeps samples whose speed lies strictly within sigma
// standard deviations of the mean. sigma <= 0 disables filtering, as does a
// zero spread.
func rejectOutliers(samples []domain.Sample, sigma float64) []domain.Sample {
	if sigma <= 0 || len(samples) == 0 {
		return samples
	}
	speeds := stats.Float64Data(domain.Speeds(samples))
	mean, err := stats.Mean(speeds)
	if err != nil {
		return samples
	}
	sd, err := stats.StandardDeviation(speeds)
	if err != nil || sd == 0 {
		return samples
	}

	kept := make([]domain.Sample, 0, len(samples))
	for _, s := range samples {
		if math.Abs(s.Speed-mean) < sigma*sd {
			kept = append(kept, s)
		}
	}
	return kept
}
