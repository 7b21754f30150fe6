// Package inference answers speed predictions from persisted road models.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
)

// RecordReader loads persisted road records. Missing roads yield an empty record.
type RecordReader interface {
	LoadRecord(ctx context.Context, road string) (domain.RoadModelRecord, error)
	ListRoads(ctx context.Context) ([]string, error)
}

// Options configure an Engine.
type Options struct {
	Candidates          *candidate.Set
	Natures             []string
	SimilarityThreshold float64
}

// Query identifies the (road, nature, hour, day) a prediction is made for.
type Query struct {
	Road   string
	Nature string
	Hour   domain.HourInput
	Day    domain.DayInput
}

// Engine is read-only and safe for concurrent use.
type Engine struct {
	records     RecordReader
	candidates  *candidate.Set
	paramCounts []int
	matcher     *NatureMatcher
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewEngine creates an inference engine. Unset options take the production
// candidate set, nature catalogue and threshold.
func NewEngine(records RecordReader, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if opts.Candidates == nil {
		opts.Candidates = candidate.Default()
	}
	if len(opts.Natures) == 0 {
		opts.Natures = domain.DefaultNatures()
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return &Engine{
		records:     records,
		candidates:  opts.Candidates,
		paramCounts: opts.Candidates.ParamCounts(),
		matcher:     NewNatureMatcher(opts.Natures, opts.SimilarityThreshold),
		logger:      logger,
		metrics:     metrics,
	}
}

// ValidateRoad reports whether road has a non-empty model record.
func (e *Engine) ValidateRoad(ctx context.Context, road string) (bool, error) {
	rec, err := e.records.LoadRecord(ctx, domain.NormalizeRoad(road))
	if err != nil {
		return false, err
	}
	return !rec.IsEmpty(), nil
}

// NaturesForRoad returns the natures modeled for road, sorted. An unmodeled
// road has none.
func (e *Engine) NaturesForRoad(ctx context.Context, road string) ([]string, error) {
	rec, err := e.records.LoadRecord(ctx, domain.NormalizeRoad(road))
	if err != nil {
		return nil, err
	}
	return rec.Natures(), nil
}

// AvailableRoads lists every persisted road.
func (e *Engine) AvailableRoads(ctx context.Context) ([]string, error) {
	return e.records.ListRoads(ctx)
}

// SpeedWithoutRainfall predicts the dry speed for q in unit.
func (e *Engine) SpeedWithoutRainfall(ctx context.Context, q Query, unit Unit) (float64, error) {
	dry, _, err := e.speeds(ctx, q, 0)
	e.observe("speed_without_rainfall", err)
	if err != nil {
		return 0, err
	}
	return dry * unit.Factor(), nil
}

// SpeedWithRainfall predicts the speed for q at rainfall depth (mm) in unit.
// A model that predicts a higher speed in rain than in the dry is clamped to
// the dry speed before conversion.
func (e *Engine) SpeedWithRainfall(ctx context.Context, q Query, depth float64, unit Unit) (float64, error) {
	_, wet, err := e.speeds(ctx, q, depth)
	e.observe("speed_with_rainfall", err)
	if err != nil {
		return 0, err
	}
	return wet * unit.Factor(), nil
}

// PercentageSlowdown returns (1 - wet/dry) * 100 computed in miles per hour.
func (e *Engine) PercentageSlowdown(ctx context.Context, q Query, depth float64) (float64, error) {
	pct, err := e.slowdown(ctx, q, depth)
	e.observe("percentage_slowdown", err)
	return pct, err
}

func (e *Engine) slowdown(ctx context.Context, q Query, depth float64) (float64, error) {
	dry, wet, err := e.speeds(ctx, q, depth)
	if err != nil {
		return 0, err
	}
	if dry == 0 {
		return 0, fmt.Errorf("%w: dry speed is zero", domain.ErrNonFinitePrediction)
	}
	return (1 - wet/dry) * 100, nil
}

// CheckReadiness returns nil once at least one road model can be listed.
func (e *Engine) CheckReadiness(ctx context.Context) error {
	roads, err := e.records.ListRoads(ctx)
	if err != nil {
		return err
	}
	if len(roads) == 0 {
		return errors.New("no road models available")
	}
	return nil
}

// speeds returns the dry prediction and the clamped prediction at depth,
// both in miles per hour.
func (e *Engine) speeds(ctx context.Context, q Query, depth float64) (dry, wet float64, err error) {
	if math.IsNaN(depth) || math.IsInf(depth, 0) || depth < 0 {
		return 0, 0, domain.NewValidationError("depth", depth, "must be a finite non-negative number")
	}

	entry, hour, dow, err := e.resolve(ctx, q)
	if err != nil {
		return 0, 0, err
	}

	dry, err = e.predict(entry, 0, hour, dow)
	if err != nil {
		return 0, 0, err
	}
	if depth == 0 {
		return dry, dry, nil
	}

	wet, err = e.predict(entry, depth, hour, dow)
	if err != nil {
		return 0, 0, err
	}
	if wet > dry {
		wet = dry
	}
	return dry, wet, nil
}

// resolve validates every input and returns the stored entry for the query.
// Hour, day and nature are checked before the store is consulted.
func (e *Engine) resolve(ctx context.Context, q Query) (domain.NatureResult, int, int, error) {
	hour, err := q.Hour.Normalize()
	if err != nil {
		return domain.NatureResult{}, 0, 0, err
	}
	dow, err := q.Day.Normalize()
	if err != nil {
		return domain.NatureResult{}, 0, 0, err
	}
	nature, err := e.matcher.Resolve(q.Nature)
	if err != nil {
		return domain.NatureResult{}, 0, 0, err
	}

	road := domain.NormalizeRoad(q.Road)
	rec, err := e.records.LoadRecord(ctx, road)
	if err != nil {
		return domain.NatureResult{}, 0, 0, err
	}
	if rec.IsEmpty() {
		return domain.NatureResult{}, 0, 0, domain.NewValidationError("road", road, "has no model; check available roads")
	}
	if err := rec.Validate(e.paramCounts); err != nil {
		e.logger.Error("road record incompatible with candidate set", "road", road, "error", err)
		return domain.NatureResult{}, 0, 0, fmt.Errorf("road %s: %w", road, err)
	}

	entry, ok := rec.NatureResults[nature]
	if !ok {
		return domain.NatureResult{}, 0, 0, domain.NewValidationError("nature", nature, "is not modeled for road "+road)
	}
	return entry, hour, dow, nil
}

func (e *Engine) predict(entry domain.NatureResult, depth float64, hour, dow int) (float64, error) {
	if entry.Fallback != nil {
		return entry.Fallback.AvgSpeed, nil
	}

	cand, err := e.candidates.At(entry.Fitted.Candidate)
	if err != nil {
		return 0, err
	}
	v, err := cand.Evaluate(entry.Fitted.Parameters, depth, domain.DayBinary(dow), hour)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: candidate %d at depth %g hour %d day %d",
			domain.ErrNonFinitePrediction, entry.Fitted.Candidate, depth, hour, dow)
	}
	return v, nil
}

func (e *Engine) observe(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		outcome = "validation_error"
	case errors.Is(err, domain.ErrType):
		outcome = "type_error"
	default:
		outcome = "error"
	}
	e.metrics.Predictions.WithLabelValues(op, outcome).Inc()
}
