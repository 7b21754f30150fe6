// Package calibration fits every candidate speed model to a road's training
// samples and keeps the one with the lowest validation error.
package calibration

import (
	"context"
	"log/slog"
	"sort"
	"strconv"

	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Options tune a Calibrator. Zero values are replaced by DefaultOptions.
type Options struct {
	// MinTrainingSamples below which a nature gets a fallback average.
	MinTrainingSamples int
	// EvaluationsPerParam caps a fit at EvaluationsPerParam*(params+1)
	// objective evaluations.
	EvaluationsPerParam int
	// OutlierSigma drops training samples further than k standard deviations
	// from the mean speed. Zero disables rejection.
	OutlierSigma float64
	// Natures is the catalogue accepted at calibration time.
	Natures []string
	Clock   clockwork.Clock
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		MinTrainingSamples:  3,
		EvaluationsPerParam: 10000,
		Natures:             domain.DefaultNatures(),
		Clock:               clockwork.NewRealClock(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinTrainingSamples <= 0 {
		o.MinTrainingSamples = def.MinTrainingSamples
	}
	if o.EvaluationsPerParam <= 0 {
		o.EvaluationsPerParam = def.EvaluationsPerParam
	}
	if len(o.Natures) == 0 {
		o.Natures = def.Natures
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	return o
}

// Calibrator selects a model per (road, nature). It holds no mutable state
// and is safe for concurrent use across roads.
type Calibrator struct {
	set     *candidate.Set
	opts    Options
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Calibrator over a candidate set.
func New(set *candidate.Set, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Calibrator {
	return &Calibrator{
		set:     set,
		opts:    opts.withDefaults(),
		logger:  logger,
		metrics: metrics,
	}
}

// Candidates returns the candidate set the calibrator fits.
func (c *Calibrator) Candidates() *candidate.Set { return c.set }

// CalibrateRoad fits every nature present in both sample sets of one road.
// It returns domain.ErrEmptyData when either set is empty.
func (c *Calibrator) CalibrateRoad(ctx context.Context, road string, training, validation []domain.Sample) (domain.RoadModelRecord, error) {
	road = domain.NormalizeRoad(road)
	if len(training) == 0 || len(validation) == 0 {
		return domain.RoadModelRecord{}, domain.ErrEmptyData
	}

	record := domain.NewRoadModelRecord(road, c.set.Len())
	trainingByNature := domain.GroupByNature(training)
	validationByNature := domain.GroupByNature(validation)

	natures := make([]string, 0, len(trainingByNature))
	for n := range trainingByNature {
		natures = append(natures, n)
	}
	sort.Strings(natures)

	for _, nature := range natures {
		if !domain.IsCatalogueNature(c.opts.Natures, nature) {
			c.logger.Warn("skipping nature outside catalogue", "road", road, "nature", nature)
			continue
		}
		nv, ok := validationByNature[nature]
		if !ok {
			c.logger.Debug("nature has no validation samples", "road", road, "nature", nature)
			continue
		}

		res, err := c.CalibrateNature(ctx, road, nature, trainingByNature[nature], nv)
		if err != nil {
			return domain.RoadModelRecord{}, err
		}
		record.Put(nature, res)
	}

	return record, nil
}

// CalibrateNature runs candidate selection for one (road, nature) pair. The
// only errors are context cancellation and an empty validation set.
func (c *Calibrator) CalibrateNature(ctx context.Context, road, nature string, training, validation []domain.Sample) (domain.NatureResult, error) {
	if len(validation) == 0 {
		return domain.NatureResult{}, domain.ErrEmptyData
	}

	training = rejectOutliers(training, c.opts.OutlierSigma)
	if len(training) < c.opts.MinTrainingSamples {
		c.logger.Debug("too few training samples, using fallback average",
			"road", road, "nature", nature, "samples", len(training))
		return c.fallback(validation), nil
	}

	best := -1
	var bestModel domain.FittedModel

	for i, cand := range c.set.All() {
		if err := ctx.Err(); err != nil {
			return domain.NatureResult{}, err
		}
		label := strconv.Itoa(i)

		start := c.opts.Clock.Now()
		params, err := fitCandidate(ctx, cand, training, c.opts.EvaluationsPerParam)
		c.metrics.FitDuration.Observe(c.opts.Clock.Since(start).Seconds())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.NatureResult{}, ctxErr
		}
		if err != nil {
			c.logger.Warn("candidate fit failed", "road", road, "nature", nature, "candidate", i, "error", err)
			c.metrics.CandidateFits.WithLabelValues(label, "failed").Inc()
			continue
		}

		mse, mae, err := validationErrors(cand, params, validation)
		if err != nil {
			c.logger.Warn("candidate validation failed", "road", road, "nature", nature, "candidate", i, "error", err)
			c.metrics.CandidateFits.WithLabelValues(label, "failed").Inc()
			continue
		}
		c.metrics.CandidateFits.WithLabelValues(label, "converged").Inc()

		// Strict improvement only: ties keep the earlier candidate.
		if best == -1 || mse < bestModel.MSE {
			best = i
			bestModel = domain.FittedModel{Candidate: i, Parameters: params, MSE: mse, MAE: mae}
		}
	}

	if best == -1 {
		c.logger.Info("no candidate converged, using fallback average", "road", road, "nature", nature)
		return c.fallback(validation), nil
	}

	c.metrics.CandidateSelected.WithLabelValues(strconv.Itoa(best)).Inc()
	c.logger.Debug("candidate selected", "road", road, "nature", nature,
		"candidate", best, "mse", bestModel.MSE, "mae", bestModel.MAE)
	return domain.Fitted(bestModel), nil
}

func (c *Calibrator) fallback(validation []domain.Sample) domain.NatureResult {
	c.metrics.FallbackAverages.Inc()
	return domain.Fallback(meanSpeed(validation))
}
