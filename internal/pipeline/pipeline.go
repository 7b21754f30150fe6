// Package pipeline runs the calibration batch job: extract samples per road,
// fit and select models, persist each road, then reduce the aggregate.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// SampleProvider supplies the road universe and per-road samples.
type SampleProvider interface {
	Roads(ctx context.Context) ([]domain.RoadFilter, error)
	Samples(ctx context.Context, q domain.SampleQuery) (training, validation []domain.Sample, err error)
}

// RoadCalibrator turns one road's samples into a model record.
type RoadCalibrator interface {
	CalibrateRoad(ctx context.Context, road string, training, validation []domain.Sample) (domain.RoadModelRecord, error)
}

// RecordStore persists road records and the aggregate.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec domain.RoadModelRecord) error
	SaveAggregate(ctx context.Context, stats domain.AggregateStats) error
}

// RecordPublisher announces persisted records downstream.
type RecordPublisher interface {
	PublishRecord(ctx context.Context, rec domain.RoadModelRecord) error
}

// Options configure a Job.
type Options struct {
	Training   domain.Source
	Validation domain.Source
	// Roads restricts the run to these identifiers. Empty means every road
	// the provider knows.
	Roads   []string
	Natures []string
	Hours   []int
	Days    []int
	Workers int
	// Candidates is the candidate set size used for aggregate tallies.
	Candidates int
	Clock      clockwork.Clock
}

// Failure is a road whose calibration or persistence failed.
type Failure struct {
	Road string
	Err  error
}

// Report summarises one run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Calibrated []string
	Skipped    []string
	Failures   []Failure
	Aggregate  *domain.AggregateStats
}

// Job orchestrates a calibration run across roads.
type Job struct {
	provider   SampleProvider
	calibrator RoadCalibrator
	store      RecordStore
	publisher  RecordPublisher
	opts       Options
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

// New creates a Job. publisher may be nil.
func New(p SampleProvider, c RoadCalibrator, s RecordStore, pub RecordPublisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Job {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if len(opts.Natures) == 0 {
		opts.Natures = domain.DefaultNatures()
	}
	if len(opts.Hours) == 0 {
		opts.Hours = domain.AllHours()
	}
	if len(opts.Days) == 0 {
		opts.Days = domain.AllDays()
	}
	return &Job{
		provider:   p,
		calibrator: c,
		store:      s,
		publisher:  pub,
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once a run has completed.
func (j *Job) CheckReadiness(_ context.Context) error {
	if !j.ready.Load() {
		return errors.New("calibration has not completed a run yet")
	}
	return nil
}

type outcome int

const (
	outcomeCalibrated outcome = iota
	outcomeSkipped
	outcomeFailed
)

// collector accumulates per-road outcomes from concurrent tasks.
type collector struct {
	mu      sync.Mutex
	report  *Report
	records []domain.RoadModelRecord
}

func (c *collector) add(road string, o outcome, rec domain.RoadModelRecord, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch o {
	case outcomeCalibrated:
		c.report.Calibrated = append(c.report.Calibrated, road)
		c.records = append(c.records, rec)
	case outcomeSkipped:
		c.report.Skipped = append(c.report.Skipped, road)
	case outcomeFailed:
		c.report.Failures = append(c.report.Failures, Failure{Road: road, Err: err})
	}
}

// Run calibrates every selected road and writes the aggregate. Per-road
// failures are reported, not returned. On cancellation the partial report is
// returned with ctx.Err(); completed road files stay and no aggregate is written.
func (j *Job) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), StartedAt: j.opts.Clock.Now()}
	logger := j.logger.With("run_id", report.RunID)

	j.metrics.CalibrationRunning.Set(1)
	defer j.metrics.CalibrationRunning.Set(0)

	filters, err := j.selectRoads(ctx, logger, &report)
	if err != nil {
		report.FinishedAt = j.opts.Clock.Now()
		return report, err
	}
	logger.Info("calibration started", "roads", len(filters), "workers", j.opts.Workers)

	col := &collector{report: &report}
	var g errgroup.Group
	g.SetLimit(j.opts.Workers)

	for _, f := range filters {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			road := f.Key()
			o, rec, err := j.calibrateRoad(ctx, logger, f)
			if o == outcomeFailed && ctx.Err() != nil {
				// Aborted, not failed.
				return nil
			}
			col.add(road, o, rec, err)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Calibrated)
	sort.Strings(report.Skipped)
	sort.Slice(report.Failures, func(a, b int) bool { return report.Failures[a].Road < report.Failures[b].Road })

	if err := ctx.Err(); err != nil {
		report.FinishedAt = j.opts.Clock.Now()
		logger.Warn("calibration aborted", "calibrated", len(report.Calibrated), "error", err)
		return report, err
	}

	// Single writer: the aggregate is reduced only after every road finished.
	stats := domain.Aggregate(col.records, j.opts.Candidates)
	if err := j.store.SaveAggregate(ctx, stats); err != nil {
		report.FinishedAt = j.opts.Clock.Now()
		logger.Error("aggregate write failed", "error", err)
		return report, err
	}
	report.Aggregate = &stats
	report.FinishedAt = j.opts.Clock.Now()
	j.ready.Store(true)

	logger.Info("calibration finished",
		"calibrated", len(report.Calibrated),
		"skipped", len(report.Skipped),
		"failed", len(report.Failures),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// selectRoads returns the provider's road filters restricted to opts.Roads,
// de-duplicated by road key so each road has a single writer.
func (j *Job) selectRoads(ctx context.Context, logger *slog.Logger, report *Report) ([]domain.RoadFilter, error) {
	universe, err := j.provider.Roads(ctx)
	if err != nil {
		return nil, err
	}

	want := make(map[string]bool, len(j.opts.Roads))
	for _, r := range j.opts.Roads {
		want[domain.NormalizeRoad(r)] = false
	}

	seen := make(map[string]bool, len(universe))
	out := make([]domain.RoadFilter, 0, len(universe))
	for _, f := range universe {
		key := f.Key()
		if key == "" || seen[key] {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[key]; !ok {
				continue
			}
			want[key] = true
		}
		seen[key] = true
		out = append(out, f)
	}

	for road, found := range want {
		if !found {
			logger.Warn("requested road unknown to sample provider", "road", road)
			report.Skipped = append(report.Skipped, road)
			j.metrics.RoadsSkipped.Inc()
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Key() < out[b].Key() })
	return out, nil
}

func (j *Job) calibrateRoad(ctx context.Context, logger *slog.Logger, f domain.RoadFilter) (outcome, domain.RoadModelRecord, error) {
	road := f.Key()
	start := j.opts.Clock.Now()
	defer func() {
		j.metrics.RoadDuration.Observe(j.opts.Clock.Since(start).Seconds())
	}()

	q := domain.SampleQuery{
		Training:   j.opts.Training,
		Validation: j.opts.Validation,
		Roads:      []domain.RoadFilter{f},
		Natures:    j.opts.Natures,
		Hours:      j.opts.Hours,
		Days:       j.opts.Days,
	}
	training, validation, err := j.provider.Samples(ctx, q)
	if err != nil {
		return j.fail(ctx, logger, road, "sample query failed", err)
	}

	rec, err := j.calibrator.CalibrateRoad(ctx, road, training, validation)
	if errors.Is(err, domain.ErrEmptyData) {
		logger.Info("skipping road without data", "road", road,
			"training", len(training), "validation", len(validation))
		j.metrics.RoadsSkipped.Inc()
		return outcomeSkipped, domain.RoadModelRecord{}, nil
	}
	if err != nil {
		return j.fail(ctx, logger, road, "calibration failed", err)
	}
	if rec.IsEmpty() {
		logger.Info("skipping road with no nature in both sample sets", "road", road)
		j.metrics.RoadsSkipped.Inc()
		return outcomeSkipped, domain.RoadModelRecord{}, nil
	}

	if err := j.store.SaveRecord(ctx, rec); err != nil {
		return j.fail(ctx, logger, road, "record write failed", err)
	}

	if j.publisher != nil {
		if err := j.publisher.PublishRecord(ctx, rec); err != nil {
			logger.Warn("publish record failed", "road", road, "error", err)
		}
	}

	j.metrics.RoadsCalibrated.Inc()
	logger.Debug("road calibrated", "road", road, "natures", len(rec.NatureResults))
	return outcomeCalibrated, rec, nil
}

func (j *Job) fail(ctx context.Context, logger *slog.Logger, road, msg string, err error) (outcome, domain.RoadModelRecord, error) {
	if ctx.Err() == nil {
		logger.Error(msg, "road", road, "error", err)
		j.metrics.RoadsFailed.Inc()
	}
	return outcomeFailed, domain.RoadModelRecord{}, err
}
