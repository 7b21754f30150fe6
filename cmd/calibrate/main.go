// Command calibrate fits a rainfall/speed model for every road (or the roads
// listed in CALIBRATION_ROADS), writes one record per road to MODEL_DIR and the
// candidate aggregate to AGGREGATE_PATH. Health, readiness, and metrics are
// served on HTTP_ADDR while the run is in progress.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/road-rainfall-speed/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/road-rainfall-speed/internal/adapter/kafka"
	"github.com/couchcryptid/road-rainfall-speed/internal/adapter/postgres"
	"github.com/couchcryptid/road-rainfall-speed/internal/adapter/samplefile"
	"github.com/couchcryptid/road-rainfall-speed/internal/calibration"
	"github.com/couchcryptid/road-rainfall-speed/internal/candidate"
	"github.com/couchcryptid/road-rainfall-speed/internal/config"
	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/couchcryptid/road-rainfall-speed/internal/pipeline"
	"github.com/couchcryptid/road-rainfall-speed/internal/store"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateCalibration(); err != nil {
		slog.Error("invalid calibration config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, closeProvider, err := openProvider(ctx, cfg)
	if err != nil {
		logger.Error("failed to open sample source", "source", cfg.SampleSource, "error", err)
		return err
	}
	defer closeProvider()

	calibrator := calibration.New(candidate.Default(), calibration.Options{
		MinTrainingSamples:  cfg.MinTrainingSamples,
		EvaluationsPerParam: cfg.FitEvaluationsPerParam,
		OutlierSigma:        cfg.OutlierSigma,
	}, logger, metrics)
	files := store.NewFileStore(cfg.ModelDir, cfg.AggregatePath, logger, metrics)

	var publisher pipeline.RecordPublisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, clockwork.NewRealClock(), logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publisher = writer
		logger.Info("kafka publication enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	job := pipeline.New(provider, calibrator, files, publisher, pipeline.Options{
		Training:   domain.Source{TrafficTable: cfg.TrainingTrafficTable, RainfallTable: cfg.TrainingRainfallTable},
		Validation: domain.Source{TrafficTable: cfg.ValidationTrafficTable, RainfallTable: cfg.ValidationRainfallTable},
		Roads:      cfg.CalibrationRoads,
		Workers:    cfg.CalibrationWorkers,
		Candidates: calibrator.Candidates().Len(),
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, nil, job, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}()

	report, err := job.Run(ctx)
	for _, f := range report.Failures {
		logger.Error("road failed", "road", f.Road, "error", f.Err)
	}
	if err != nil {
		logger.Error("calibration run failed", "run_id", report.RunID, "error", err)
		return err
	}
	if report.Aggregate != nil {
		logger.Info("candidate selection",
			"run_id", report.RunID,
			"percentages", report.Aggregate.Total.FunctionPercentages,
			"calibrated", len(report.Calibrated),
		)
	}
	return nil
}

func openProvider(ctx context.Context, cfg *config.Config) (pipeline.SampleProvider, func(), error) {
	switch cfg.SampleSource {
	case config.SampleSourceFile:
		p, err := samplefile.Load(cfg.SampleFile)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	case config.SampleSourcePostgres:
		p, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sample source %q", cfg.SampleSource)
	}
}
