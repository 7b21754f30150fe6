package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Sample sources for the calibration job.
const (
	SampleSourcePostgres = "postgres"
	SampleSourceFile     = "file"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Model store.
	ModelDir       string
	AggregatePath  string
	ModelCacheSize int

	// Inference.
	SimilarityThreshold float64

	// Sample extraction.
	SampleSource            string
	SampleFile              string
	DatabaseURL             string
	TrainingTrafficTable    string
	TrainingRainfallTable   string
	ValidationTrafficTable  string
	ValidationRainfallTable string

	// Calibration.
	CalibrationRoads       []string
	CalibrationWorkers     int
	FitEvaluationsPerParam int
	MinTrainingSamples     int
	OutlierSigma           float64

	// Kafka publication of calibrated records.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	threshold, err := parseFloat("SIMILARITY_THRESHOLD", "0.7")
	if err != nil || threshold <= 0 || threshold > 1 {
		return nil, errors.New("invalid SIMILARITY_THRESHOLD: must be in (0, 1]")
	}

	workers, err := parsePositiveInt("CALIBRATION_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	evalsPerParam, err := parsePositiveInt("FIT_EVALUATIONS_PER_PARAM", 10000)
	if err != nil {
		return nil, err
	}
	minTraining, err := parsePositiveInt("MIN_TRAINING_SAMPLES", 3)
	if err != nil {
		return nil, err
	}

	outlierSigma, err := parseFloat("OUTLIER_SIGMA", "0")
	if err != nil || outlierSigma < 0 {
		return nil, errors.New("invalid OUTLIER_SIGMA: must be a non-negative number")
	}

	kafkaEnabled := os.Getenv("KAFKA_ENABLED") == "true"

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ModelDir:       sharedcfg.EnvOrDefault("MODEL_DIR", "data/roads"),
		AggregatePath:  sharedcfg.EnvOrDefault("AGGREGATE_PATH", "data/aggregate.json"),
		ModelCacheSize: parseModelCacheSize(),

		SimilarityThreshold: threshold,

		SampleSource:            strings.ToLower(sharedcfg.EnvOrDefault("SAMPLE_SOURCE", SampleSourcePostgres)),
		SampleFile:              os.Getenv("SAMPLE_FILE"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		TrainingTrafficTable:    sharedcfg.EnvOrDefault("TRAINING_TRAFFIC_TABLE", "traffic"),
		TrainingRainfallTable:   sharedcfg.EnvOrDefault("TRAINING_RAINFALL_TABLE", "rainfall"),
		ValidationTrafficTable:  sharedcfg.EnvOrDefault("VALIDATION_TRAFFIC_TABLE", "traffic_aug13"),
		ValidationRainfallTable: sharedcfg.EnvOrDefault("VALIDATION_RAINFALL_TABLE", "rainfall_aug13"),

		CalibrationRoads:       parseList(os.Getenv("CALIBRATION_ROADS")),
		CalibrationWorkers:     workers,
		FitEvaluationsPerParam: evalsPerParam,
		MinTrainingSamples:     minTraining,
		OutlierSigma:           outlierSigma,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "road-speed-models"),
	}

	if cfg.ModelDir == "" {
		return nil, errors.New("MODEL_DIR is required")
	}
	if cfg.SampleSource != SampleSourcePostgres && cfg.SampleSource != SampleSourceFile {
		return nil, errors.New("invalid SAMPLE_SOURCE: must be postgres or file")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
	}

	return cfg, nil
}

// ValidateCalibration checks the settings only the calibration job needs.
func (c *Config) ValidateCalibration() error {
	switch c.SampleSource {
	case SampleSourcePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when SAMPLE_SOURCE is postgres")
		}
	case SampleSourceFile:
		if c.SampleFile == "" {
			return errors.New("SAMPLE_FILE is required when SAMPLE_SOURCE is file")
		}
	}
	if c.AggregatePath == "" {
		return errors.New("AGGREGATE_PATH is required for calibration")
	}
	return nil
}

func parseModelCacheSize() int {
	if s := os.Getenv("MODEL_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key + ": must be a positive integer")
	}
	return n, nil
}

func parseFloat(key, def string) (float64, error) {
	return strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
