package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	WorkDir    string
	OWPOutRoot string

	// Benchmark catalog location.
	CatalogBucket string
	CatalogKey    string

	// Object stores.
	AWSRegion         string
	S3Endpoint        string
	HANDBucket        string
	HANDVersion       string
	NWMRetroBucket    string
	NWMForecastBucket string

	GeoGLOWSURL string
	USGSURL     string

	InundationRepoURL string
	PythonBin         string

	Workers     int
	HTTPTimeout time.Duration
	HTTPAddr    string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Lifecycle event publishing.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	USGSCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("HTTP_TIMEOUT", "30s"))
	if err != nil || httpTimeout <= 0 {
		return nil, errors.New("invalid HTTP_TIMEOUT")
	}

	workers, err := strconv.Atoi(sharedcfg.EnvOrDefault("WORKERS", "20"))
	if err != nil || workers <= 0 || workers > 256 {
		return nil, errors.New("WORKERS must be between 1 and 256")
	}

	workDir := os.Getenv("WORK_DIR")
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	kafkaEnabled := brokers != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}
	if brokers == "" {
		brokers = "localhost:9092"
	}

	cfg := &Config{
		WorkDir:           workDir,
		OWPOutRoot:        sharedcfg.EnvOrDefault("OWP_OUT_ROOT", filepath.Join(workDir, "output")),
		CatalogBucket:     sharedcfg.EnvOrDefault("CATALOG_BUCKET", "sdmlab"),
		CatalogKey:        sharedcfg.EnvOrDefault("CATALOG_KEY", "FIM_Database/FIM_Viz/catalog_core.json"),
		AWSRegion:         sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		HANDBucket:        sharedcfg.EnvOrDefault("HAND_BUCKET", "ciroh-owp-hand-fim"),
		HANDVersion:       sharedcfg.EnvOrDefault("HAND_VERSION", "4.8"),
		NWMRetroBucket:    sharedcfg.EnvOrDefault("NWM_RETRO_BUCKET", "noaa-nwm-retrospective-3-0-pds"),
		NWMForecastBucket: sharedcfg.EnvOrDefault("NWM_FORECAST_BUCKET", "national-water-model"),
		GeoGLOWSURL:       sharedcfg.EnvOrDefault("GEOGLOWS_URL", "https://geoglows.ecmwf.int/api/v2"),
		USGSURL:           sharedcfg.EnvOrDefault("USGS_URL", "https://waterservices.usgs.gov/nwis/iv/"),
		InundationRepoURL: sharedcfg.EnvOrDefault("INUNDATION_REPO_URL", "https://github.com/NOAA-OWP/inundation-mapping.git"),
		PythonBin:         sharedcfg.EnvOrDefault("PYTHON_BIN", "python3"),
		Workers:           workers,
		HTTPTimeout:       httpTimeout,
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		KafkaBrokers:      sharedcfg.ParseBrokers(brokers),
		KafkaTopic:        sharedcfg.EnvOrDefault("KAFKA_TOPIC", "fim-events"),
		KafkaEnabled:      kafkaEnabled,
		USGSCacheSize:     parseUSGSCacheSize(),
	}

	if cfg.CatalogBucket == "" || cfg.CatalogKey == "" {
		return nil, errors.New("CATALOG_BUCKET and CATALOG_KEY are required")
	}
	if cfg.HANDVersion != "4.8" && cfg.HANDVersion != "4.5" {
		return nil, errors.New("HAND_VERSION must be 4.8 or 4.5")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required")
	}

	return cfg, nil
}

func parseUSGSCacheSize() int {
	if s := os.Getenv("USGS_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
