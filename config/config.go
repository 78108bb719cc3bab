/*
Package config loads server settings from the environment.

An optional .env file in the working directory is read first; variables
already present in the environment win. Every key has a default, so an empty
environment yields a runnable in-memory server.

KEYS:
  SHIFT_ENGINE_PORT       HTTP port                       8080
  SHIFT_ENGINE_DB         SQLite path or ":memory:"        shifts.db
  SHIFT_ENGINE_SEED       JSON seed (properties, estimates) ""
  LOG_LEVEL               logrus level                     info
  LOG_FORMAT              text | json                      text
  PAYROLL_BASE_RATE       pay per regular hour             10
  PAYROLL_OVERTIME_RATE   pay per overtime hour            15
  PAYROLL_WEEKLY_LIMIT    regular hours per ISO week       44
  ESTIMATOR_TIMEOUT_MS    per-shift estimator budget       2000
  ESTIMATOR_RATE_PER_SEC  estimator calls per second, 0=∞  0
  DIRECTORY_CACHE_TTL     property cache TTL (duration)    10m
  KAFKA_BROKERS           comma separated, empty = off     ""
  KAFKA_TOPIC             event topic                      shift-engine.events
  NOTIFY_QUEUE_SIZE       event batches buffered for sinks 256
  NOTIFY_TIMEOUT          per-delivery budget (duration)   5s
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/warp/shift-engine/payroll"
)

type Config struct {
	Port     int
	DBPath   string
	SeedPath string

	LogLevel  logrus.Level
	LogFormat string

	Rates payroll.Rates

	EstimatorTimeout    time.Duration
	EstimatorRatePerSec float64
	DirectoryCacheTTL   time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	NotifyQueueSize int
	NotifyTimeout   time.Duration
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		DBPath:     getEnv("SHIFT_ENGINE_DB", "shifts.db"),
		SeedPath:   getEnv("SHIFT_ENGINE_SEED", ""),
		LogFormat:  strings.ToLower(getEnv("LOG_FORMAT", "text")),
		KafkaTopic: getEnv("KAFKA_TOPIC", "shift-engine.events"),
	}

	var err error
	cfg.Port, err = getEnvAsInt("SHIFT_ENGINE_PORT", 8080)
	collect(err)

	cfg.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		collect(fmt.Errorf("LOG_FORMAT: unknown format %q", cfg.LogFormat))
	}

	def := payroll.DefaultRates()
	cfg.Rates, err = payroll.ParseRates(
		getEnv("PAYROLL_BASE_RATE", def.Base.String()),
		getEnv("PAYROLL_OVERTIME_RATE", def.Overtime.String()),
		getEnv("PAYROLL_WEEKLY_LIMIT", def.WeeklyLimit.String()),
	)
	collect(err)

	ms, err := getEnvAsInt("ESTIMATOR_TIMEOUT_MS", 2000)
	collect(err)
	cfg.EstimatorTimeout = time.Duration(ms) * time.Millisecond

	cfg.EstimatorRatePerSec, err = getEnvAsFloat("ESTIMATOR_RATE_PER_SEC", 0)
	collect(err)

	cfg.DirectoryCacheTTL, err = getEnvAsDuration("DIRECTORY_CACHE_TTL", 10*time.Minute)
	collect(err)

	cfg.KafkaBrokers = getEnvAsList("KAFKA_BROKERS")

	cfg.NotifyQueueSize, err = getEnvAsInt("NOTIFY_QUEUE_SIZE", 256)
	collect(err)
	cfg.NotifyTimeout, err = getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second)
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// NewLogger builds the process logger from the config.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// KafkaEnabled reports whether events should also go to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// =============================================================================
// ENV HELPERS
// =============================================================================

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvAsFloat(key string, defaultVal float64) (float64, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return defaultVal, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
