package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// DBSource is the postgres connection string. Empty selects the
	// in-memory store.
	DBSource string
	Port     string
	Env      string

	// AMQPURL enables settlement event publishing when set.
	AMQPURL      string
	AMQPExchange string

	// BatchWindow is the NEFT settlement window size; BatchPoll is how often
	// the runner looks for due transfers.
	BatchWindow time.Duration
	BatchPoll   time.Duration
	BatchLimit  int
}

func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		DBSource:     os.Getenv("DB_SOURCE"),
		Port:         getEnv("SERVER_PORT", "8080"),
		Env:          getEnv("ENVIRONMENT", "development"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: os.Getenv("AMQP_EXCHANGE"),
		BatchWindow:  time.Hour,
		BatchPoll:    time.Minute,
		BatchLimit:   500,
	}

	if v := os.Getenv("BATCH_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_WINDOW %q: %w", v, err)
		}
		cfg.BatchWindow = d
	}
	if v := os.Getenv("BATCH_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_POLL_INTERVAL %q: %w", v, err)
		}
		cfg.BatchPoll = d
	}
	if v := os.Getenv("BATCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid BATCH_LIMIT %q", v)
		}
		cfg.BatchLimit = n
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
