package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aliendabz/evalqueue"
)

// Settings is the binary's configuration.
type Settings struct {
	Addr         string
	EvaluatorURL string
	LogLevel     slog.Level
	Queue        evalqueue.Config
}

// loadSettings reads EVALQUEUE_* variables over the queue defaults.
func loadSettings() (Settings, error) {
	s := Settings{
		Addr:         getEnv("EVALQUEUE_ADDR", ":8080"),
		EvaluatorURL: getEnv("EVALQUEUE_EVALUATOR_URL", ""),
		Queue:        evalqueue.DefaultConfig(),
	}

	if err := s.LogLevel.UnmarshalText([]byte(getEnv("EVALQUEUE_LOG_LEVEL", "info"))); err != nil {
		return s, fmt.Errorf("EVALQUEUE_LOG_LEVEL: %w", err)
	}

	q := &s.Queue
	var err error
	if q.MaxConcurrentJobs, err = getEnvInt("EVALQUEUE_MAX_CONCURRENT_JOBS", q.MaxConcurrentJobs); err != nil {
		return s, err
	}
	if q.MaxRetries, err = getEnvInt("EVALQUEUE_MAX_RETRIES", q.MaxRetries); err != nil {
		return s, err
	}
	if q.AutoRetry, err = getEnvBool("EVALQUEUE_AUTO_RETRY", q.AutoRetry); err != nil {
		return s, err
	}
	if q.RetryDelay, err = getEnvDuration("EVALQUEUE_RETRY_DELAY", q.RetryDelay); err != nil {
		return s, err
	}
	if q.Timeout, err = getEnvDuration("EVALQUEUE_TIMEOUT", q.Timeout); err != nil {
		return s, err
	}
	if q.SweepInterval, err = getEnvDuration("EVALQUEUE_SWEEP_INTERVAL", q.SweepInterval); err != nil {
		return s, err
	}
	if q.RetentionWindow, err = getEnvDuration("EVALQUEUE_RETENTION", q.RetentionWindow); err != nil {
		return s, err
	}
	if q.SubmitRate, err = getEnvFloat("EVALQUEUE_SUBMIT_RATE", q.SubmitRate); err != nil {
		return s, err
	}
	if q.SubmitBurst, err = getEnvInt("EVALQUEUE_SUBMIT_BURST", q.SubmitBurst); err != nil {
		return s, err
	}
	if q.ShutdownTimeout, err = getEnvDuration("EVALQUEUE_SHUTDOWN_TIMEOUT", q.ShutdownTimeout); err != nil {
		return s, err
	}

	return s, q.Validate()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
