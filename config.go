package evalqueue

import (
	"fmt"
	"time"
)

// Config holds the process-wide queue configuration. It is fixed once an
// engine is built.
type Config struct {
	// MaxConcurrentJobs is the number of evaluations that may be in
	// flight at once. It also sizes the worker pool.
	MaxConcurrentJobs int `json:"max_concurrent_jobs"`

	// MaxRetries is the number of automatic or explicit retries a job
	// gets after its first attempt.
	MaxRetries int `json:"max_retries"`

	// RetryDelay is the flat delay before an automatic retry.
	RetryDelay time.Duration `json:"retry_delay"`

	// AutoRetry schedules retries automatically after a failed attempt.
	// When false, failed jobs wait for an explicit retry.
	AutoRetry bool `json:"auto_retry"`

	// PriorityWeights orders tiers for admission.
	PriorityWeights PriorityWeights `json:"priority_weights"`

	// Timeout bounds a single evaluation attempt.
	Timeout time.Duration `json:"timeout"`

	// SweepInterval is how often terminal jobs are evicted.
	SweepInterval time.Duration `json:"sweep_interval"`

	// RetentionWindow is how long a terminal job is kept.
	RetentionWindow time.Duration `json:"retention_window"`

	// SubmitRate is the sustained submissions per second allowed per
	// user. Zero disables submission rate limiting.
	SubmitRate float64 `json:"submit_rate"`

	// SubmitBurst is the token-bucket burst for SubmitRate.
	SubmitBurst int `json:"submit_burst"`

	// ProcessingEstimate stands in for the average processing time
	// until at least one job has completed.
	ProcessingEstimate time.Duration `json:"processing_estimate"`

	// ShutdownTimeout bounds how long Stop waits for workers to exit
	// after their in-flight evaluations have been cancelled.
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs:  3,
		MaxRetries:         3,
		RetryDelay:         5 * time.Second,
		AutoRetry:          true,
		PriorityWeights:    DefaultPriorityWeights(),
		Timeout:            5 * time.Minute,
		SweepInterval:      time.Hour,
		RetentionWindow:    24 * time.Hour,
		SubmitBurst:        1,
		ProcessingEstimate: 30 * time.Second,
		ShutdownTimeout:    30 * time.Second,
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrentJobs <= 0:
		return fmt.Errorf("%w: max concurrent jobs must be positive, got %d", ErrInvalidConfig, c.MaxConcurrentJobs)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.SweepInterval <= 0:
		return fmt.Errorf("%w: sweep interval must be positive", ErrInvalidConfig)
	case c.RetentionWindow <= 0:
		return fmt.Errorf("%w: retention window must be positive", ErrInvalidConfig)
	case c.SubmitRate < 0:
		return fmt.Errorf("%w: submit rate must not be negative", ErrInvalidConfig)
	}
	for _, p := range Priorities() {
		if _, ok := c.PriorityWeights[p]; !ok {
			return fmt.Errorf("%w: missing weight for priority %q", ErrInvalidConfig, p)
		}
	}
	return nil
}
