package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/aliendabz/evalqueue/job"
)

// Logging returns middleware that logs evaluation start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (*job.Result, error) {
		logger.Debug("evaluation started",
			slog.String("job_id", j.ID.String()),
			slog.String("user_id", j.UserID),
			slog.String("priority", string(j.Priority)),
			slog.Int("retry_count", j.RetryCount),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("evaluation failed",
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
			return res, err
		}

		attrs := []any{
			slog.String("job_id", j.ID.String()),
			slog.Duration("elapsed", elapsed),
		}
		if res != nil {
			attrs = append(attrs, slog.Float64("score", res.Score), slog.Bool("passed", res.Passed))
		}
		logger.Info("evaluation completed", attrs...)
		return res, nil
	}
}
