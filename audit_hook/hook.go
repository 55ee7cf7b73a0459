package audithook

import (
	"context"
	"log/slog"
	"time"

	"github.com/aliendabz/evalqueue/event"
	"github.com/aliendabz/evalqueue/job"
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// AuditEvent is one audited transition.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id"`
	ActorID    string         `json:"actor_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Hook bridges bus events to a Recorder. Register [Hook.Handle] with the
// bus.
type Hook struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates a Hook that emits audit events through r.
func New(r Recorder, opts ...Option) *Hook {
	h := &Hook{recorder: r, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle is an event.Handler. Recorder failures are logged, not
// returned, so an audit outage never surfaces as a subscriber error.
func (h *Hook) Handle(evt event.Event) error {
	action, ok := actionFor(evt)
	if !ok || evt.Job == nil {
		return nil
	}
	if h.enabled != nil && !h.enabled[action] {
		return nil
	}

	ae := build(action, evt.Job, evt.Timestamp)
	if err := h.recorder.Record(context.Background(), ae); err != nil {
		h.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", ae.ResourceID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func build(action string, j *job.Job, ts time.Time) *AuditEvent {
	ae := &AuditEvent{
		Action:     action,
		Resource:   ResourceJob,
		Category:   CategoryEvaluation,
		ResourceID: j.ID.String(),
		ActorID:    j.UserID,
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
		Timestamp:  ts,
		Metadata: map[string]any{
			"project_id":  j.ProjectID,
			"priority":    string(j.Priority),
			"retry_count": j.RetryCount,
		},
	}

	switch action {
	case ActionEvaluationCompleted:
		ae.Metadata["processing_ms"] = j.ProcessingTime.Milliseconds()
		if j.Result != nil {
			ae.Metadata["score"] = j.Result.Score
			ae.Metadata["passed"] = j.Result.Passed
		}
	case ActionEvaluationFailed:
		ae.Outcome = OutcomeFailure
		ae.Reason = j.Error
		ae.Severity = SeverityCritical
		if j.CanRetry() {
			ae.Severity = SeverityWarning
		}
	case ActionEvaluationRequeued:
		ae.Severity = SeverityWarning
	}
	return ae
}
