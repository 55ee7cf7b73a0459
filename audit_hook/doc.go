// Package audithook turns queue lifecycle events into audit records.
//
// A [Hook] subscribes to the event bus and emits one [AuditEvent] per
// item transition through a [Recorder]. Severity is info for normal
// progress, warning for a failed attempt that will be retried and
// critical for a job that failed for good. queue_updated snapshots are
// not audited.
//
//	eng, _ := engine.New(ev, engine.WithAuditRecorder(
//	    audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	        return auditLog.Append(ctx, evt)
//	    }),
//	))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionEvaluationFailed,
//	        audithook.ActionEvaluationCancelled,
//	    ),
//	)
package audithook
