package audithook

import "github.com/aliendabz/evalqueue/event"

// Audit event actions. Each one corresponds to an item event kind.
const (
	ActionEvaluationQueued    = "evaluation.queued"
	ActionEvaluationRequeued  = "evaluation.requeued"
	ActionEvaluationStarted   = "evaluation.started"
	ActionEvaluationCompleted = "evaluation.completed"
	ActionEvaluationFailed    = "evaluation.failed"
	ActionEvaluationCancelled = "evaluation.cancelled"
)

// CategoryEvaluation groups every action.
const CategoryEvaluation = "evalqueue.evaluation"

// ResourceJob is the Resource of every audit event.
const ResourceJob = "job"

// AllActions returns every action the hook can emit.
func AllActions() []string {
	return []string{
		ActionEvaluationQueued,
		ActionEvaluationRequeued,
		ActionEvaluationStarted,
		ActionEvaluationCompleted,
		ActionEvaluationFailed,
		ActionEvaluationCancelled,
	}
}

// actionFor maps an event to its audit action. A job re-entering the
// queue after a failure is a requeue rather than a new submission.
func actionFor(evt event.Event) (string, bool) {
	switch evt.Kind {
	case event.KindItemAdded:
		if evt.Job != nil && evt.Job.RetryCount > 0 {
			return ActionEvaluationRequeued, true
		}
		return ActionEvaluationQueued, true
	case event.KindItemStarted:
		return ActionEvaluationStarted, true
	case event.KindItemCompleted:
		return ActionEvaluationCompleted, true
	case event.KindItemFailed:
		return ActionEvaluationFailed, true
	case event.KindItemCancelled:
		return ActionEvaluationCancelled, true
	default:
		return "", false
	}
}
