// Package job defines the evaluation job entity, its state machine, and
// the store interface.
//
// # Job Entity
//
// A [Job] is the scheduling record of one code submission. Its identity
// (ID, UserID, ProjectID) and [Submission] never change; its scheduling
// state progresses through:
//
//	pending → processing → evaluating → completed
//	pending → processing → evaluating → failed
//	failed → retrying → pending
//	pending | processing | evaluating | retrying → cancelled
//
// Fields of note:
//   - Priority: the admission tier, ordered by configured weights
//   - Position: insertion sequence number, the tie-break within a tier
//   - MaxRetries / RetryCount: the retry budget
//   - QueuedAt: when the current attempt entered pending
//   - CompletedAt: the terminal timestamp for completed, failed and cancelled
//
// Jobs handed out by a [Store] are copies. Mutations go through
// [Store.UpdateJob] so readers never observe a half-applied transition.
package job
