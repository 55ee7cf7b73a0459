// Package queue holds the dispatcher's admission structures: the
// prioritized ready queue workers pull from, and the per-user
// submission limiter.
//
// Ready orders pending jobs by priority weight (highest first) and then
// by position (oldest first). It is not safe for concurrent use; the
// worker pool guards it with its own mutex.
//
// Limiter is a token bucket per user and is safe for concurrent use.
package queue
