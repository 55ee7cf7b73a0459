// Package store holds job store backends.
//
// The job table contract is [job.Store]. The only backend is
// store/memory: the queue keeps no state across restarts, so the
// in-process table is authoritative.
//
//	s := memory.New()
//	eng, err := engine.New(evaluator, engine.WithStore(s))
package store
