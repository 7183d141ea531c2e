// Package booth is the session orchestration core.
//
// It owns the in-memory session store, enforces the lifecycle state machine,
// dispatches capture/AI work to a bounded worker pool, and runs the sweeper
// that reclaims sessions stuck past their per-state dwell budget. Each session
// lives behind its own lock; the store lookup itself is lock-free. Async jobs
// never hold a session lock across blocking I/O - they re-acquire it at each
// checkpoint and re-validate both the transition and the session generation,
// discarding their result if the session was reset underneath them.
package booth
