package booth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/snapkiosk/boothd/internal/delivery"
	"github.com/snapkiosk/boothd/internal/domain"
	"github.com/snapkiosk/boothd/internal/idempotency"
	"github.com/snapkiosk/boothd/internal/metrics"
)

// DefaultDwellBudgets is how long a session may sit in each state before the
// sweeper forces it back to IDLE. CAPTURING is deliberately absent: capture
// resolves through its own job completion or failure. ERROR has a separate
// grace so a customer can read the failure screen before the kiosk resets.
func DefaultDwellBudgets() map[domain.SessionState]time.Duration {
	return map[domain.SessionState]time.Duration{
		domain.StateSelecting:   30 * time.Second,
		domain.StateLivePreview: 30 * time.Second,
		domain.StateCountdown:   15 * time.Second,
		domain.StateProcessing:  30 * time.Second,
		domain.StatePreview:     30 * time.Second,
		domain.StateDelivering:  30 * time.Second,
		domain.StateDone:        5 * time.Second,
	}
}

// SweeperConfig tunes the sweep cadence and recovery budgets.
type SweeperConfig struct {
	Interval time.Duration
	Dwell    map[domain.SessionState]time.Duration

	// ErrorDwell is the grace before an ERROR session is reset to IDLE.
	// Zero disables error sweeping entirely (ERROR then waits for an
	// explicit finish or retry).
	ErrorDwell time.Duration

	// IdleEvictAfter is how long an IDLE session survives before being
	// evicted from the store. Finished sessions are never reused - create
	// always mints a fresh id - so without eviction they accumulate for the
	// kiosk's whole uptime.
	IdleEvictAfter time.Duration
}

// Sweeper periodically reclaims sessions stuck past their dwell budget and
// evicts expired idempotency and delivery entries. Failures of individual
// recoveries are swallowed; the next tick retries.
type Sweeper struct {
	orch   *Orchestrator
	idem   *idempotency.Cache
	tokens *delivery.Store
	clock  clockwork.Clock
	cfg    SweeperConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewSweeper(orch *Orchestrator, idem *idempotency.Cache, tokens *delivery.Store, clock clockwork.Clock, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Dwell == nil {
		cfg.Dwell = DefaultDwellBudgets()
	}

	return &Sweeper{
		orch:   orch,
		idem:   idem,
		tokens: tokens,
		clock:  clock,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the sweep loop on its own goroutine.
func (sw *Sweeper) Start() {
	ticker := sw.clock.NewTicker(sw.cfg.Interval)
	go func() {
		defer close(sw.done)
		for {
			select {
			case <-ticker.Chan():
				sw.Sweep()
			case <-sw.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
	slog.Info("Sweeper started", "interval", sw.cfg.Interval)
}

// Stop halts the sweep loop and waits for it to exit.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.stopCh)
	})
	<-sw.done
}

// Sweep runs one full pass. Exported so tests can drive it directly.
func (sw *Sweeper) Sweep() {
	start := sw.clock.Now()
	defer func() {
		metrics.SweepDurationSeconds.Observe(sw.clock.Since(start).Seconds())
	}()

	now := sw.clock.Now()

	sw.orch.sessions.Range(func(key, value any) bool {
		id := key.(string)
		h := value.(*handle)

		h.mu.Lock()
		state := h.session.State
		entered := h.session.StateEnteredAt
		h.mu.Unlock()

		elapsed := now.Sub(entered)

		switch state {
		case domain.StateCapturing:
			// Resolved by the job itself, never by timer.
			return true
		case domain.StateIdle:
			if sw.cfg.IdleEvictAfter > 0 && elapsed > sw.cfg.IdleEvictAfter {
				sw.orch.evict(id, h)
			}
			return true
		case domain.StateError:
			if sw.cfg.ErrorDwell > 0 && elapsed > sw.cfg.ErrorDwell {
				sw.recover(id, state, elapsed)
			}
			return true
		}

		if limit, ok := sw.cfg.Dwell[state]; ok && elapsed > limit {
			sw.recover(id, state, elapsed)
		}
		return true
	})

	sw.idem.CleanupExpired()
	sw.tokens.CleanupExpired()
}

// recover force-finishes one overdue session. The finish can lose a race with
// a concurrent legal transition; that is fine, the session is no longer stuck.
func (sw *Sweeper) recover(id string, state domain.SessionState, elapsed time.Duration) {
	reason := fmt.Sprintf("timeout in %s after %s", state, elapsed.Truncate(time.Second))

	if _, err := sw.orch.Finish(id, reason); err != nil {
		slog.Debug("Sweeper recovery skipped", "session_id", id, "state", string(state), "error", err)
		return
	}

	metrics.SweeperRecoveriesTotal.WithLabelValues(string(state)).Inc()
	slog.Warn("Session force-recovered", "session_id", id, "state", string(state), "elapsed", elapsed)
}
