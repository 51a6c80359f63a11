// Package lock provides the distributed, advisory flight mutex backing
// the inventory engine's critical sections.
package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"flightcore/internal/metrics"
	"flightcore/internal/models"
	"flightcore/internal/obslog"
	"flightcore/internal/scheduler"
	"flightcore/pkg/redis"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotAcquired is returned when the wait budget runs out before every
// requested key could be taken.
var ErrNotAcquired = fmt.Errorf("lock not acquired within wait budget")

// Handle identifies one successful acquisition. The token fences the
// release: only the goroutine holding the handle can free the keys, even
// after the TTL let another acquirer in.
type Handle struct {
	keys  []string
	token string
}

// Keys returns the Redis keys held by this handle, in acquisition order.
func (h *Handle) Keys() []string {
	return h.keys
}

// FlightMutex is a keyed mutex over Redis SETNX with TTL auto-release.
// lock_ttl bounds holder correctness; critical sections must stay shorter
// than it.
type FlightMutex struct {
	redis      *redis.Client
	clock      scheduler.Clock
	log        *obslog.Logger
	metrics    *metrics.Metrics
	lockTTL    time.Duration
	waitBudget time.Duration
	retryDelay time.Duration
}

// Options tunes a FlightMutex.
type Options struct {
	LockTTL    time.Duration
	WaitBudget time.Duration
	RetryDelay time.Duration
}

// NewFlightMutex creates a flight mutex with the given tuning.
func NewFlightMutex(redisClient *redis.Client, clock scheduler.Clock, log *obslog.Logger, m *metrics.Metrics, opts Options) *FlightMutex {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.WaitBudget <= 0 {
		opts.WaitBudget = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	return &FlightMutex{
		redis:      redisClient,
		clock:      clock,
		log:        log,
		metrics:    m,
		lockTTL:    opts.LockTTL,
		waitBudget: opts.WaitBudget,
		retryDelay: opts.RetryDelay,
	}
}

// Acquire takes the mutex for a single flight, retrying until the wait
// budget is spent.
func (m *FlightMutex) Acquire(ctx context.Context, flightID string) (*Handle, error) {
	return m.AcquireMany(ctx, []string{flightID})
}

// AcquireMany takes the mutexes for several flights. Keys are acquired in
// lexicographic order so two callers competing for overlapping sets never
// deadlock; a failure at position k releases positions 0..k-1.
func (m *FlightMutex) AcquireMany(ctx context.Context, flightIDs []string) (*Handle, error) {
	keys := make([]string, 0, len(flightIDs))
	seen := make(map[string]struct{}, len(flightIDs))
	for _, id := range flightIDs {
		key := models.FlightLockKey(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	token := uuid.New().String()
	handle := &Handle{token: token}

	for _, key := range keys {
		if err := m.acquireOne(ctx, key, token); err != nil {
			m.rollback(ctx, handle)
			m.metrics.LockWaitFailures.Inc()
			return nil, err
		}
		handle.keys = append(handle.keys, key)
		m.metrics.LocksHeld.Inc()
	}

	return handle, nil
}

// acquireOne spins with a fixed delay until the key is taken or the wait
// budget expires.
func (m *FlightMutex) acquireOne(ctx context.Context, key, token string) error {
	deadline := m.clock.Now().Add(m.waitBudget)

	for {
		ok, err := m.redis.AcquireLock(ctx, key, token, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		if !m.clock.Now().Before(deadline) {
			return ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}

// Release frees every key the handle still owns. A key whose TTL expired
// and was re-acquired by someone else is left alone; that is logged, not
// an error, since release-after-expiry is best-effort.
func (m *FlightMutex) Release(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}
	m.rollback(ctx, h)
}

func (m *FlightMutex) rollback(ctx context.Context, h *Handle) {
	for _, key := range h.keys {
		released, err := m.redis.ReleaseLock(ctx, key, h.token)
		if err != nil {
			m.log.Warn("lock release failed", zap.String("key", key), zap.Error(err))
		} else if !released {
			m.log.Warn("lock already expired or stolen at release", zap.String("key", key))
		}
		m.metrics.LocksHeld.Dec()
	}
	h.keys = nil
}
