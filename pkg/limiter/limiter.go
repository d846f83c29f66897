// Package limiter implements the Resource Limiter: the write path's
// backpressure gate. Grounded on
// original_source/src/raft/node/resource_limiter.rs, translated from
// tokio::sync::Semaphore + Drop-based RAII into
// golang.org/x/sync/semaphore.Weighted + an explicit Release() method, the
// idiomatic Go substitute for a scope guard.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Limits configures the four simultaneous constraints the limiter enforces.
type Limits struct {
	MaxRequestsPerSecond  uint32
	MaxRequestSize        int64
	MaxMemoryUsage        int64
	MaxConcurrentRequests int64
}

// DefaultLimits mirrors ResourceLimits::default() from the source: generous
// enough not to bite single-node development clusters.
func DefaultLimits() Limits {
	return Limits{
		MaxRequestsPerSecond:  100,
		MaxRequestSize:        1024 * 1024,
		MaxMemoryUsage:        64 * 1024 * 1024,
		MaxConcurrentRequests: 1000,
	}
}

type rateState struct {
	count       uint32
	windowStart time.Time
}

// Limiter guards the write path with per-client rate limiting, a request
// size cap, an in-flight memory cap, and a non-blocking concurrency gate.
type Limiter struct {
	limitsMu sync.RWMutex
	limits   Limits

	sem              *semaphore.Weighted
	inUsePermits     atomic.Int64
	currentMemory    atomic.Int64
	totalRequests    atomic.Uint64
	rejectedRequests atomic.Uint64

	rateMu sync.Mutex
	rate   map[string]*rateState
}

// New constructs a Limiter enforcing limits.
func New(limits Limits) *Limiter {
	return &Limiter{
		limits: limits,
		sem:    semaphore.NewWeighted(limits.MaxConcurrentRequests),
		rate:   make(map[string]*rateState),
	}
}

// Limits returns the limiter's current configuration.
func (l *Limiter) Limits() Limits {
	l.limitsMu.RLock()
	defer l.limitsMu.RUnlock()
	return l.limits
}

// UpdateLimits swaps in new limits. Changing MaxConcurrentRequests does not
// resize the live semaphore; it takes effect for newly constructed Limiters
// only, matching the source's documented restart-required caveat.
func (l *Limiter) UpdateLimits(newLimits Limits) {
	l.limitsMu.Lock()
	defer l.limitsMu.Unlock()
	l.limits = newLimits
}

// Permit is a scoped reservation: it holds one concurrency slot and a byte
// count, releasing both exactly once via Release.
type Permit struct {
	l           *Limiter
	requestSize int64
	released    atomic.Bool
}

// Release gives back the concurrency slot and the reserved memory. It is
// safe to call more than once; only the first call has effect.
func (p *Permit) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	p.l.currentMemory.Add(-p.requestSize)
	p.l.inUsePermits.Add(-1)
	p.l.sem.Release(1)
}

// Acquire checks the request against all four constraints and, if admitted,
// returns a Permit the caller must Release when the request completes.
// clientID is optional; an empty string skips per-client rate limiting.
func (l *Limiter) Acquire(clientID string, requestSize int64) (*Permit, error) {
	l.totalRequests.Add(1)

	limits := l.Limits()

	if requestSize > limits.MaxRequestSize {
		l.rejectedRequests.Add(1)
		return nil, fmt.Errorf("request size %d exceeds limit %d", requestSize, limits.MaxRequestSize)
	}

	current := l.currentMemory.Load()
	if current+requestSize > limits.MaxMemoryUsage {
		l.rejectedRequests.Add(1)
		return nil, fmt.Errorf("memory usage limit exceeded: current=%d, request=%d, limit=%d", current, requestSize, limits.MaxMemoryUsage)
	}

	if clientID != "" {
		if err := l.checkRate(clientID, limits.MaxRequestsPerSecond); err != nil {
			l.rejectedRequests.Add(1)
			return nil, err
		}
	}

	if !l.sem.TryAcquire(1) {
		l.rejectedRequests.Add(1)
		return nil, fmt.Errorf("too many concurrent requests: limit=%d", limits.MaxConcurrentRequests)
	}
	l.inUsePermits.Add(1)
	l.currentMemory.Add(requestSize)

	return &Permit{l: l, requestSize: requestSize}, nil
}

func (l *Limiter) checkRate(clientID string, maxPerSecond uint32) error {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()

	now := time.Now()
	state, ok := l.rate[clientID]
	if !ok {
		state = &rateState{windowStart: now}
		l.rate[clientID] = state
	}

	if now.Sub(state.windowStart) >= time.Second {
		state.count = 0
		state.windowStart = now
	}

	if state.count >= maxPerSecond {
		return fmt.Errorf("rate limit exceeded for client %s: %d requests/second", clientID, state.count)
	}

	state.count++
	return nil
}

// AcquireContext is Acquire honoring ctx cancellation. TryAcquire itself
// never blocks, so this only short-circuits a request whose context is
// already done rather than admitting work nobody will collect the result of.
func (l *Limiter) AcquireContext(ctx context.Context, clientID string, requestSize int64) (*Permit, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return l.Acquire(clientID, requestSize)
}

// Stats is a point-in-time snapshot of resource usage.
type Stats struct {
	TotalRequests         uint64
	RejectedRequests      uint64
	CurrentMemoryUsage    int64
	AvailablePermits      int64
	MaxConcurrentRequests int64
}

// SuccessRate returns the fraction of requests admitted, in [0, 1].
func (s Stats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 1.0
	}
	return float64(s.TotalRequests-s.RejectedRequests) / float64(s.TotalRequests)
}

// MemoryUsageRate returns current memory usage as a fraction of maxMemory.
func (s Stats) MemoryUsageRate(maxMemory int64) float64 {
	if maxMemory == 0 {
		return 0
	}
	return float64(s.CurrentMemoryUsage) / float64(maxMemory)
}

// ConcurrencyUsageRate returns the fraction of concurrency slots in use.
func (s Stats) ConcurrencyUsageRate() float64 {
	if s.MaxConcurrentRequests == 0 {
		return 0
	}
	used := s.MaxConcurrentRequests - s.AvailablePermits
	return float64(used) / float64(s.MaxConcurrentRequests)
}

// Stats returns a snapshot of the limiter's current counters.
func (l *Limiter) Stats() Stats {
	limits := l.Limits()
	inUse := l.inUsePermits.Load()
	return Stats{
		TotalRequests:         l.totalRequests.Load(),
		RejectedRequests:      l.rejectedRequests.Load(),
		CurrentMemoryUsage:    l.currentMemory.Load(),
		AvailablePermits:      limits.MaxConcurrentRequests - inUse,
		MaxConcurrentRequests: limits.MaxConcurrentRequests,
	}
}
