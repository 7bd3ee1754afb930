package portfolio

import (
	"sync"
	"time"
)

// rebalanceLock is the per-portfolio mutual exclusion for rebalancing.
// It is deliberately state, not a scoped mutex: the pair
// (rebalancing, startedAt) is observable across tasks and carries a
// TTL so an abandoned rebalance cannot wedge the portfolio forever.
// The embedded mutex guards only these two fields and is never held
// across broker calls.
type rebalanceLock struct {
	ttl time.Duration
	now func() time.Time // test hook

	mu          sync.Mutex
	rebalancing bool
	startedAt   time.Time
}

func newRebalanceLock(ttl time.Duration) *rebalanceLock {
	return &rebalanceLock{ttl: ttl, now: time.Now}
}

// tryAcquire returns true when the caller now holds the lock. A held,
// unexpired lock yields false: the rebalance in flight subsumes the
// caller's. A held lock older than the TTL is stuck and is taken over.
func (l *rebalanceLock) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.rebalancing {
		l.rebalancing = true
		l.startedAt = now
		return true
	}
	if now.Sub(l.startedAt) < l.ttl {
		return false
	}
	// stuck lock takeover: liveness, not correctness
	l.startedAt = now
	return true
}

// release clears the lock. A caller that acquired must release on
// every exit path.
func (l *rebalanceLock) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebalancing = false
	l.startedAt = time.Time{}
}

// held reports whether the lock is currently taken.
func (l *rebalanceLock) held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rebalancing
}
