package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebalanceLock(t *testing.T) {
	current := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newRebalanceLock(6 * time.Hour)
	l.now = func() time.Time { return current }

	require.True(t, l.tryAcquire())
	assert.True(t, l.held())

	// held and fresh: second caller is refused
	assert.False(t, l.tryAcquire())

	// just under the TTL: still refused
	current = current.Add(6*time.Hour - time.Second)
	assert.False(t, l.tryAcquire())

	// past the TTL: the lock is stuck and gets taken over
	current = current.Add(2 * time.Second)
	assert.True(t, l.tryAcquire())
	assert.True(t, l.held())

	// the takeover restarted the clock
	current = current.Add(time.Hour)
	assert.False(t, l.tryAcquire())

	l.release()
	assert.False(t, l.held())
	assert.True(t, l.tryAcquire())
}
