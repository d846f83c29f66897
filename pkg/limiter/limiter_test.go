package limiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiterStartsClean(t *testing.T) {
	l := New(DefaultLimits())
	stats := l.Stats()
	assert.Zero(t, stats.TotalRequests)
	assert.Zero(t, stats.RejectedRequests)
	assert.Zero(t, stats.CurrentMemoryUsage)
}

func TestRequestSizeLimit(t *testing.T) {
	l := New(DefaultLimits())

	_, err := l.Acquire("", 2*1024*1024)
	require.Error(t, err)
	assert.EqualValues(t, 1, l.Stats().RejectedRequests)
}

func TestMemoryLimitAndRelease(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxMemoryUsage = 1024
	limits.MaxRequestSize = 1024
	l := New(limits)

	permit1, err := l.Acquire("", 512)
	require.NoError(t, err)

	_, err = l.Acquire("", 513)
	require.Error(t, err, "512+513 exceeds the 1024 byte cap")

	permit1.Release()

	_, err = l.Acquire("", 512)
	require.NoError(t, err)
}

func TestConcurrencyLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxConcurrentRequests = 1
	l := New(limits)

	permit, err := l.Acquire("client-a", 1)
	require.NoError(t, err)

	_, err = l.Acquire("client-b", 1)
	require.Error(t, err)

	permit.Release()
	_, err = l.Acquire("client-b", 1)
	require.NoError(t, err)
}

func TestPerClientRateLimit(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxRequestsPerSecond = 2
	limits.MaxConcurrentRequests = 100
	l := New(limits)

	p1, err := l.Acquire("client-a", 1)
	require.NoError(t, err)
	p2, err := l.Acquire("client-a", 1)
	require.NoError(t, err)

	_, err = l.Acquire("client-a", 1)
	require.Error(t, err, "third request within the same window should be rejected")

	// A different client has its own independent window.
	p3, err := l.Acquire("client-b", 1)
	require.NoError(t, err)

	p1.Release()
	p2.Release()
	p3.Release()
}

func TestDoubleReleaseIsSafe(t *testing.T) {
	l := New(DefaultLimits())
	permit, err := l.Acquire("", 10)
	require.NoError(t, err)
	permit.Release()
	permit.Release()
	assert.Zero(t, l.Stats().CurrentMemoryUsage)
}

func TestStatsRates(t *testing.T) {
	stats := Stats{
		TotalRequests:         100,
		RejectedRequests:      10,
		CurrentMemoryUsage:    1024,
		AvailablePermits:      40,
		MaxConcurrentRequests: 50,
	}
	assert.InDelta(t, 0.9, stats.SuccessRate(), 0.0001)
	assert.InDelta(t, 0.5, stats.MemoryUsageRate(2048), 0.0001)
	assert.InDelta(t, 0.2, stats.ConcurrencyUsageRate(), 0.0001)
}
