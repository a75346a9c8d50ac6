package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TemirB/order-service/internal/config"
)

func newTestBreaker(cfg config.Breaker) (*Breaker, *time.Time) {
	b := New(cfg)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(config.Breaker{Threshold: 3, OpenTimeout: time.Second, MaxHalfOpen: 1})

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Failure()
		require.Equal(t, Closed, b.State())
	}
	require.NoError(t, b.Allow())
	b.Failure()
	require.Equal(t, Open, b.State())
	require.ErrorIs(t, b.Allow(), ErrOpenState)
}

func TestSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(config.Breaker{Threshold: 2, OpenTimeout: time.Second, MaxHalfOpen: 1})

	b.Failure()
	b.Success()
	b.Failure()
	require.Equal(t, Closed, b.State())
}

func TestHalfOpenRecovery(t *testing.T) {
	b, now := newTestBreaker(config.Breaker{Threshold: 1, OpenTimeout: 10 * time.Second, MaxHalfOpen: 2})

	b.Failure()
	require.Equal(t, Open, b.State())

	*now = now.Add(9 * time.Second)
	require.ErrorIs(t, b.Allow(), ErrOpenState)

	*now = now.Add(time.Second)
	require.NoError(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())
	require.NoError(t, b.Allow())
	require.ErrorIs(t, b.Allow(), ErrOpenState, "only MaxHalfOpen trial calls pass")

	b.Success()
	require.Equal(t, Closed, b.State())
	require.NoError(t, b.Allow())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(config.Breaker{Threshold: 1, OpenTimeout: time.Second, MaxHalfOpen: 1})

	b.Failure()
	*now = now.Add(time.Second)
	require.NoError(t, b.Allow())

	b.Failure()
	require.Equal(t, Open, b.State())
	require.ErrorIs(t, b.Allow(), ErrOpenState)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "closed", Closed.String())
	require.Equal(t, "open", Open.String())
	require.Equal(t, "half-open", HalfOpen.String())
}
