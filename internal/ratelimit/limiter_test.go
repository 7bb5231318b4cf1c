package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limits map[Scope]int) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, limits)
}

func TestLimiter_AdmitsUnderLimit(t *testing.T) {
	l := newTestLimiter(t, map[Scope]int{ScopeWallet: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, ScopeWallet, "w1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestLimiter_RejectsAtLimit(t *testing.T) {
	l := newTestLimiter(t, map[Scope]int{ScopeWallet: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, ScopeWallet, "w1")
		require.NoError(t, err)
	}

	d, err := l.Allow(ctx, ScopeWallet, "w1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
}

func TestLimiter_SubjectsAreIndependent(t *testing.T) {
	l := newTestLimiter(t, map[Scope]int{ScopeWallet: 1})
	ctx := context.Background()

	d1, err := l.Allow(ctx, ScopeWallet, "w1")
	require.NoError(t, err)
	require.True(t, d1.Allowed)

	d2, err := l.Allow(ctx, ScopeWallet, "w2")
	require.NoError(t, err)
	require.True(t, d2.Allowed)
}

func TestLimiter_UnconfiguredScopeIsUnlimited(t *testing.T) {
	l := newTestLimiter(t, map[Scope]int{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := l.Allow(ctx, ScopeUser, "u1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
}

func TestLimiter_AllowMutation_ShortCircuitsOnFirstRejection(t *testing.T) {
	l := newTestLimiter(t, map[Scope]int{ScopeWallet: 1, ScopeUser: 100})
	ctx := context.Background()

	_, err := l.AllowMutation(ctx, "w1", "alice")
	require.NoError(t, err)

	d, err := l.AllowMutation(ctx, "w1", "alice")
	require.NoError(t, err)
	require.False(t, d.Allowed)
}

func TestLimiter_FailsOpenWhenStoreUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	l := New(rdb, map[Scope]int{ScopeWallet: 1})

	d, err := l.Allow(context.Background(), ScopeWallet, "w1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
}
