package chat

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyBackend wraps the volatile backend and fails the next n calls with
// a transient error, for exercising retry, fallback and demotion paths.
type flakyBackend struct {
	inner     *VolatileBackend
	failNext  atomic.Int32
	failAll   bool
	callCount atomic.Int32
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{inner: NewVolatileBackend()}
}

func (f *flakyBackend) maybeFail() error {
	f.callCount.Add(1)
	if f.failAll {
		return fmt.Errorf("redis set: %w", syscall.ECONNRESET)
	}
	if f.failNext.Load() > 0 {
		f.failNext.Add(-1)
		return fmt.Errorf("redis set: %w", syscall.ECONNRESET)
	}
	return nil
}

func (f *flakyBackend) Get(ctx context.Context, userID string) ([]Message, error) {
	if err := f.maybeFail(); err != nil {
		return nil, err
	}
	return f.inner.Get(ctx, userID)
}

func (f *flakyBackend) Set(ctx context.Context, userID string, history []Message) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	return f.inner.Set(ctx, userID, history)
}

func (f *flakyBackend) Delete(ctx context.Context, userID string) error {
	if err := f.maybeFail(); err != nil {
		return err
	}
	return f.inner.Delete(ctx, userID)
}

func (f *flakyBackend) Keys(ctx context.Context) ([]string, error) {
	if err := f.maybeFail(); err != nil {
		return nil, err
	}
	return f.inner.Keys(ctx)
}

func (f *flakyBackend) Close() error { return nil }

func TestOutageNeverSurfacesToCaller(t *testing.T) {
	backend := newFlakyBackend()
	backend.failAll = true
	s := newStoreWithBackend(backend, Options{FailureThreshold: 1000}, nil)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "u1", RoleUser, "hi"))

	got, err := s.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "hi", got[0].Content)
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	backend := newFlakyBackend()
	backend.failNext.Store(1)
	s := newStoreWithBackend(backend, Options{}, nil)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "u1", RoleUser, "hi"))

	// The first Get failed, the retry and the Set went through, so the
	// record landed on the durable side, not the fallback.
	durable, err := backend.inner.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, durable, 1)

	fallback, err := s.volatile.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, fallback)
}

func TestRepeatedFailuresDemoteForProcessLifetime(t *testing.T) {
	backend := newFlakyBackend()
	backend.failAll = true
	s := newStoreWithBackend(backend, Options{FailureThreshold: 2}, nil)
	ctx := context.Background()

	require.True(t, s.Durable())
	require.NoError(t, s.Append(ctx, "u1", RoleUser, "hi"))
	require.False(t, s.Durable(), "store should demote after the failure streak")

	// Once demoted, the durable backend is never touched again.
	before := backend.callCount.Load()
	require.NoError(t, s.Append(ctx, "u1", RoleUser, "still works"))
	assert.Equal(t, before, backend.callCount.Load())

	got, err := s.History(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	backend := newFlakyBackend()
	s := newStoreWithBackend(backend, Options{FailureThreshold: 3}, nil)
	ctx := context.Background()

	// Alternate one hard failure with healthy calls; the streak never
	// reaches the threshold so the store stays durable.
	for i := 0; i < 5; i++ {
		backend.failNext.Store(3) // survives the single retry
		require.NoError(t, s.Append(ctx, "u1", RoleUser, "msg"))
		require.NoError(t, s.Append(ctx, "u1", RoleUser, "msg"))
	}
	assert.True(t, s.Durable())
}

func TestUnreachableRedisFallsBackAtStartup(t *testing.T) {
	// Nothing listens on this port; the constructor must degrade, not fail.
	s := NewStore(context.Background(), Options{RedisURL: "redis://127.0.0.1:1"}, nil)
	defer s.Close()
	require.False(t, s.Durable())
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "u1", RoleUser, "hi"))
	got, err := s.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "hi", got[0].Content)
}
