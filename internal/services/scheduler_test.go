package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"auction-storefront/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls    atomic.Int32
	deadline atomic.Bool
	err      error
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	_, ok := ctx.Deadline()
	r.deadline.Store(ok)
	return r.err
}

func TestCountPoller_PollAppliesTimeout(t *testing.T) {
	r := &countingRefresher{err: errors.New("backend down")}
	p := NewCountPoller(r, "", time.Second, logger.NewNop())

	p.poll(context.Background())

	assert.Equal(t, int32(1), r.calls.Load())
	assert.True(t, r.deadline.Load())
}

func TestCountPoller_PollSkippedAfterCancel(t *testing.T) {
	r := &countingRefresher{}
	p := NewCountPoller(r, "", time.Second, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.poll(ctx)

	assert.Equal(t, int32(0), r.calls.Load())
}

func TestCountPoller_InvalidSchedule(t *testing.T) {
	p := NewCountPoller(&countingRefresher{}, "every now and then", time.Second, logger.NewNop())
	assert.Error(t, p.Start(context.Background()))
	assert.NoError(t, p.Stop())
}

func TestCountPoller_RunsOnSchedule(t *testing.T) {
	r := &countingRefresher{}
	p := NewCountPoller(r, "@every 1s", time.Second, logger.NewNop())

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrPollerRunning)

	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, p.Stop())

	calls := r.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, calls, r.calls.Load())
}

func TestCountPoller_RestartKeepsSingleEntry(t *testing.T) {
	r := &countingRefresher{}
	p := NewCountPoller(r, "@every 1s", time.Second, logger.NewNop())

	first, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(first))
	require.NoError(t, p.Stop())
	cancel()
	assert.Empty(t, p.cron.Entries())

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	assert.Len(t, p.cron.Entries(), 1)

	// Only the entry bound to the live context remains, so polls keep running.
	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}
