package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEveryRunsJob(t *testing.T) {
	s := New(zaptest.NewLogger(t))
	var runs atomic.Int32
	require.NoError(t, s.Every("tick", time.Second, func(context.Context) { runs.Add(1) }))

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestEveryRejectsDuplicates(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Every("a", time.Second, func(context.Context) {}))
	assert.Error(t, s.Every("a", time.Second, func(context.Context) {}))
	assert.Equal(t, []string{"a"}, s.Jobs())
}

func TestRunNowRequiresStart(t *testing.T) {
	s := New(nil)
	var runs atomic.Int32
	require.NoError(t, s.Every("memory", 5*time.Second, func(context.Context) { runs.Add(1) }))

	require.NoError(t, s.RunNow("memory"))
	assert.Zero(t, runs.Load(), "jobs do not run before Start")

	s.Start(context.Background())
	require.NoError(t, s.RunNow("memory"))
	assert.Equal(t, int32(1), runs.Load())
	s.Stop()

	require.NoError(t, s.RunNow("memory"))
	assert.Equal(t, int32(1), runs.Load(), "jobs do not run after Stop")
	assert.Error(t, s.RunNow("missing"))
}

func TestStopCancelsJobContext(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, s.Every("slow", time.Second, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	}))

	s.Start(context.Background())
	<-started
	s.Stop()

	select {
	case <-finished:
	default:
		t.Fatal("Stop returned before the running job finished")
	}
}

func TestParentCancelStopsJobs(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	require.NoError(t, s.Every("x", time.Second, func(context.Context) { runs.Add(1) }))

	s.Start(ctx)
	cancel()
	require.NoError(t, s.RunNow("x"))
	assert.Zero(t, runs.Load())
	s.Stop()
}
