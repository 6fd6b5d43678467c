package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func TestScheduler_RunsDueJobs(t *testing.T) {
	var runs atomic.Int32
	s := New(Config{TickInterval: 5 * time.Millisecond})
	require.NoError(t, s.Register(&funcJob{name: "count", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 10ms", jobs[0].Schedule)
	assert.GreaterOrEqual(t, jobs[0].RunCount, int64(2))
	assert.Zero(t, jobs[0].FailCount)
}

func TestScheduler_Register(t *testing.T) {
	s := New(Config{})
	job := &funcJob{name: "a", fn: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrInvalidSchedule)
	assert.ErrorIs(t, s.Register(job, Every(0)), ErrInvalidSchedule)
	require.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(Config{})
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	errBoom := errors.New("boom")
	s := New(Config{MaxHistorySize: 2})
	require.NoError(t, s.Register(&funcJob{name: "ok", fn: func(context.Context) error { return nil }}, Every(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "bad", fn: func(context.Context) error { return errBoom }}, Every(time.Hour)))
	require.NoError(t, s.Register(&funcJob{name: "panics", fn: func(context.Context) error { panic("nil map") }}, Every(time.Hour)))

	ctx := context.Background()
	res, err := s.RunNow(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.True(t, res.Manual)

	_, err = s.RunNow(ctx, "bad")
	assert.ErrorIs(t, err, errBoom)

	_, err = s.RunNow(ctx, "panics")
	assert.ErrorContains(t, err, "panicked")

	_, err = s.RunNow(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "panics", history[0].JobName)
	assert.Equal(t, "bad", history[1].JobName)
	assert.Len(t, s.History(1), 1)
}

func TestScheduler_JobsDoNotOverlap(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	s := New(Config{TickInterval: 2 * time.Millisecond})
	require.NoError(t, s.Register(&funcJob{name: "slow", fn: func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.NoError(t, s.Stop())
}
