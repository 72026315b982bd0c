package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

type recordingObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *recordingObserver) ObserveJob(job string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = make(map[string][]error)
	}
	o.runs[job] = append(o.runs[job], err)
}

func (o *recordingObserver) count(job string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs[job])
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	job := &funcJob{name: "flush", run: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Second)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.SetEnabled("missing", false), ErrJobNotFound)
}

func TestScheduler_RunNow(t *testing.T) {
	obs := &recordingObserver{}
	s := NewScheduler(SchedulerConfig{Observer: obs})
	fail := errors.New("partial flush")
	require.NoError(t, s.Register(&funcJob{name: "flush", run: func(context.Context) error { return fail }}, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "flush")
	assert.ErrorIs(t, err, fail)
	assert.True(t, res.Manual)
	assert.False(t, res.Success())
	assert.NotEmpty(t, res.RunID)

	info, err := s.GetJobInfo("flush")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.Equal(t, 1, obs.count("flush"))

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_RunNowRefusesOverlap(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register(&funcJob{name: "analyze", run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}, NewIntervalSchedule(time.Hour)))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "analyze")
		done <- err
	}()
	<-started

	_, err := s.RunNow(context.Background(), "analyze")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	assert.NoError(t, <-done)
}

func TestScheduler_DispatchSkipsInFlightJob(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	release := make(chan struct{})
	var mu sync.Mutex
	runs := 0
	require.NoError(t, s.Register(&funcJob{name: "analyze", run: func(context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		<-release
		return nil
	}}, NewIntervalSchedule(time.Millisecond)))
	s.ctx = context.Background()

	future := time.Now().Add(time.Hour)
	s.dispatchDue(future)
	s.dispatchDue(future.Add(time.Hour))

	info, err := s.GetJobInfo("analyze")
	require.NoError(t, err)
	assert.True(t, info.Running)
	assert.Equal(t, int64(1), info.SkipCount)

	close(release)
	s.wg.Wait()

	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()
}

func TestScheduler_StartStop(t *testing.T) {
	obs := &recordingObserver{}
	s := NewScheduler(SchedulerConfig{TickInterval: 5 * time.Millisecond, Observer: obs})
	require.NoError(t, s.Register(&funcJob{name: "flush", run: func(context.Context) error { return nil }}, NewIntervalSchedule(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return obs.count("flush") > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
}

func TestScheduler_DisabledJobNotDispatched(t *testing.T) {
	s := NewScheduler(SchedulerConfig{})
	require.NoError(t, s.Register(&funcJob{name: "reload", run: func(context.Context) error { return nil }}, NewIntervalSchedule(time.Millisecond)))
	require.NoError(t, s.SetEnabled("reload", false))
	s.ctx = context.Background()

	s.dispatchDue(time.Now().Add(time.Hour))
	s.wg.Wait()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Enabled)
	assert.Zero(t, jobs[0].RunCount)
}

func TestIntervalSchedule(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	plain := NewIntervalSchedule(time.Minute)
	assert.Equal(t, base.Add(time.Minute), plain.Next(base))
	assert.Equal(t, "@every 1m0s", plain.String())

	jittered := plain.WithJitter(10 * time.Second)
	for i := 0; i < 50; i++ {
		next := jittered.Next(base)
		assert.False(t, next.Before(base.Add(time.Minute)))
		assert.True(t, next.Before(base.Add(time.Minute+10*time.Second)))
	}
	assert.Equal(t, "@every 1m0s +rand(10s)", jittered.String())
	assert.Zero(t, plain.Jitter)
}
