package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/epos-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	released int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name  string
	err   error
	runs  int
	panic bool
	seen  context.Context
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.seen = ctx
	if t.panic {
		panic("negative stock table missing")
	}
	return t.err
}

type recordingMetrics struct {
	success  map[string]int
	failure  map[string]int
	observed int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{success: map[string]int{}, failure: map[string]int{}}
}

func (r *recordingMetrics) ObserveDuration(string, time.Duration) { r.observed++ }
func (r *recordingMetrics) IncSuccess(job string)                 { r.success[job]++ }
func (r *recordingMetrics) IncFailure(job string)                 { r.failure[job]++ }

func newTestService(t *testing.T, lock Lock, metrics jobMetrics, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics,
		Budget:   time.Minute,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	metrics := newRecordingMetrics()
	lock := &fakeLock{}
	service := newTestService(t, lock, metrics, ok, failing)

	require.NoError(t, service.runCycle(context.Background()))

	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, metrics.success["success"])
	assert.Equal(t, 1, metrics.failure["fail"])
	assert.Equal(t, 2, metrics.observed)
	assert.Equal(t, 1, lock.released)
	assert.False(t, lock.held)
}

func TestServiceRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "only"}
	lock := &fakeLock{held: true}
	service := newTestService(t, lock, nil, job)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.released)
}

func TestServiceRunCyclePropagatesLockErrors(t *testing.T) {
	job := &testJob{name: "only"}
	service := newTestService(t, &fakeLock{err: errors.New("redis down")}, nil, job)

	err := service.runCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Zero(t, job.runs)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "only"}
	service := newTestService(t, &fakeLock{}, nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := service.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, job.runs)
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	assert.Error(t, err)
}

func TestServiceRunCycleIsolatesPanickingJob(t *testing.T) {
	broken := &testJob{name: "broken", panic: true}
	after := &testJob{name: "after"}
	metrics := newRecordingMetrics()
	lock := &fakeLock{}
	service := newTestService(t, lock, metrics, broken, after)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, after.runs)
	assert.Equal(t, 1, metrics.failure["broken"])
	assert.Equal(t, 1, metrics.success["after"])
	assert.False(t, lock.held)
}

func TestServiceRunCycleBoundsJobsByBudget(t *testing.T) {
	job := &testJob{name: "only"}
	service := newTestService(t, &fakeLock{}, nil, job)

	require.NoError(t, service.runCycle(context.Background()))
	deadline, ok := job.seen.Deadline()
	require.True(t, ok, "jobs should run under the cycle budget")
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}
