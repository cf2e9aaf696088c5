package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.held = false; return nil }

type testJob struct {
	name  string
	err   error
	every time.Duration
	runs  int
}

func (j *testJob) Name() string         { return j.name }
func (j *testJob) Every() time.Duration { return j.every }

func (j *testJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Tick:     time.Minute,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	service := newTestService(t, &fakeLock{}, ok, failing)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
}

func TestServiceRunCycleHonorsJobCadence(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	frequent := &testJob{name: "frequent", every: 15 * time.Minute}
	daily := &testJob{name: "daily", every: 24 * time.Hour}
	lock := &fakeLock{}
	service := newTestService(t, lock, frequent, daily)
	service.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, service.runCycle(ctx))

	now = now.Add(20 * time.Minute)
	require.NoError(t, service.runCycle(ctx))
	assert.Equal(t, 2, frequent.runs)
	assert.Equal(t, 1, daily.runs)

	now = now.Add(5 * time.Minute)
	require.NoError(t, service.runCycle(ctx))
	assert.Equal(t, 2, frequent.runs)
	assert.Equal(t, 2, lock.acquires, "idle cycles do not touch the lock")

	now = now.Add(24 * time.Hour)
	require.NoError(t, service.runCycle(ctx))
	assert.Equal(t, 2, daily.runs)
}

func TestServiceRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "job"}
	service := newTestService(t, &fakeLock{held: true}, job)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)

	// the job stays due for the next cycle
	assert.Len(t, service.dueJobs(), 1)
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})})
	require.Error(t, err)
}

type panickingJob struct{}

func (panickingJob) Name() string              { return "explodes" }
func (panickingJob) Run(context.Context) error { panic("nil map write") }

func TestServiceRunCycleSurvivesPanickingJob(t *testing.T) {
	after := &testJob{name: "after"}
	service := newTestService(t, &fakeLock{}, panickingJob{}, after)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, after.runs)

	err := runGuarded(context.Background(), panickingJob{})
	assert.ErrorContains(t, err, "nil map write")
}
