package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	run  func(context.Context) error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.run == nil {
		return nil
	}
	return t.run(ctx)
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.NewRegistry()),
		JobTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	return svc
}

func TestRunOnceIsolatesFailingJobs(t *testing.T) {
	failing := &testJob{name: "fail", run: func(context.Context) error { return errors.New("boom") }}
	panicking := &testJob{name: "panic", run: func(context.Context) error { panic("nil map") }}
	healthy := &testJob{name: "ok"}
	svc := newTestService(t, &fakeLock{}, failing, panicking, healthy)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Ran)
	require.Equal(t, []string{"fail", "panic"}, report.Failed)
	require.Equal(t, 1, healthy.runs)
}

func TestRunOnceAppliesJobTimeout(t *testing.T) {
	slow := &testJob{name: "slow", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	next := &testJob{name: "next"}
	svc := newTestService(t, &fakeLock{}, slow, next)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"slow"}, report.Failed)
	require.Equal(t, 1, next.runs)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "only"}
	svc := newTestService(t, &fakeLock{held: true}, job)

	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Zero(t, job.runs)
}

func TestRunOnceReleasesLockAfterCancel(t *testing.T) {
	lock := &fakeLock{}
	ctx, cancel := context.WithCancel(context.Background())
	job := &testJob{name: "cancels", run: func(context.Context) error {
		cancel()
		return nil
	}}
	second := &testJob{name: "never"}
	svc := newTestService(t, lock, job, second)

	_, err := svc.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, second.runs)
	require.False(t, lock.held)
	require.Equal(t, 1, lock.releases)
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})}); err == nil {
		t.Fatal("expected error without lock")
	}
}
