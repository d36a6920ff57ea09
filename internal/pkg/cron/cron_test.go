package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/folio/internal/pkg/apperr"
)

func TestSchedulerRunsOnInterval(t *testing.T) {
	s := New(nil, Options{})
	var runs atomic.Int32
	require.NoError(t, s.Register(Job{Name: "sweep_sessions", Every: 10 * time.Millisecond, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()

	rep, err := s.Report("sweep_sessions")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, rep.Status)
	assert.GreaterOrEqual(t, rep.Runs, 2)
	assert.Equal(t, "10ms", rep.Every)
}

func TestTriggerRecordsFailureAndNotifies(t *testing.T) {
	type outcome struct {
		job string
		err error
	}
	var (
		mu   sync.Mutex
		seen []outcome
	)
	s := New(nil, Options{OnRun: func(job string, err error, _ time.Duration) {
		mu.Lock()
		seen = append(seen, outcome{job, err})
		mu.Unlock()
	}})
	require.NoError(t, s.Register(Job{Name: "sweep_login_attempts", Every: time.Hour, Run: func(context.Context) error {
		return errors.New("disk full")
	}}))

	require.NoError(t, s.Trigger(context.Background(), "sweep_login_attempts"))
	assert.Eventually(t, func() bool {
		rep, err := s.Report("sweep_login_attempts")
		return err == nil && rep.Status == StatusFailed && rep.LastError == "disk full"
	}, time.Second, 5*time.Millisecond)

	rep, err := s.Report("sweep_login_attempts")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Runs)
	assert.Equal(t, 1, rep.Failures)
	assert.NotNil(t, rep.LastRunAt)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "sweep_login_attempts", seen[0].job)
	assert.EqualError(t, seen[0].err, "disk full")
}

func TestTriggerWhileRunningConflicts(t *testing.T) {
	s := New(nil, Options{})
	release := make(chan struct{})
	require.NoError(t, s.Register(Job{Name: "slow", Every: time.Hour, Run: func(context.Context) error {
		<-release
		return nil
	}}))

	require.NoError(t, s.Trigger(context.Background(), "slow"))
	assert.ErrorIs(t, s.Trigger(context.Background(), "slow"), apperr.ErrConflict)
	close(release)
	assert.Eventually(t, func() bool {
		rep, _ := s.Report("slow")
		return rep.Status == StatusOK
	}, time.Second, 5*time.Millisecond)
}

func TestNextRunFollowsClock(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(nil, Options{Now: func() time.Time { return at }})
	require.NoError(t, s.Register(Job{Name: "sweep_sessions", Every: time.Hour, Run: func(context.Context) error { return nil }}))

	rep, err := s.Report("sweep_sessions")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, rep.Status)
	assert.Equal(t, at.Add(time.Hour), rep.NextRunAt)
}

func TestRegisterRejectsBadJobs(t *testing.T) {
	s := New(nil, Options{})
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Register(Job{Name: "a", Every: time.Hour, Run: noop}))
	assert.ErrorIs(t, s.Register(Job{Name: "a", Every: time.Hour, Run: noop}), apperr.ErrConflict)
	assert.ErrorIs(t, s.Register(Job{Name: "b", Run: noop}), apperr.ErrValidation)
	assert.ErrorIs(t, s.Register(Job{Name: "c", Every: time.Hour}), apperr.ErrValidation)
}

func TestUnknownJob(t *testing.T) {
	s := New(nil, Options{})
	assert.ErrorIs(t, s.Trigger(context.Background(), "nope"), apperr.ErrNotFound)
	_, err := s.Report("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReportsSortedByName(t *testing.T) {
	s := New(nil, Options{})
	for _, name := range []string{"sweep_sessions", "purge_cache", "sweep_login_attempts"} {
		require.NoError(t, s.Register(Job{Name: name, Every: time.Hour, Run: func(context.Context) error { return nil }}))
	}
	var names []string
	for _, rep := range s.Reports() {
		names = append(names, rep.Name)
	}
	assert.Equal(t, []string{"purge_cache", "sweep_login_attempts", "sweep_sessions"}, names)
}
