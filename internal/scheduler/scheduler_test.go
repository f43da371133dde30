package scheduler_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/scheduler"
	"github.com/hugh/zerogap/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	current  *models.ScanRecord
	starts   []string
	startErr error
}

func (f *fakeController) StartScan(_ context.Context, target string, threads int) (models.ScanRecord, error) {
	f.starts = append(f.starts, target)
	if f.startErr != nil {
		return models.ScanRecord{}, f.startErr
	}
	rec := models.ScanRecord{ScanID: "s", URL: target, Status: models.ScanStatusRunning, Threads: threads}
	f.current = &rec
	return rec, nil
}

func (f *fakeController) Current() (models.ScanRecord, bool) {
	if f.current == nil {
		return models.ScanRecord{}, false
	}
	return *f.current, true
}

func TestNew_Validation(t *testing.T) {
	logger := testutil.NewTestLogger()

	_, err := scheduler.New(scheduler.Config{Cron: "not cron", Target: "x"}, &fakeController{}, logger)
	assert.Error(t, err)

	_, err = scheduler.New(scheduler.Config{Cron: "0 3 * * *"}, &fakeController{}, logger)
	assert.Error(t, err)

	s, err := scheduler.New(scheduler.Config{Cron: "0 3 * * *", Target: "https://example.com"}, &fakeController{}, logger)
	require.NoError(t, err)
	assert.True(t, s.Next().IsZero(), "no next run before Start")

	s.Start()
	defer s.Stop()
	assert.False(t, s.Next().IsZero())
}

func TestScheduler_RunNow(t *testing.T) {
	ctrl := &fakeController{}
	s, err := scheduler.New(scheduler.Config{Cron: "*/5 * * * *", Target: "https://example.com", Threads: 3}, ctrl, testutil.NewTestLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.RunNow(ctx))
	assert.Equal(t, []string{"https://example.com"}, ctrl.starts)

	// previous scan still running
	err = s.RunNow(ctx)
	assert.ErrorIs(t, err, scheduler.ErrScanActive)
	assert.Len(t, ctrl.starts, 1)

	last, lastErr := s.LastRun()
	assert.False(t, last.IsZero())
	assert.ErrorIs(t, lastErr, scheduler.ErrScanActive)

	ctrl.current.Status = models.ScanStatusCompleted
	require.NoError(t, s.RunNow(ctx))
	assert.Len(t, ctrl.starts, 2)
}

func TestScheduler_StartFailure(t *testing.T) {
	ctrl := &fakeController{startErr: errors.New("backend down")}
	s, err := scheduler.New(scheduler.Config{Cron: "0 * * * *", Target: "https://example.com"}, ctrl, testutil.NewTestLogger())
	require.NoError(t, err)

	assert.Error(t, s.RunNow(context.Background()))
	_, lastErr := s.LastRun()
	assert.EqualError(t, lastErr, "backend down")
}
