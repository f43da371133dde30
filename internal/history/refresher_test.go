package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/history"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/notify"
	"github.com/hugh/zerogap/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type fixture struct {
	backend    *testutil.FakeBackend
	clock      *testingclock.FakeClock
	dispatcher *notify.Dispatcher
	refresher  *history.Refresher
	store      *history.Store
}

func newFixture(t *testing.T) *fixture {
	backend := testutil.NewFakeBackend(t)
	clk := testingclock.NewFakeClock(time.Now())
	logger := testutil.NewTestLogger()
	dispatcher := notify.NewDispatcher(clk, notify.DefaultDismissAfter, logger)
	store := history.NewStore()

	c := client.New(backend.URL(), time.Second, logger)
	r := history.NewRefresher(c, store, dispatcher, clk, history.Config{}, logger)

	return &fixture{backend: backend, clock: clk, dispatcher: dispatcher, refresher: r, store: store}
}

func sampleHistory() []models.HistoryEntry {
	return []models.HistoryEntry{
		{ID: "a", URL: "http://a.example", Date: "2024-05-01", Time: "10:00", Vulnerabilities: 3, Status: models.ScanStatusCompleted},
		{ID: "b", URL: "http://b.example", Date: "2024-05-01", Time: "11:00", Status: models.ScanStatusFailed},
	}
}

func TestRefresher_Reload(t *testing.T) {
	f := newFixture(t)
	f.backend.SetHistory(sampleHistory()...)
	f.backend.SetStats(models.Statistics{TotalScans: 2, TotalVulnerabilities: 3, AverageVulnerabilitiesPerScan: 1.5})

	require.NoError(t, f.refresher.Reload(context.Background()))

	assert.Equal(t, sampleHistory(), f.store.Entries())
	assert.Equal(t, 2, f.store.Stats().TotalScans)
	assert.Equal(t, 1, f.backend.Requests("GET /api/history"))
	assert.Equal(t, 1, f.backend.Requests("GET /api/stats"))

	entriesAt, statsAt := f.store.LoadedAt()
	assert.False(t, entriesAt.IsZero())
	assert.False(t, statsAt.IsZero())
}

func TestRefresher_ReloadFailures(t *testing.T) {
	tests := []struct {
		name        string
		failRoute   string
		wantMessage string
	}{
		{name: "history fails", failRoute: testutil.RouteHistory, wantMessage: "failed to load scan history"},
		{name: "stats fails", failRoute: testutil.RouteStats, wantMessage: "failed to load statistics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.SetHistory(sampleHistory()...)
			f.backend.SetStats(models.Statistics{TotalScans: 2})
			require.NoError(t, f.refresher.Reload(context.Background()))

			f.backend.SetHistory()
			f.backend.SetStats(models.Statistics{TotalScans: 9})
			f.backend.Fail(tt.failRoute, true)

			err := f.refresher.Reload(context.Background())
			require.Error(t, err)

			n, ok := f.dispatcher.Current()
			require.True(t, ok)
			assert.Equal(t, notify.KindError, n.Kind)
			assert.Equal(t, tt.wantMessage, n.Message)

			// the failed value keeps its previous content, the other one is replaced
			if tt.failRoute == testutil.RouteHistory {
				assert.Len(t, f.store.Entries(), 2)
				assert.Equal(t, 9, f.store.Stats().TotalScans)
			} else {
				assert.Empty(t, f.store.Entries())
				assert.Equal(t, 2, f.store.Stats().TotalScans)
			}
		})
	}
}

func TestRefresher_ScheduleWaitsForDelay(t *testing.T) {
	f := newFixture(t)
	f.backend.SetHistory(sampleHistory()...)

	f.refresher.Schedule()

	f.clock.Step(history.DefaultDelay - time.Millisecond)
	assert.Never(t, func() bool { return f.backend.Requests("GET /api/history") > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	f.clock.Step(time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.backend.Requests("GET /api/history") == 1 && f.backend.Requests("GET /api/stats") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(f.store.Entries()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestRefresher_ScheduledReloadDoesNotBlockClock(t *testing.T) {
	f := newFixture(t)
	f.backend.SetHistory(sampleHistory()...)
	f.backend.Fail(testutil.RouteStats, true)

	f.refresher.Schedule()

	stepped := make(chan struct{})
	go func() {
		f.clock.Step(history.DefaultDelay)
		close(stepped)
	}()
	select {
	case <-stepped:
	case <-time.After(time.Second):
		t.Fatal("clock step blocked on the scheduled reload")
	}

	assert.Eventually(t, func() bool { return len(f.store.Entries()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		n, ok := f.dispatcher.Current()
		return ok && n.Message == "failed to load statistics"
	}, time.Second, 5*time.Millisecond)
}

func TestRefresher_Delete(t *testing.T) {
	f := newFixture(t)
	f.backend.SetHistory(sampleHistory()...)
	ctx := context.Background()

	require.NoError(t, f.refresher.Delete(ctx, "a"))
	assert.Equal(t, []string{"a"}, f.backend.Deleted())
	require.Len(t, f.store.Entries(), 1)
	assert.Equal(t, "b", f.store.Entries()[0].ID)

	err := f.refresher.Delete(ctx, "missing")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
}

func TestRefresher_Reset(t *testing.T) {
	f := newFixture(t)
	f.backend.SetHistory(sampleHistory()...)
	ctx := context.Background()
	require.NoError(t, f.refresher.Reload(ctx))

	require.NoError(t, f.refresher.Reset(ctx))
	assert.Empty(t, f.store.Entries())

	f.backend.Fail(testutil.RouteReset, true)
	assert.Error(t, f.refresher.Reset(ctx))
}
