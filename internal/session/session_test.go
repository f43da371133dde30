package session_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/journal"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/notify"
	"github.com/hugh/zerogap/internal/session"
	"github.com/hugh/zerogap/internal/severity"
	"github.com/hugh/zerogap/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const pollInterval = 2 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	backend *testutil.FakeBackend
	clock   *testingclock.FakeClock
	sess    *session.Session
	out     *syncBuffer
}

func newHarness(t *testing.T, cfg session.Config, j session.TransitionSink) *harness {
	backend := testutil.NewFakeBackend(t)
	clk := testingclock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	logger := testutil.NewTestLogger()
	out := &syncBuffer{}

	sess := session.New(cfg, session.Deps{
		Backend: client.New(backend.URL(), time.Second, logger),
		Clock:   clk,
		Sinks:   []notify.Sink{notify.NewWriterSink(out)},
		Journal: j,
		Logger:  logger,
	})
	t.Cleanup(sess.Close)

	return &harness{backend: backend, clock: clk, sess: sess, out: out}
}

func (h *harness) statusRequests(id string) int {
	return h.backend.Requests("GET /api/scan/" + id)
}

func defaultConfig() session.Config {
	return session.Config{
		PollInterval: pollInterval,
		HistoryDelay: 500 * time.Millisecond,
		HistoryLimit: 10,
		DismissAfter: 5 * time.Second,
	}
}

func TestSession_EndToEnd(t *testing.T) {
	h := newHarness(t, defaultConfig(), nil)
	h.backend.QueueStatus("scan-1",
		models.ScanRecord{Status: models.ScanStatusRunning, Progress: 40},
		models.ScanRecord{
			Status:               models.ScanStatusCompleted,
			Progress:             100,
			TotalVulnerabilities: 3,
			SeverityStats:        map[string]int{"HIGH": 1, "MEDIUM": 2},
		},
	)
	h.backend.SetHistory(models.HistoryEntry{ID: "scan-1", URL: "https://example.com", Vulnerabilities: 3, Status: models.ScanStatusCompleted})
	h.backend.SetStats(models.Statistics{TotalScans: 1, TotalVulnerabilities: 3, AverageVulnerabilitiesPerScan: 3})

	rec, err := h.sess.Controller.StartScan(context.Background(), "https://example.com", 5)
	require.NoError(t, err)
	assert.Equal(t, "scan-1", rec.ScanID)
	assert.Equal(t, models.ScanStatusRunning, rec.Status)

	// first tick: running, 40%
	h.clock.Step(pollInterval)
	assert.Eventually(t, func() bool {
		cur, _ := h.sess.Controller.Current()
		return cur.Progress == 40
	}, time.Second, 5*time.Millisecond)

	// second tick: completed
	h.clock.Step(pollInterval)
	assert.Eventually(t, func() bool {
		n, ok := h.sess.Notifier.Current()
		return ok && strings.Contains(n.Message, "3")
	}, time.Second, 5*time.Millisecond)

	n, _ := h.sess.Notifier.Current()
	assert.Equal(t, notify.KindSuccess, n.Kind)
	assert.Equal(t, "Scan completed! 3 vulnerabilities detected.", n.Message)
	assert.Equal(t, 1, strings.Count(h.out.String(), "Scan completed!"))

	assert.Eventually(t, func() bool {
		_, active := h.sess.Poller.Polling()
		return !active
	}, time.Second, 5*time.Millisecond)

	// history reload waits for the settle delay
	h.clock.Step(499 * time.Millisecond)
	assert.Never(t, func() bool { return h.backend.Requests("GET /api/history") > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	h.clock.Step(time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(h.sess.History.Store().Entries()) == 1 && h.sess.History.Store().Stats().TotalScans == 1
	}, time.Second, 5*time.Millisecond)

	// polling stays halted
	for i := 0; i < 3; i++ {
		h.clock.Step(pollInterval)
	}
	assert.Never(t, func() bool { return h.statusRequests("scan-1") > 2 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 1, strings.Count(h.out.String(), "Scan completed!"))

	chart := h.sess.Chart(severity.DefaultRadius)
	require.Len(t, chart.Segments, 2)
	assert.Equal(t, severity.High, chart.Segments[0].Severity)
	assert.Equal(t, severity.Medium, chart.Segments[1].Severity)
}

func TestSession_FailureNotificationIsOptIn(t *testing.T) {
	tests := []struct {
		name       string
		notify     bool
		wantNotice bool
	}{
		{name: "default keeps failures on the record", notify: false, wantNotice: false},
		{name: "opt-in failure notification", notify: true, wantNotice: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.NotifyFailures = tt.notify
			h := newHarness(t, cfg, nil)
			h.backend.QueueStatus("scan-1", models.ScanRecord{Status: models.ScanStatusFailed, Error: "target unreachable"})

			_, err := h.sess.Controller.StartScan(context.Background(), "https://example.com", 5)
			require.NoError(t, err)

			h.clock.Step(pollInterval)
			assert.Eventually(t, func() bool {
				cur, _ := h.sess.Controller.Current()
				return cur.Status == models.ScanStatusFailed
			}, time.Second, 5*time.Millisecond)

			cur, _ := h.sess.Controller.Current()
			assert.Equal(t, "target unreachable", cur.Error)

			if tt.wantNotice {
				assert.Eventually(t, func() bool {
					n, ok := h.sess.Notifier.Current()
					return ok && n.Kind == notify.KindError && n.Message == "Scan failed: target unreachable"
				}, time.Second, 5*time.Millisecond)
			} else {
				assert.Never(t, func() bool {
					_, ok := h.sess.Notifier.Current()
					return ok
				}, 50*time.Millisecond, 5*time.Millisecond)
			}

			// the history refresh is scheduled either way
			h.clock.Step(500 * time.Millisecond)
			assert.Eventually(t, func() bool { return h.backend.Requests("GET /api/history") == 1 }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestSession_JournalRecordsTransitions(t *testing.T) {
	store := journal.NewStore(testutil.SetupTestDB(t))
	writer := journal.NewWriter(store, testutil.NewTestLogger(), 8)

	h := newHarness(t, defaultConfig(), writer)
	h.backend.QueueStatus("scan-1",
		models.ScanRecord{Status: models.ScanStatusRunning, Progress: 10},
		models.ScanRecord{Status: models.ScanStatusCompleted, TotalVulnerabilities: 2},
	)

	_, err := h.sess.Controller.StartScan(context.Background(), "https://example.com", 5)
	require.NoError(t, err)

	h.clock.Step(pollInterval)
	assert.Eventually(t, func() bool { return h.statusRequests("scan-1") == 1 }, time.Second, 5*time.Millisecond)
	h.clock.Step(pollInterval)
	assert.Eventually(t, func() bool {
		cur, _ := h.sess.Controller.Current()
		return cur.Status == models.ScanStatusCompleted
	}, time.Second, 5*time.Millisecond)

	writer.Close()

	got, err := store.List(context.Background(), "scan-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.ScanStatus(""), got[0].FromStatus)
	assert.Equal(t, models.ScanStatusRunning, got[0].ToStatus)
	assert.Equal(t, models.ScanStatusRunning, got[1].FromStatus)
	assert.Equal(t, models.ScanStatusCompleted, got[1].ToStatus)
	assert.Equal(t, 2, got[1].TotalVulnerabilities)
}

func TestSession_CloseRunsClosers(t *testing.T) {
	h := newHarness(t, defaultConfig(), nil)
	var order []string
	h.sess.AddCloser(func() { order = append(order, "first") })
	h.sess.AddCloser(func() { order = append(order, "second") })

	h.sess.Notifier.Success("hello")
	h.sess.Close()
	h.sess.Close()

	assert.Equal(t, []string{"second", "first"}, order)
	_, ok := h.sess.Notifier.Current()
	assert.False(t, ok)
}

func TestSeverityChart_FallsBackToFindings(t *testing.T) {
	rec := models.ScanRecord{
		TotalVulnerabilities: 2,
		Vulnerabilities: []models.Vulnerability{
			{Severity: "critical"},
			{Severity: "LOW"},
		},
	}

	chart := session.SeverityChart(rec, 0)
	require.Len(t, chart.Segments, 2)
	assert.Equal(t, severity.Critical, chart.Segments[0].Severity)
	assert.InDelta(t, chart.Circumference/2, chart.Segments[0].Length, 1e-9)
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Scan completed! 0 vulnerabilities detected.", session.CompletedMessage(models.ScanRecord{}))
	assert.Equal(t, "Scan failed.", session.FailedMessage(models.ScanRecord{}))
	assert.Equal(t, "Scan failed: boom", session.FailedMessage(models.ScanRecord{Error: "boom"}))
}
