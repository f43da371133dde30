package client_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*client.Client, *testutil.FakeBackend) {
	backend := testutil.NewFakeBackend(t)
	return client.New(backend.URL(), time.Second, testutil.NewTestLogger()), backend
}

func TestClient_StartScan(t *testing.T) {
	c, backend := newClient(t)
	ctx := testutil.TestContext(t)

	resp, err := c.StartScan(ctx, "example.com", 7)
	require.NoError(t, err)
	assert.Equal(t, "scan-1", resp.ScanID)
	assert.Equal(t, "http://example.com", resp.URL)
	assert.Equal(t, models.StartScanRequest{URL: "example.com", Threads: 7}, backend.LastStart())
}

func TestClient_StartScan_Rejected(t *testing.T) {
	c, backend := newClient(t)
	backend.RejectStart(http.StatusBadRequest, "Invalid URL")

	_, err := c.StartScan(testutil.TestContext(t), "http://x", 5)
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid URL", apiErr.Message)
}

func TestClient_GetScan(t *testing.T) {
	c, backend := newClient(t)
	ctx := testutil.TestContext(t)

	backend.QueueStatus("abc",
		models.ScanRecord{Status: models.ScanStatusRunning, Progress: 40},
		models.ScanRecord{Status: models.ScanStatusCompleted, Progress: 100, TotalVulnerabilities: 2},
	)

	rec, err := c.GetScan(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.ScanID)
	assert.Equal(t, models.ScanStatusRunning, rec.Status)
	assert.Equal(t, 40, rec.Progress)

	rec, err = c.GetScan(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCompleted, rec.Status)

	// last response repeats
	rec, err = c.GetScan(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TotalVulnerabilities)

	_, err = c.GetScan(ctx, "missing")
	assert.True(t, client.IsNotFound(err))
}

func TestClient_History(t *testing.T) {
	c, backend := newClient(t)
	ctx := testutil.TestContext(t)

	entries, err := c.ListHistory(ctx, 10)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	backend.SetHistory(
		models.HistoryEntry{ID: "a", URL: "http://a", Vulnerabilities: 3, Status: models.ScanStatusCompleted},
		models.HistoryEntry{ScanID: "b", URL: "http://b", Status: models.ScanStatusFailed},
	)
	entries, err = c.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].Key())

	require.NoError(t, c.DeleteScan(ctx, "a"))
	assert.Equal(t, []string{"a"}, backend.Deleted())

	err = c.DeleteScan(ctx, "a")
	assert.True(t, client.IsNotFound(err))

	require.NoError(t, c.ResetHistory(ctx))
	entries, err = c.ListHistory(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClient_Stats(t *testing.T) {
	c, backend := newClient(t)
	backend.SetStats(models.Statistics{TotalScans: 4, TotalVulnerabilities: 10, AverageVulnerabilitiesPerScan: 2.5})

	stats, err := c.Stats(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalScans)
	assert.InDelta(t, 2.5, stats.AverageVulnerabilitiesPerScan, 0.001)
}

func TestClient_Explain(t *testing.T) {
	c, backend := newClient(t)
	ctx := testutil.TestContext(t)

	backend.SetExplain(models.ExplainResponse{Result: &models.Explanation{Title: "XSS", Summary: "s", RemediationShort: "r"}})
	exp, err := c.Explain(ctx, "XSS: reflected")
	require.NoError(t, err)
	assert.Equal(t, "XSS", exp.Title)

	backend.SetExplain(models.ExplainResponse{Error: "model offline"})
	_, err = c.Explain(ctx, "XSS")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "model offline", apiErr.Message)
}

func TestClient_Report(t *testing.T) {
	c, backend := newClient(t)
	backend.SetReport("abc", "json", "zerogap_report.json", []byte(`{"ok":true}`))

	body, filename, err := c.Report(testutil.TestContext(t), "abc", "json")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
	assert.Equal(t, "zerogap_report.json", filename)

	assert.Equal(t, backend.URL()+"/scan/abc/report", c.ReportURL("abc", "html"))
	assert.Equal(t, backend.URL()+"/scan/abc/report/json", c.ReportURL("abc", "json"))
}

func TestClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "json error field", status: http.StatusBadGateway, body: `{"error":"upstream down"}`, wantMsg: "upstream down"},
		{name: "plain text", status: http.StatusInternalServerError, body: "boom\n", wantMsg: "boom"},
		{name: "empty body", status: http.StatusServiceUnavailable, body: "", wantMsg: "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := client.New(srv.URL, time.Second, testutil.NewTestLogger())
			err := c.Health(context.Background())

			var apiErr *client.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := client.New(url, time.Second, testutil.NewTestLogger())
	_, err := c.GetScan(context.Background(), "x")
	require.Error(t, err)

	var apiErr *client.APIError
	assert.False(t, errors.As(err, &apiErr))
}
