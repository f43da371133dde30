package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/zerogap/internal/models"
)

// Route names accepted by FakeBackend.Fail.
const (
	RouteStart   = "start"
	RouteStatus  = "status"
	RouteHistory = "history"
	RouteStats   = "stats"
	RouteDelete  = "delete"
	RouteReset   = "reset"
	RouteReport  = "report"
	RouteExplain = "explain"
)

type fakeReport struct {
	body     []byte
	filename string
}

// FakeBackend is an in-process stand-in for the scan backend. Status
// responses are scripted per scan: each poll consumes the next queued
// record and the last one repeats.
type FakeBackend struct {
	Server *httptest.Server

	mu        sync.Mutex
	nextID    int
	statuses  map[string][]models.ScanRecord
	startErr  *fakeError
	failing   map[string]bool
	history   []models.HistoryEntry
	stats     models.Statistics
	explain   models.ExplainResponse
	explained []string
	reports   map[string]fakeReport
	deleted   []string
	requests  []string
	lastStart models.StartScanRequest
}

type fakeError struct {
	status  int
	message string
}

func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		statuses: make(map[string][]models.ScanRecord),
		failing:  make(map[string]bool),
		reports:  make(map[string]fakeReport),
		history:  []models.HistoryEntry{},
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Post("/scan/start", f.handleStart)
		r.Get("/scan/{id}", f.handleStatus)
		r.Get("/scan/{id}/report", f.handleReport)
		r.Get("/scan/{id}/report/{format}", f.handleReport)
		r.Get("/history", f.handleHistory)
		r.Delete("/history", f.handleReset)
		r.Delete("/history/{id}", f.handleDelete)
		r.Get("/stats", f.handleStats)
		r.Post("/explain", f.handleExplain)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API base URL clients should be configured with.
func (f *FakeBackend) URL() string {
	return f.Server.URL + "/api"
}

// QueueStatus appends poll responses for a scan.
func (f *FakeBackend) QueueStatus(scanID string, recs ...models.ScanRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range recs {
		if recs[i].ScanID == "" {
			recs[i].ScanID = scanID
		}
	}
	f.statuses[scanID] = append(f.statuses[scanID], recs...)
}

// RejectStart makes the next start requests fail with the given status and
// error message.
func (f *FakeBackend) RejectStart(status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = &fakeError{status: status, message: message}
}

// Fail toggles a 500 response for one of the Route* names.
func (f *FakeBackend) Fail(route string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[route] = fail
}

func (f *FakeBackend) SetHistory(entries ...models.HistoryEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = entries
}

func (f *FakeBackend) SetStats(stats models.Statistics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = stats
}

func (f *FakeBackend) SetExplain(resp models.ExplainResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explain = resp
}

func (f *FakeBackend) SetReport(scanID, format, filename string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[scanID+"/"+format] = fakeReport{body: body, filename: filename}
}

// Deleted returns the ids removed through DELETE /history/{id}.
func (f *FakeBackend) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// LastStart returns the body of the most recent start request.
// Explained returns the texts submitted to the explain endpoint, in order.
func (f *FakeBackend) Explained() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.explained...)
}

func (f *FakeBackend) LastStart() models.StartScanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastStart
}

// Requests counts received requests whose "METHOD /path" starts with prefix.
func (f *FakeBackend) Requests(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.requests {
		if strings.HasPrefix(req, prefix) {
			n++
		}
	}
	return n
}

// RequestCount counts received requests for exactly method and path.
func (f *FakeBackend) RequestCount(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := method + " " + path
	n := 0
	for _, req := range f.requests {
		if req == want {
			n++
		}
	}
	return n
}

func (f *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeBackend) failed(w http.ResponseWriter, route string) bool {
	f.mu.Lock()
	fail := f.failing[route]
	f.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": route + " unavailable"})
	}
	return fail
}

func (f *FakeBackend) handleStart(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteStart) {
		return
	}

	var req models.StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStart = req

	if f.startErr != nil {
		writeJSON(w, f.startErr.status, map[string]string{"error": f.startErr.message})
		return
	}
	target := strings.TrimSpace(req.URL)
	if target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL required"})
		return
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "http://" + target
	}

	f.nextID++
	id := fmt.Sprintf("scan-%d", f.nextID)
	writeJSON(w, http.StatusCreated, models.StartScanResponse{ScanID: id, URL: target})
}

func (f *FakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteStatus) {
		return
	}

	id := chi.URLParam(r, "id")

	f.mu.Lock()
	queue := f.statuses[id]
	if len(queue) == 0 {
		f.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "scan not found"})
		return
	}
	rec := queue[0]
	if len(queue) > 1 {
		f.statuses[id] = queue[1:]
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, rec)
}

func (f *FakeBackend) handleReport(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteReport) {
		return
	}

	format := chi.URLParam(r, "format")
	if format == "" {
		format = "html"
	}

	f.mu.Lock()
	report, ok := f.reports[chi.URLParam(r, "id")+"/"+format]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report missing"})
		return
	}

	if report.filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report.body)
}

func (f *FakeBackend) handleHistory(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteHistory) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, models.HistoryResponse{Scans: f.history, Total: len(f.history)})
}

func (f *FakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteDelete) {
		return
	}

	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.history[:0:0]
	found := false
	for _, h := range f.history {
		if h.Key() == id {
			found = true
			continue
		}
		kept = append(kept, h)
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "scan not found"})
		return
	}
	f.history = kept
	f.deleted = append(f.deleted, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (f *FakeBackend) handleReset(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteReset) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = []models.HistoryEntry{}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (f *FakeBackend) handleStats(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteStats) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.stats)
}

func (f *FakeBackend) handleExplain(w http.ResponseWriter, r *http.Request) {
	if f.failed(w, RouteExplain) {
		return
	}

	var req models.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.VulnText) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty text"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.explained = append(f.explained, req.VulnText)
	writeJSON(w, http.StatusOK, f.explain)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
