package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/zerogap/internal/api/dto"
	"github.com/hugh/zerogap/internal/api/validation"
	"github.com/hugh/zerogap/internal/client"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/reports"
	"github.com/hugh/zerogap/internal/scan"
	"github.com/hugh/zerogap/internal/session"
	"github.com/hugh/zerogap/internal/severity"
)

// TransitionLister reads the journal. *journal.Store satisfies it.
type TransitionLister interface {
	List(ctx context.Context, scanID string, limit int) ([]models.Transition, error)
}

type ScanHandler struct {
	sess       *session.Session
	fetcher    *reports.Fetcher
	journal    TransitionLister
	reportsDir string
}

// NewScanHandler builds the scan endpoints. journal may be nil.
func NewScanHandler(sess *session.Session, fetcher *reports.Fetcher, journal TransitionLister, reportsDir string) *ScanHandler {
	return &ScanHandler{sess: sess, fetcher: fetcher, journal: journal, reportsDir: reportsDir}
}

func (h *ScanHandler) view(rec models.ScanRecord, ok bool) dto.ScanView {
	v := dto.ScanView{Chart: dto.NewSeverityResponse(session.SeverityChart(rec, severity.DefaultRadius))}
	if ok {
		v.Scan = &rec
	}
	if id, polling := h.sess.Poller.Polling(); polling && ok && id == rec.ScanID {
		v.Polling = true
	}
	return v
}

// Current handles GET /api/scan
func (h *ScanHandler) Current(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view(h.sess.Controller.Current()))
}

// Start handles POST /api/scan
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req dto.StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.URL = validation.TruncateString(strings.TrimSpace(validation.SanitizeString(req.URL)), validation.MaxURLLength+1)
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	rec, err := h.sess.Controller.StartScan(r.Context(), req.URL, req.Threads)
	if err != nil {
		var startErr *scan.StartError
		switch {
		case errors.Is(err, scan.ErrInvalidInput):
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
				Error:   "Validation failed",
				Details: map[string]string{"url": "URL is required"},
			})
		case errors.As(err, &startErr):
			writeError(w, http.StatusBadGateway, startErr.Message())
		default:
			writeError(w, http.StatusInternalServerError, "Failed to start scan")
		}
		return
	}

	writeJSON(w, http.StatusCreated, h.view(rec, true))
}

// View handles POST /api/scan/{id}/view
func (h *ScanHandler) View(w http.ResponseWriter, r *http.Request) {
	id, ok := scanIDParam(w, r)
	if !ok {
		return
	}

	rec, err := h.sess.Controller.ViewScan(r.Context(), id)
	if err != nil {
		writeBackendError(w, err, "Failed to load scan")
		return
	}

	writeJSON(w, http.StatusOK, h.view(rec, true))
}

// Report handles GET /api/scan/{id}/report?format=html|json
func (h *ScanHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := scanIDParam(w, r)
	if !ok {
		return
	}

	format, err := reports.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report format")
		return
	}

	body, filename, err := h.fetcher.Open(r.Context(), id, format)
	if err != nil {
		writeBackendError(w, err, "Failed to fetch report")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", strconv.Quote(filename)))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// Archive handles POST /api/scan/{id}/report/archive?format=html|json
func (h *ScanHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := scanIDParam(w, r)
	if !ok {
		return
	}

	if !h.fetcher.CanArchive() {
		writeError(w, http.StatusNotImplemented, "Report archiving is not configured")
		return
	}

	dl, err := h.fetcher.Archive(r.Context(), id, r.URL.Query().Get("format"), h.reportsDir)
	switch {
	case errors.Is(err, reports.ErrArchiveDisabled):
		writeError(w, http.StatusNotImplemented, "Report archiving is not configured")
	case errors.Is(err, reports.ErrUnknownFormat):
		writeError(w, http.StatusBadRequest, "Invalid report format")
	case err != nil:
		writeBackendError(w, err, "Failed to archive report")
	default:
		writeJSON(w, http.StatusCreated, dto.ArchiveResponse{Download: dl})
	}
}

// Transitions handles GET /api/scan/{id}/transitions
func (h *ScanHandler) Transitions(w http.ResponseWriter, r *http.Request) {
	id, ok := scanIDParam(w, r)
	if !ok {
		return
	}
	if h.journal == nil {
		writeError(w, http.StatusNotImplemented, "Transition journal is not enabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transitions, err := h.journal.List(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transitions")
		return
	}
	if transitions == nil {
		transitions = []models.Transition{}
	}

	writeJSON(w, http.StatusOK, dto.TransitionsResponse{ScanID: id, Transitions: transitions})
}

// Severity handles GET /api/severity?radius=N
func (h *ScanHandler) Severity(w http.ResponseWriter, r *http.Request) {
	radius := severity.DefaultRadius
	if raw := r.URL.Query().Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 10000 {
			writeError(w, http.StatusBadRequest, "Invalid radius")
			return
		}
		radius = v
	}

	writeJSON(w, http.StatusOK, dto.NewSeverityResponse(h.sess.Chart(radius)))
}

func scanIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !validation.IsValidScanID(id) {
		writeError(w, http.StatusBadRequest, "Invalid scan ID")
		return "", false
	}
	return id, true
}

// writeBackendError maps a backend failure: 404 passes through, any other
// backend status or a transport error becomes 502.
func writeBackendError(w http.ResponseWriter, err error, fallback string) {
	var apiErr *client.APIError
	switch {
	case client.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Scan not found")
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, apiErr.Message)
	default:
		writeError(w, http.StatusBadGateway, fallback)
	}
}
