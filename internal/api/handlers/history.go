package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hugh/zerogap/internal/api/dto"
	"github.com/hugh/zerogap/internal/history"
	"github.com/hugh/zerogap/internal/models"
)

type HistoryHandler struct {
	refresher *history.Refresher
}

func NewHistoryHandler(refresher *history.Refresher) *HistoryHandler {
	return &HistoryHandler{refresher: refresher}
}

// List handles GET /api/history. Pages are cut from the last loaded
// history; nothing is fetched.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	pagination := dto.PaginationParams{Page: page, PerPage: perPage}
	pagination.Normalize()

	entries := h.refresher.Store().Entries()
	start, end := pagination.Window(len(entries))

	writeJSON(w, http.StatusOK, dto.PaginatedResponse{
		Data:       entries[start:end],
		Total:      int64(len(entries)),
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		TotalPages: pagination.TotalPages(len(entries)),
	})
}

// Refresh handles POST /api/history/refresh
func (h *HistoryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Reload(r.Context()); err != nil {
		writeBackendError(w, err, "Failed to reload history")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "History reloaded"})
}

// Delete handles DELETE /api/history/{id}
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := scanIDParam(w, r)
	if !ok {
		return
	}

	if err := h.refresher.Delete(r.Context(), id); err != nil {
		writeBackendError(w, err, "Failed to delete scan")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles DELETE /api/history
func (h *HistoryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Reset(r.Context()); err != nil {
		writeBackendError(w, err, "Failed to reset history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type StatsResponse struct {
	Stats    models.Statistics `json:"stats"`
	LoadedAt *time.Time        `json:"loaded_at,omitempty"`
}

// Stats handles GET /api/stats
func (h *HistoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	store := h.refresher.Store()
	resp := StatsResponse{Stats: store.Stats()}
	if _, at := store.LoadedAt(); !at.IsZero() {
		resp.LoadedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}
