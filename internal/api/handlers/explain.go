package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hugh/zerogap/internal/api/dto"
	"github.com/hugh/zerogap/internal/api/validation"
	"github.com/hugh/zerogap/internal/explain"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/scan"
)

// CurrentScan exposes the scan whose findings can be explained by index.
type CurrentScan interface {
	Current() (models.ScanRecord, bool)
}

type ExplainHandler struct {
	explainer *explain.Explainer
	scans     CurrentScan
}

func NewExplainHandler(explainer *explain.Explainer, scans CurrentScan) *ExplainHandler {
	return &ExplainHandler{explainer: explainer, scans: scans}
}

// Explain handles POST /api/explain
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req dto.ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.VulnText) > validation.MaxExplainLength {
		writeError(w, http.StatusRequestEntityTooLarge, "Text too long")
		return
	}

	var (
		result models.Explanation
		err    error
	)
	if req.Finding != nil {
		rec, ok := h.scans.Current()
		idx := *req.Finding
		if !ok || idx < 0 || idx >= len(rec.Vulnerabilities) {
			writeError(w, http.StatusNotFound, "Finding not found")
			return
		}
		result, err = h.explainer.Finding(r.Context(), rec.Vulnerabilities[idx])
	} else {
		result, err = h.explainer.Explain(r.Context(), validation.SanitizeString(req.VulnText))
	}
	if errors.Is(err, scan.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{"vuln_text": "Text is required"},
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to explain")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
