package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hugh/zerogap/internal/api/dto"
	"github.com/hugh/zerogap/internal/scheduler"
)

// Schedule is the part of scheduler.Scheduler exposed over the API.
type Schedule interface {
	Next() time.Time
	LastRun() (time.Time, error)
	RunNow(ctx context.Context) error
}

type ScheduleHandler struct {
	sched Schedule
}

// NewScheduleHandler builds the schedule endpoints. sched is nil when
// scheduled rescans are disabled.
func NewScheduleHandler(sched Schedule) *ScheduleHandler {
	return &ScheduleHandler{sched: sched}
}

// Get handles GET /api/schedule
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeJSON(w, http.StatusOK, dto.ScheduleResponse{})
		return
	}

	resp := dto.ScheduleResponse{Enabled: true}
	if next := h.sched.Next(); !next.IsZero() {
		resp.Next = &next
	}
	last, err := h.sched.LastRun()
	if !last.IsZero() {
		resp.LastRun = &last
	}
	if err != nil {
		resp.LastError = err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Run handles POST /api/schedule/run
func (h *ScheduleHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.sched == nil {
		writeError(w, http.StatusNotImplemented, "Scheduled rescans are not configured")
		return
	}

	err := h.sched.RunNow(r.Context())
	if errors.Is(err, scheduler.ErrScanActive) {
		writeError(w, http.StatusConflict, "A scan is still active")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.Get(w, r)
}
