package handlers

import (
	"net/http"

	"github.com/hugh/zerogap/internal/notify"
)

type NotificationHandler struct {
	dispatcher *notify.Dispatcher
}

func NewNotificationHandler(dispatcher *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

type NotificationResponse struct {
	Notification *notify.Notification `json:"notification"`
}

// Current handles GET /api/notification
func (h *NotificationHandler) Current(w http.ResponseWriter, r *http.Request) {
	var resp NotificationResponse
	if n, ok := h.dispatcher.Current(); ok {
		resp.Notification = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// Dismiss handles DELETE /api/notification
func (h *NotificationHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}
