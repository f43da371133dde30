// Package notify shows at most one timed, dismissible message at a time and
// fans every shown message out to a set of sinks.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

const (
	DefaultDismissAfter = 5000 * time.Millisecond
	deliverTimeout      = 2 * time.Second
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

type Notification struct {
	ID      uuid.UUID `json:"id"`
	Kind    Kind      `json:"type"`
	Message string    `json:"message"`
	ShownAt time.Time `json:"shown_at"`
}

// Sink receives every notification as it is shown.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

type Dispatcher struct {
	clock        clock.WithDelayedExecution
	dismissAfter time.Duration
	sinks        []Sink
	logger       *slog.Logger

	mu      sync.Mutex
	current *Notification
	timer   clock.Timer
	closed  bool
}

func NewDispatcher(clk clock.WithDelayedExecution, dismissAfter time.Duration, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	return &Dispatcher{
		clock:        clk,
		dismissAfter: dismissAfter,
		sinks:        sinks,
		logger:       logger.With("component", "notify"),
	}
}

// Notify replaces the visible notification and restarts the auto-dismiss
// timer.
func (d *Dispatcher) Notify(kind Kind, message string) Notification {
	n := Notification{
		ID:      uuid.New(),
		Kind:    kind,
		Message: message,
		ShownAt: d.clock.Now(),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return n
	}
	d.stopTimerLocked()
	d.current = &n
	d.timer = d.clock.AfterFunc(d.dismissAfter, func() { d.expire(n.ID) })
	d.mu.Unlock()

	d.deliver(n)
	return n
}

func (d *Dispatcher) Success(message string) Notification {
	return d.Notify(KindSuccess, message)
}

func (d *Dispatcher) Error(message string) Notification {
	return d.Notify(KindError, message)
}

// Current returns the visible notification, if any.
func (d *Dispatcher) Current() (Notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return Notification{}, false
	}
	return *d.current, true
}

// Dismiss hides the visible notification and cancels its timer. It reports
// whether anything was visible.
func (d *Dispatcher) Dismiss() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	visible := d.current != nil
	d.current = nil
	return visible
}

// Close dismisses the visible notification and drops later ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.current = nil
	d.closed = true
}

func (d *Dispatcher) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// expire only clears the notification that armed the timer; a replacement
// shown in the meantime stays.
func (d *Dispatcher) expire(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.ID != id {
		return
	}
	d.current = nil
	d.timer = nil
}

func (d *Dispatcher) deliver(n Notification) {
	if len(d.sinks) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed", "id", n.ID, "error", err)
		}
	}
}
