package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hugh/zerogap/internal/models"
)

const (
	defaultBuffer = 64
	writeTimeout  = 5 * time.Second
)

// Writer records transitions on a background goroutine so callers never wait
// on the database. Order of submission is kept. Failures are logged only.
type Writer struct {
	rec    Recorder
	logger *slog.Logger
	queue  chan *models.Transition
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func NewWriter(rec Recorder, logger *slog.Logger, buffer int) *Writer {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	w := &Writer{
		rec:    rec,
		logger: logger.With("component", "journal"),
		queue:  make(chan *models.Transition, buffer),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Submit queues t. A full queue drops the transition with a warning.
func (w *Writer) Submit(t *models.Transition) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.queue <- t:
	default:
		w.logger.Warn("journal queue full, dropping transition", "scan_id", t.ScanID, "to", t.ToStatus)
	}
}

// Close flushes queued transitions and stops the writer.
func (w *Writer) Close() {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
		<-w.done
	})
}

func (w *Writer) run() {
	defer close(w.done)

	for t := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := w.rec.Record(ctx, t); err != nil {
			w.logger.Warn("failed to record transition", "scan_id", t.ScanID, "to", t.ToStatus, "error", err)
		}
		cancel()
	}
}
