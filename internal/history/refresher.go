package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/notify"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
)

const (
	DefaultDelay = 500 * time.Millisecond
	DefaultLimit = 10

	reloadTimeout = 30 * time.Second

	msgHistoryFailed = "failed to load scan history"
	msgStatsFailed   = "failed to load statistics"
)

// Backend is the part of the backend API used for history.
type Backend interface {
	ListHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error)
	Stats(ctx context.Context) (*models.Statistics, error)
	DeleteScan(ctx context.Context, scanID string) error
	ResetHistory(ctx context.Context) error
}

// Reporter surfaces load failures to the user.
type Reporter interface {
	Error(message string) notify.Notification
}

type Config struct {
	Delay time.Duration
	Limit int
}

type Refresher struct {
	backend  Backend
	store    *Store
	reporter Reporter
	clock    clock.WithDelayedExecution
	delay    time.Duration
	limit    int
	logger   *slog.Logger
}

func NewRefresher(backend Backend, store *Store, reporter Reporter, clk clock.WithDelayedExecution, cfg Config, logger *slog.Logger) *Refresher {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Refresher{
		backend:  backend,
		store:    store,
		reporter: reporter,
		clock:    clk,
		delay:    cfg.Delay,
		limit:    cfg.Limit,
		logger:   logger.With("component", "history"),
	}
}

func (r *Refresher) Store() *Store {
	return r.store
}

// Schedule reloads history and statistics once after the settle delay. The
// timer is not kept; a scheduled reload always runs.
func (r *Refresher) Schedule() {
	r.logger.Debug("history reload scheduled", "delay", r.delay.String())
	r.clock.AfterFunc(r.delay, func() {
		// Reload reads the clock, so it must not run on the timer callback.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
			defer cancel()
			_ = r.Reload(ctx)
		}()
	})
}

// Reload fetches history and statistics concurrently. Each one that loads
// replaces the stored value; each one that fails keeps the old value and is
// reported.
func (r *Refresher) Reload(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		entries, err := r.backend.ListHistory(ctx, r.limit)
		if err != nil {
			r.fail(msgHistoryFailed, err)
			return fmt.Errorf("loading history: %w", err)
		}
		r.store.SetEntries(entries, r.clock.Now())
		return nil
	})

	g.Go(func() error {
		stats, err := r.backend.Stats(ctx)
		if err != nil {
			r.fail(msgStatsFailed, err)
			return fmt.Errorf("loading statistics: %w", err)
		}
		r.store.SetStats(*stats, r.clock.Now())
		return nil
	})

	return g.Wait()
}

// Delete removes one scan from the backend history and reloads.
func (r *Refresher) Delete(ctx context.Context, scanID string) error {
	if err := r.backend.DeleteScan(ctx, scanID); err != nil {
		r.logger.Warn("history delete failed", "scan_id", scanID, "error", err)
		return fmt.Errorf("deleting scan %s: %w", scanID, err)
	}
	r.logger.Info("scan deleted from history", "scan_id", scanID)
	_ = r.Reload(ctx)
	return nil
}

// Reset clears the whole backend history and reloads.
func (r *Refresher) Reset(ctx context.Context) error {
	if err := r.backend.ResetHistory(ctx); err != nil {
		r.logger.Warn("history reset failed", "error", err)
		return fmt.Errorf("resetting history: %w", err)
	}
	r.logger.Info("history reset")
	_ = r.Reload(ctx)
	return nil
}

func (r *Refresher) fail(message string, err error) {
	r.logger.Warn(message, "error", err)
	if r.reporter != nil {
		r.reporter.Error(message)
	}
}
