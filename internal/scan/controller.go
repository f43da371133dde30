// Package scan owns the canonical record of the scan being watched and the
// poller that keeps it fresh.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hugh/zerogap/internal/models"
)

const DefaultThreads = 5

// Backend is the part of the backend API the controller needs.
// *client.Client satisfies it.
type Backend interface {
	StartScan(ctx context.Context, target string, threads int) (*models.StartScanResponse, error)
	GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error)
}

// Hooks are called synchronously, in write order, after the canonical record
// changes. They must not call back into StartScan or the refresh methods on
// the same goroutine.
type Hooks struct {
	// OnCompleted fires once per transition into completed.
	OnCompleted func(rec models.ScanRecord)
	// OnFailed fires once per transition into failed.
	OnFailed func(rec models.ScanRecord)
	// OnSettled fires once per transition into either terminal state.
	OnSettled func(rec models.ScanRecord)
	// OnTransition fires for every scan start (from is empty) and every
	// status change of the same scan.
	OnTransition func(from models.ScanStatus, rec models.ScanRecord)
}

type Controller struct {
	backend Backend
	hooks   Hooks
	logger  *slog.Logger

	mu        sync.Mutex
	current   *models.ScanRecord
	issued    uint64
	applied   uint64
	observers []func(models.ScanRecord)

	// emitMu keeps hooks and observers in the same order as the writes
	// that caused them.
	emitMu sync.Mutex
}

func NewController(backend Backend, hooks Hooks, logger *slog.Logger) *Controller {
	return &Controller{
		backend: backend,
		hooks:   hooks,
		logger:  logger.With("component", "scan_controller"),
	}
}

// Subscribe registers fn to be called with the new record after every
// canonical write.
func (c *Controller) Subscribe(fn func(models.ScanRecord)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Current returns the canonical record, if any scan has been started or
// viewed yet.
func (c *Controller) Current() (models.ScanRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return models.ScanRecord{}, false
	}
	return *c.current, true
}

// StartScan asks the backend to start scanning target and makes the new scan
// the canonical record. Any response to a request issued before the start
// completed is discarded afterwards.
func (c *Controller) StartScan(ctx context.Context, target string, threads int) (models.ScanRecord, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return models.ScanRecord{}, ErrInvalidInput
	}
	if threads <= 0 {
		threads = DefaultThreads
	}

	resp, err := c.backend.StartScan(ctx, target, threads)
	if err == nil && resp.ScanID == "" {
		err = errors.New("backend returned no scan id")
	}
	if err != nil {
		startErr := &StartError{URL: target, Err: err}
		c.logger.Warn("scan start rejected", "url", target, "error", startErr.Message())
		return models.ScanRecord{}, startErr
	}

	rec := models.ScanRecord{
		ScanID:          resp.ScanID,
		URL:             resp.URL,
		Status:          models.ScanStatusRunning,
		Threads:         threads,
		Vulnerabilities: []models.Vulnerability{},
	}
	if rec.URL == "" {
		rec.URL = target
	}

	c.logger.Info("scan started", "scan_id", rec.ScanID, "url", rec.URL, "threads", threads)
	c.apply(0, rec, true)
	return rec, nil
}

// RefreshStatus fetches scanID and replaces the canonical record with it,
// whatever was there before. The returned record is the canonical one after
// the call, which differs from the fetched one if a newer write won.
func (c *Controller) RefreshStatus(ctx context.Context, scanID string) (models.ScanRecord, error) {
	c.mu.Lock()
	seq := c.nextSeqLocked()
	c.mu.Unlock()

	if err := c.fetch(ctx, seq, scanID); err != nil {
		return models.ScanRecord{}, err
	}
	rec, _ := c.Current()
	return rec, nil
}

// ViewScan loads any scan, typically a finished one from history, into the
// canonical record. Viewing never fires lifecycle effects because the
// previous record belongs to a different scan.
func (c *Controller) ViewScan(ctx context.Context, scanID string) (models.ScanRecord, error) {
	return c.RefreshStatus(ctx, scanID)
}

// PollStatus is the poller's refresh: it only fetches while scanID is still
// the canonical, active scan.
func (c *Controller) PollStatus(ctx context.Context, scanID string) error {
	c.mu.Lock()
	if c.current == nil || c.current.ScanID != scanID || !c.current.Status.IsActive() {
		c.mu.Unlock()
		return nil
	}
	seq := c.nextSeqLocked()
	c.mu.Unlock()

	return c.fetch(ctx, seq, scanID)
}

func (c *Controller) nextSeqLocked() uint64 {
	c.issued++
	return c.issued
}

func (c *Controller) fetch(ctx context.Context, seq uint64, scanID string) error {
	rec, err := c.backend.GetScan(ctx, scanID)
	if err != nil {
		c.logger.Warn("status fetch failed", "scan_id", scanID, "error", err)
		return err
	}

	next := *rec
	if next.ScanID == "" {
		next.ScanID = scanID
	}
	if next.Vulnerabilities == nil {
		next.Vulnerabilities = []models.Vulnerability{}
	}

	c.apply(seq, next, false)
	return nil
}

// apply writes next as the canonical record unless a response issued later
// has already been applied. seq 0 takes a fresh sequence number at apply
// time. It reports whether the write happened.
func (c *Controller) apply(seq uint64, next models.ScanRecord, started bool) bool {
	c.mu.Lock()
	if seq == 0 {
		seq = c.nextSeqLocked()
	}
	if seq <= c.applied {
		c.mu.Unlock()
		c.logger.Debug("discarding stale status", "scan_id", next.ScanID, "seq", seq)
		return false
	}
	c.applied = seq
	prev := c.current
	c.current = &next
	observers := append([]func(models.ScanRecord){}, c.observers...)

	c.emitMu.Lock()
	c.mu.Unlock()
	defer c.emitMu.Unlock()

	c.emit(prev, next, started, observers)
	return true
}

func (c *Controller) emit(prev *models.ScanRecord, next models.ScanRecord, started bool, observers []func(models.ScanRecord)) {
	sameScan := !started && prev != nil && prev.ScanID == next.ScanID

	switch {
	case started:
		c.transition("", next)
	case sameScan && prev.Status != next.Status:
		c.logger.Info("scan status changed", "scan_id", next.ScanID, "from", prev.Status, "to", next.Status)
		c.transition(prev.Status, next)
	}

	if sameScan {
		for _, effect := range EffectsFor(prev.Status, next.Status) {
			c.fire(effect, next)
		}
	}

	for _, fn := range observers {
		fn(next)
	}
}

func (c *Controller) transition(from models.ScanStatus, rec models.ScanRecord) {
	if c.hooks.OnTransition != nil {
		c.hooks.OnTransition(from, rec)
	}
}

func (c *Controller) fire(effect Effect, rec models.ScanRecord) {
	var hook func(models.ScanRecord)
	switch effect {
	case EffectNotifyCompleted:
		hook = c.hooks.OnCompleted
	case EffectReportFailure:
		hook = c.hooks.OnFailed
	case EffectRefreshHistory:
		hook = c.hooks.OnSettled
	}
	if hook != nil {
		hook(rec)
	}
}
