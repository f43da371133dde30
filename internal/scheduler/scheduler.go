// Package scheduler re-runs a scan of a fixed target on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/pkg/util"
	"github.com/robfig/cron/v3"
)

const startTimeout = 30 * time.Second

// ErrScanActive is returned by RunNow when the previous scan has not
// finished.
var ErrScanActive = errors.New("a scan is still active")

// Controller is the part of scan.Controller the scheduler uses.
type Controller interface {
	StartScan(ctx context.Context, target string, threads int) (models.ScanRecord, error)
	Current() (models.ScanRecord, bool)
}

type Config struct {
	Cron    string
	Target  string
	Threads int
}

type Scheduler struct {
	cfg    Config
	ctrl   Controller
	logger *slog.Logger
	cron   *cron.Cron
	entry  cron.EntryID

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

func New(cfg Config, ctrl Controller, logger *slog.Logger) (*Scheduler, error) {
	if _, err := util.ParseCronSchedule(cfg.Cron); err != nil {
		return nil, err
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("scheduled scan target is required")
	}

	s := &Scheduler{
		cfg:    cfg,
		ctrl:   ctrl,
		logger: logger.With("component", "scheduler"),
		cron:   util.NewCron(time.UTC),
	}

	id, err := s.cron.AddFunc(cfg.Cron, func() { _ = s.RunNow(context.Background()) })
	if err != nil {
		return nil, fmt.Errorf("registering schedule: %w", err)
	}
	s.entry = id

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduled rescans enabled", "cron", s.cfg.Cron, "target", s.cfg.Target, "next", s.Next())
}

// Stop halts the schedule and waits for a running start request to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next is the next planned run. Zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// LastRun reports when the schedule last fired and what it returned.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// RunNow starts a scan of the configured target unless the current scan is
// still active.
func (s *Scheduler) RunNow(ctx context.Context) error {
	err := s.run(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	return err
}

func (s *Scheduler) run(ctx context.Context) error {
	if rec, ok := s.ctrl.Current(); ok && rec.Status.IsActive() {
		s.logger.Info("skipping scheduled scan, previous scan still active", "scan_id", rec.ScanID)
		return ErrScanActive
	}

	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	rec, err := s.ctrl.StartScan(ctx, s.cfg.Target, s.cfg.Threads)
	if err != nil {
		s.logger.Error("scheduled scan failed to start", "target", s.cfg.Target, "error", err)
		return err
	}

	s.logger.Info("scheduled scan started", "scan_id", rec.ScanID, "target", rec.URL)
	return nil
}
