// Package session wires the scan controller, poller, notifications, history
// and journal into one console session.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hugh/zerogap/internal/explain"
	"github.com/hugh/zerogap/internal/history"
	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/notify"
	"github.com/hugh/zerogap/internal/scan"
	"github.com/hugh/zerogap/internal/severity"
	"k8s.io/utils/clock"
)

// Backend is everything the session needs from the backend API.
// *client.Client satisfies it.
type Backend interface {
	scan.Backend
	history.Backend
	explain.Backend
}

// TransitionSink receives every journaled transition. *journal.Writer
// satisfies it.
type TransitionSink interface {
	Submit(t *models.Transition)
}

type Config struct {
	PollInterval   time.Duration
	HistoryDelay   time.Duration
	HistoryLimit   int
	DismissAfter   time.Duration
	NotifyFailures bool
}

type Deps struct {
	Backend Backend
	// Clock defaults to the real clock.
	Clock   clock.WithTickerAndDelayedExecution
	Sinks   []notify.Sink
	Journal TransitionSink
	Logger  *slog.Logger
}

type Session struct {
	Controller *scan.Controller
	Poller     *scan.Poller
	Notifier   *notify.Dispatcher
	History    *history.Refresher
	Explainer  *explain.Explainer

	cfg     Config
	clock   clock.WithTickerAndDelayedExecution
	journal TransitionSink
	logger  *slog.Logger

	mu      sync.Mutex
	closers []func()
	closed  bool
}

func New(cfg Config, deps Deps) *Session {
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	logger := deps.Logger

	s := &Session{
		cfg:     cfg,
		clock:   clk,
		journal: deps.Journal,
		logger:  logger.With("component", "session"),
	}

	s.Notifier = notify.NewDispatcher(clk, cfg.DismissAfter, logger, deps.Sinks...)
	s.History = history.NewRefresher(deps.Backend, history.NewStore(), s.Notifier, clk, history.Config{
		Delay: cfg.HistoryDelay,
		Limit: cfg.HistoryLimit,
	}, logger)
	s.Explainer = explain.New(deps.Backend, logger)

	s.Controller = scan.NewController(deps.Backend, scan.Hooks{
		OnCompleted:  s.onCompleted,
		OnFailed:     s.onFailed,
		OnSettled:    func(models.ScanRecord) { s.History.Schedule() },
		OnTransition: s.onTransition,
	}, logger)

	s.Poller = scan.NewPoller(clk, cfg.PollInterval, s.Controller.PollStatus, logger)
	s.Controller.Subscribe(s.Poller.Observe)

	return s
}

// AddCloser registers fn to run on Close, before the poller stops.
func (s *Session) AddCloser(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// Close stops polling and clears the notification. A history reload that is
// already scheduled still runs.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	s.Poller.Stop()
	s.Notifier.Close()
}

// Chart is the severity breakdown of the canonical record.
func (s *Session) Chart(radius float64) severity.Chart {
	rec, _ := s.Controller.Current()
	return SeverityChart(rec, radius)
}

func (s *Session) onCompleted(rec models.ScanRecord) {
	s.Notifier.Success(CompletedMessage(rec))
}

func (s *Session) onFailed(rec models.ScanRecord) {
	s.logger.Warn("scan failed", "scan_id", rec.ScanID, "error", rec.Error)
	if s.cfg.NotifyFailures {
		s.Notifier.Error(FailedMessage(rec))
	}
}

func (s *Session) onTransition(from models.ScanStatus, rec models.ScanRecord) {
	if s.journal == nil {
		return
	}
	s.journal.Submit(&models.Transition{
		ScanID:               rec.ScanID,
		URL:                  rec.URL,
		FromStatus:           from,
		ToStatus:             rec.Status,
		TotalVulnerabilities: rec.TotalVulnerabilities,
		Error:                rec.Error,
		OccurredAt:           s.clock.Now().UTC(),
	})
}

func CompletedMessage(rec models.ScanRecord) string {
	return fmt.Sprintf("Scan completed! %d vulnerabilities detected.", rec.TotalVulnerabilities)
}

func FailedMessage(rec models.ScanRecord) string {
	if rec.Error == "" {
		return "Scan failed."
	}
	return "Scan failed: " + rec.Error
}

// SeverityChart builds the chart for a record. Records without
// severity_stats fall back to tallying the listed findings.
func SeverityChart(rec models.ScanRecord, radius float64) severity.Chart {
	stats := rec.SeverityStats
	if len(stats) == 0 && len(rec.Vulnerabilities) > 0 {
		labels := make([]string, len(rec.Vulnerabilities))
		for i, v := range rec.Vulnerabilities {
			labels[i] = v.Severity
		}
		stats = severity.Tally(labels)
	}
	return severity.Build(stats, rec.TotalVulnerabilities, radius)
}
