package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hugh/zerogap/internal/models"
	"k8s.io/utils/clock"
)

const DefaultPollInterval = 2000 * time.Millisecond

// PollFunc refreshes one scan. Controller.PollStatus is the usual one.
type PollFunc func(ctx context.Context, scanID string) error

// Poller keeps exactly one ticker alive while the observed scan is active.
// Each tick issues its fetch on its own goroutine, so a slow response does
// not delay the next tick.
type Poller struct {
	clock    clock.WithTicker
	interval time.Duration
	poll     PollFunc
	logger   *slog.Logger

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	scanID string
	cancel context.CancelFunc
}

func NewPoller(clk clock.WithTicker, interval time.Duration, poll PollFunc, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Poller{
		clock:    clk,
		interval: interval,
		poll:     poll,
		logger:   logger.With("component", "poller"),
		ctx:      ctx,
		stop:     stop,
	}
}

// Observe is subscribed to the controller. An active record arms a ticker
// for its scan (replacing any other); an inactive one disarms it.
func (p *Poller) Observe(rec models.ScanRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	if !rec.Status.IsActive() {
		p.disarmLocked()
		return
	}
	if p.cancel != nil && p.scanID == rec.ScanID {
		return
	}

	p.disarmLocked()

	ctx, cancel := context.WithCancel(p.ctx)
	p.scanID = rec.ScanID
	p.cancel = cancel

	ticker := p.clock.NewTicker(p.interval)
	p.wg.Add(1)
	go p.run(ctx, ticker, rec.ScanID)

	p.logger.Debug("polling armed", "scan_id", rec.ScanID, "interval", p.interval.String())
}

// Polling returns the scan currently being polled, if any.
func (p *Poller) Polling() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanID, p.cancel != nil
}

// Stop disarms the ticker, ignores later records and waits for in-flight
// fetches to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.disarmLocked()
	p.stop()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) disarmLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.logger.Debug("polling stopped", "scan_id", p.scanID)
	p.cancel = nil
	p.scanID = ""
}

func (p *Poller) run(ctx context.Context, ticker clock.Ticker, scanID string) {
	defer p.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				if err := p.poll(ctx, scanID); err != nil && ctx.Err() == nil {
					p.logger.Debug("poll failed, retrying on next tick", "scan_id", scanID, "error", err)
				}
			}()
		}
	}
}
