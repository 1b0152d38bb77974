package chatfeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 4 * time.Second

// Poller calls Feed.Poll on a fixed interval from a single goroutine, so ticks
// never overlap.
type Poller struct {
	feed     *Feed
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller.
func NewPoller(feed *Feed, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{feed: feed, interval: interval, logger: logger}
}

// Start polls once right away and then on every tick until ctx is cancelled,
// the feed is closed or Stop is called. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	p.logger.Debug("chat poller started", zap.Duration("interval", p.interval))
}

// Stop cancels the polling goroutine and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Debug("chat poller stopped")
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		err := p.feed.Poll(ctx)
		if errors.Is(err, ErrClosed) {
			p.logger.Debug("chat poller exiting, feed closed")
			return
		}
		if err != nil && ctx.Err() == nil {
			p.logger.Debug("poll tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
