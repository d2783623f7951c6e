package cursor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Source lists the server's read cursors keyed by thread id, in
// milliseconds.
type Source interface {
	ReadCursors(ctx context.Context) (map[string]int64, error)
}

// Poller periodically merges server read cursors into a Store. It covers
// read events the push channel missed, such as reads on another device
// while disconnected.
type Poller struct {
	source   Source
	store    *Store
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a poller. A non-positive interval disables the loop;
// Refresh can still be called directly.
func NewPoller(source Source, store *Store, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		source:   source,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Start begins polling until ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop stops the poll loop and waits for an in-flight refresh to finish.
// Results of a refresh cancelled this way are discarded.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
		p.cancel = nil
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("read cursor poll failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Refresh fetches cursors once and merges them. It returns how many
// threads advanced.
func (p *Poller) Refresh(ctx context.Context) (int, error) {
	cursors, err := p.source.ReadCursors(ctx)
	if err != nil {
		return 0, fmt.Errorf("list read cursors: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	advanced := 0
	for threadID, ts := range cursors {
		if p.store.Merge(threadID, ts, OriginPoll) {
			advanced++
		}
	}
	if advanced > 0 {
		p.logger.Debug("read cursors advanced", zap.Int("threads", advanced))
	}
	return advanced, nil
}
