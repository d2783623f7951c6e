// Package realtime maintains the push channel: one authenticated
// connection delivering new messages and read receipts, reconnected with
// exponential backoff until torn down.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/matheus3301/textsync/internal/bus"
	"github.com/matheus3301/textsync/internal/message"
	"github.com/matheus3301/textsync/internal/status"
)

// Handler receives decoded push events.
type Handler interface {
	HandleMessage(threadID string, raw message.Raw)
	HandleThreadRead(threadID string, lastReadAt int64)
}

// Options configures a Channel. Zero values select defaults.
type Options struct {
	Scheduler Scheduler
	Backoff   Backoff
	// DegradedAfter is the number of consecutive failed attempts after
	// which channel.degraded is published. 0 disables the signal.
	DegradedAfter int
}

// Channel owns the push connection lifecycle.
type Channel struct {
	url     string
	dialer  Dialer
	tokens  oauth2.TokenSource
	handler Handler
	sched   Scheduler
	backoff Backoff
	degrade int
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	timer    Task
	attempts int
	degraded bool
	stopped  bool
}

// NewChannel creates a channel in the idle state.
func NewChannel(url string, dialer Dialer, tokens oauth2.TokenSource, handler Handler, opts Options, b *bus.Bus, logger *zap.Logger) *Channel {
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler{}
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:     url,
		dialer:  dialer,
		tokens:  tokens,
		handler: handler,
		sched:   opts.Scheduler,
		backoff: opts.Backoff,
		degrade: opts.DegradedAfter,
		machine: status.NewMachine(b),
		bus:     b,
		logger:  logger,
	}
}

// State returns the current connection state.
func (c *Channel) State() status.State {
	return c.machine.Current()
}

// Attempts returns the number of consecutive failed connection attempts.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Start begins connecting. It returns immediately.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil || c.stopped {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()
	c.spawn(ctx)
}

// Close tears the channel down: a pending reconnect is cancelled, the open
// connection is closed and no further attempts are made. It waits for the
// connection goroutine to exit.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	switch c.machine.Current() {
	case status.Connecting, status.Open:
		_ = c.machine.Transition(status.Closing)
	}
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine.Current() != status.Closed {
		if err := c.machine.Transition(status.Closed); err != nil {
			return fmt.Errorf("close push channel: %w", err)
		}
	}
	c.logger.Info("push channel closed")
	return nil
}

func (c *Channel) spawn(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.timer = nil
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// run performs one connection attempt and, once connected, reads frames
// until the connection drops.
func (c *Channel) run(ctx context.Context) {
	if !c.transition(status.Connecting) {
		return
	}

	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	defer conn.Close()

	if !c.opened() {
		return
	}
	if err := c.authenticate(ctx, conn); err != nil {
		c.fail(ctx, err)
		return
	}
	c.logger.Info("push channel open", zap.String("url", c.url))

	established := false
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.fail(ctx, fmt.Errorf("read push frame: %w", err))
			return
		}
		if !established {
			established = true
			c.established()
		}
		c.dispatch(data)
	}
}

func (c *Channel) authenticate(ctx context.Context, conn Conn) error {
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("get bearer token: %w", err)
	}
	if err := conn.WriteJSON(ctx, authFrame{Action: "auth", Token: tok.AccessToken}); err != nil {
		return fmt.Errorf("send auth frame: %w", err)
	}
	return nil
}

func (c *Channel) dispatch(data []byte) {
	f, err := ParseFrame(data)
	if err != nil {
		c.logger.Debug("ignoring push frame", zap.Error(err))
		return
	}
	switch f.Type {
	case FrameMessageNew:
		c.logger.Debug("push message", zap.String("thread_id", f.ThreadID))
		c.handler.HandleMessage(f.ThreadID, f.Message)
	case FrameThreadRead:
		c.logger.Debug("push read receipt", zap.String("thread_id", f.ThreadID), zap.Int64("last_read_at", f.LastReadAt))
		c.handler.HandleThreadRead(f.ThreadID, f.LastReadAt)
	default:
		c.logger.Debug("unhandled push frame", zap.String("type", f.Type))
	}
}

func (c *Channel) transition(to status.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	if err := c.machine.Transition(to); err != nil {
		c.logger.Error("push channel state", zap.Error(err))
		return false
	}
	return true
}

func (c *Channel) opened() bool {
	return c.transition(status.Open)
}

// established resets the failure streak. The server closes unauthenticated
// connections without sending anything, so the first inbound frame is what
// proves the token was accepted.
func (c *Channel) established() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = 0
	c.degraded = false
}

// fail records a dropped or failed connection and schedules the next
// attempt. After teardown it does nothing.
func (c *Channel) fail(ctx context.Context, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	if err := c.machine.Transition(status.Closed); err != nil {
		c.logger.Error("push channel state", zap.Error(err))
	}

	delay := c.backoff.Delay(c.attempts)
	c.attempts++
	c.logger.Warn("push channel down, reconnect scheduled",
		zap.Error(cause),
		zap.Int("attempt", c.attempts),
		zap.Duration("delay", delay),
	)

	if c.degrade > 0 && c.attempts >= c.degrade && !c.degraded {
		c.degraded = true
		c.logger.Error("push channel degraded", zap.Int("attempts", c.attempts))
		if c.bus != nil {
			c.bus.Emit(bus.ChannelDegraded, c.attempts)
		}
	}

	c.timer = c.sched.AfterFunc(delay, func() { c.spawn(ctx) })
}
