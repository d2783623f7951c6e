// Package sync is the session-scoped reconciliation engine. A Session owns
// the message set, the contact index, the read cursors, the dedup index and
// the push channel of one signed-in account, and derives the conversation
// list from them after every change.
package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/matheus3301/textsync/internal/aggregate"
	"github.com/matheus3301/textsync/internal/api"
	"github.com/matheus3301/textsync/internal/bus"
	"github.com/matheus3301/textsync/internal/contacts"
	"github.com/matheus3301/textsync/internal/cursor"
	"github.com/matheus3301/textsync/internal/dedup"
	"github.com/matheus3301/textsync/internal/message"
	"github.com/matheus3301/textsync/internal/outbox"
	"github.com/matheus3301/textsync/internal/realtime"
	"github.com/matheus3301/textsync/internal/thread"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// ErrUnknownThread is returned when a thread id matches no conversation.
var ErrUnknownThread = errors.New("unknown thread")

// Backend is the REST surface the session consumes.
type Backend interface {
	ListMessages(ctx context.Context, limit int, cursor string) (api.MessagePage, error)
	ListContacts(ctx context.Context) ([]contacts.Entry, error)
	ReadCursors(ctx context.Context) (map[string]int64, error)
	MarkRead(ctx context.Context, req api.MarkReadRequest) error
	PostMessage(ctx context.Context, req api.SendRequest) (api.SendResponse, error)
}

// Options tunes a session. Zero values select defaults.
type Options struct {
	// Local is the signed-in user's address.
	Local        string
	PageSize     int
	MaxPages     int
	MaxItems     int
	PollInterval time.Duration
}

func (o *Options) defaults() {
	if o.PageSize <= 0 {
		o.PageSize = 200
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.MaxItems <= 0 {
		o.MaxItems = 10000
	}
}

// Status describes the outcome of the last history load.
type Status struct {
	Loading  bool
	Pages    int
	Items    int
	Fallback bool
	Degraded bool
	Err      error
}

// Session is one account's live view.
type Session struct {
	backend Backend
	opts    Options
	bus     *bus.Bus
	logger  *zap.Logger

	threads    *thread.Resolver
	normalizer *message.Normalizer
	dedup      *dedup.Deduplicator
	aggregator *aggregate.Aggregator
	cursors    *cursor.Store
	poller     *cursor.Poller
	outbox     *outbox.Controller

	current atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      stdsync.WaitGroup

	buildMu stdsync.Mutex

	mu       stdsync.RWMutex
	msgs     []message.Message
	seq      uint64
	view     []aggregate.Conversation
	status   Status
	channel  *realtime.Channel
	selected string
}

// New creates a session. b may be nil, in which case a private bus is used.
func New(backend Backend, opts Options, b *bus.Bus, logger *zap.Logger) *Session {
	opts.defaults()
	if b == nil {
		b = bus.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		backend: backend,
		opts:    opts,
		bus:     b,
		logger:  logger,
		threads: thread.NewResolver(nil),
		cursors: cursor.NewStore(b),
	}
	local := func() string { return s.opts.Local }
	s.normalizer = message.NewNormalizer(s.threads, local)
	s.dedup = dedup.New(s.threads)
	s.aggregator = aggregate.New(s.threads, local)
	s.poller = cursor.NewPoller(backend, s.cursors, opts.PollInterval, logger.Named("cursor"))
	s.outbox = outbox.NewController(s, backend, b, logger.Named("outbox"))
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.current.Store(true)
	return s
}

// Bus returns the session's event bus.
func (s *Session) Bus() *bus.Bus { return s.bus }

// Start runs the background activities: cursor polling, the send queue
// and the cursor event subscriber.
func (s *Session) Start(ctx context.Context) {
	if !s.current.Load() {
		return
	}
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()
	s.poller.Start(s.ctx)
	s.outbox.Start(s.ctx)

	ch, unsub := s.bus.Subscribe("cursor.", 64)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsub()
		for {
			select {
			case evt := <-ch:
				// Push and local merges rebuild synchronously.
				if adv, ok := evt.Payload.(cursor.Advanced); ok && adv.Origin == cursor.OriginPoll {
					s.rebuild()
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Connect opens the push channel for this session. The channel is closed
// with the session.
func (s *Session) Connect(url string, dialer realtime.Dialer, tokens oauth2.TokenSource, opts realtime.Options) *realtime.Channel {
	ch := realtime.NewChannel(url, dialer, tokens, s, opts, s.bus, s.logger.Named("realtime"))
	s.mu.Lock()
	if !s.current.Load() || s.channel != nil {
		s.mu.Unlock()
		_ = ch.Close()
		return ch
	}
	s.channel = ch
	s.mu.Unlock()
	ch.Start(s.ctx)
	return ch
}

// Close tears the session down: the poll timer stops, the push channel and
// its reconnect timer are closed, in-flight loads are abandoned and no
// later result is applied.
func (s *Session) Close() error {
	if !s.current.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()

	var err error
	s.mu.RLock()
	ch := s.channel
	s.mu.RUnlock()
	if ch != nil {
		err = multierr.Append(err, ch.Close())
	}
	s.poller.Stop()
	s.outbox.Stop()
	s.wg.Wait()
	s.logger.Info("session closed")
	return err
}

// Current reports whether the session is still live.
func (s *Session) Current() bool { return s.current.Load() }

// Status returns the state of the history load.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Cursors exposes the read cursor store.
func (s *Session) Cursors() *cursor.Store { return s.cursors }

// Outbox exposes the send controller.
func (s *Session) Outbox() *outbox.Controller { return s.outbox }

// Channel returns the push channel, nil before Connect.
func (s *Session) Channel() *realtime.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}
