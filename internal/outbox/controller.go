// Package outbox owns locally composed messages from submission until the
// server confirms or rejects them.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/textsync/internal/api"
	"github.com/matheus3301/textsync/internal/bus"
	"github.com/matheus3301/textsync/internal/message"
)

var (
	// ErrEmptyBody is returned when submitting a blank message.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrUnknownMessage is returned by Retry for ids that are not failed
	// sends of this controller.
	ErrUnknownMessage = errors.New("no failed message with that id")
	// ErrQueueFull is recorded on a message that could not be queued.
	ErrQueueFull = errors.New("send queue is full")
)

// LocalIDPrefix marks ids of locally originated messages.
const LocalIDPrefix = message.LocalIDPrefix

const queueSize = 256

// Sink is the message pipeline the controller writes into.
type Sink interface {
	Apply(msgs ...message.Message)
	// Update applies fn to the message with the given local id and reports
	// whether it was found.
	Update(localID string, fn func(*message.Message)) bool
}

// Poster delivers a message to the server.
type Poster interface {
	PostMessage(ctx context.Context, req api.SendRequest) (api.SendResponse, error)
}

// Ack is the payload of message.send_ack events.
type Ack struct {
	LocalID  string
	ServerID string
	ThreadID string
}

// Failure is the payload of message.send_failed events.
type Failure struct {
	LocalID  string
	ThreadID string
	Err      string
}

// Controller inserts optimistic messages and reconciles them with the
// server's answer. Acknowledgments are matched to their message by local
// id only.
type Controller struct {
	sink   Sink
	poster Poster
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	queue  chan message.Message
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	failed map[string]message.Message
}

// NewController creates a send controller.
func NewController(sink Sink, poster Poster, b *bus.Bus, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		sink:   sink,
		poster: poster,
		bus:    b,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return LocalIDPrefix + uuid.NewString() },
		queue:  make(chan message.Message, queueSize),
		failed: make(map[string]message.Message),
	}
}

// Start begins draining the send queue.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the queue and waits for in-flight sends. Messages still
// queued stay pending.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Controller) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case m := <-c.queue:
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				_, _ = c.deliver(ctx, m)
			}()
		case <-ctx.Done():
			return
		}
	}
}

// compose builds the optimistic record for a new message.
func (c *Controller) compose(threadID, to, body string) (message.Message, error) {
	if strings.TrimSpace(body) == "" {
		return message.Message{}, ErrEmptyBody
	}
	return message.Message{
		LocalID:      c.newID(),
		ThreadID:     threadID,
		Counterparty: to,
		Direction:    message.Sent,
		Body:         body,
		Kind:         message.Plain,
		Timestamp:    c.now().UnixMilli(),
		State:        message.Pending,
	}, nil
}

// Submit inserts a pending message and queues it for delivery. It returns
// without waiting for the network.
func (c *Controller) Submit(threadID, to, body string) (message.Message, error) {
	m, err := c.compose(threadID, to, body)
	if err != nil {
		return m, err
	}
	c.sink.Apply(m)
	c.enqueue(m)
	return m, nil
}

// Send inserts a pending message and delivers it before returning. The
// returned message carries its final state.
func (c *Controller) Send(ctx context.Context, threadID, to, body string) (message.Message, error) {
	m, err := c.compose(threadID, to, body)
	if err != nil {
		return m, err
	}
	c.sink.Apply(m)
	return c.deliver(ctx, m)
}

// Retry requeues a failed message under its original local id.
func (c *Controller) Retry(localID string) error {
	c.mu.Lock()
	m, ok := c.failed[localID]
	delete(c.failed, localID)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("retry %s: %w", localID, ErrUnknownMessage)
	}

	m.State = message.Pending
	m.Timestamp = c.now().UnixMilli()
	c.sink.Update(localID, func(stored *message.Message) {
		stored.State = message.Pending
		stored.Timestamp = m.Timestamp
	})
	c.enqueue(m)
	return nil
}

// Failed returns the local ids of messages whose last delivery failed.
func (c *Controller) Failed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.failed))
	for id := range c.failed {
		ids = append(ids, id)
	}
	return ids
}

func (c *Controller) enqueue(m message.Message) {
	select {
	case c.queue <- m:
	default:
		c.fail(m, ErrQueueFull)
	}
}

func (c *Controller) deliver(ctx context.Context, m message.Message) (message.Message, error) {
	resp, err := c.poster.PostMessage(ctx, api.SendRequest{
		ThreadID: m.ThreadID,
		Body:     m.Body,
		To:       m.Counterparty,
	})
	if err != nil {
		err = fmt.Errorf("send message: %w", err)
		c.fail(m, err)
		m.State = message.Error
		return m, err
	}

	ack := func(stored *message.Message) {
		stored.State = message.Synced
		if resp.MessageID != "" {
			stored.ServerID = resp.MessageID
		}
		if resp.Timestamp > 0 {
			stored.Timestamp = resp.Timestamp
		}
	}
	ack(&m)
	if !c.sink.Update(m.LocalID, ack) {
		// The server echo replaced the pending record already.
		c.logger.Debug("acked message no longer pending", zap.String("local_id", m.LocalID))
	}

	c.logger.Info("message sent", zap.String("local_id", m.LocalID), zap.String("server_id", resp.MessageID))
	if c.bus != nil {
		c.bus.Emit(bus.MessageSendAck, Ack{LocalID: m.LocalID, ServerID: resp.MessageID, ThreadID: m.ThreadID})
	}
	return m, nil
}

func (c *Controller) fail(m message.Message, err error) {
	c.sink.Update(m.LocalID, func(stored *message.Message) {
		stored.State = message.Error
	})
	m.State = message.Error
	c.mu.Lock()
	c.failed[m.LocalID] = m
	c.mu.Unlock()

	c.logger.Error("failed to send message", zap.Error(err), zap.String("local_id", m.LocalID))
	if c.bus != nil {
		c.bus.Emit(bus.MessageSendFailed, Failure{LocalID: m.LocalID, ThreadID: m.ThreadID, Err: err.Error()})
	}
}
