package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/textsync/internal/api"
	"github.com/matheus3301/textsync/internal/contacts"
	"github.com/matheus3301/textsync/internal/cursor"
	"github.com/matheus3301/textsync/internal/message"
	"github.com/matheus3301/textsync/internal/thread"
)

// SelectThread opens a thread: its cursor advances to the last message at
// once and the server is told in the background. A failed server write is
// only logged; the local cursor stands.
func (s *Session) SelectThread(threadID string) error {
	if !s.current.Load() {
		return ErrSessionClosed
	}
	conv, ok := s.Thread(threadID)
	if !ok {
		return fmt.Errorf("select thread %s: %w", threadID, ErrUnknownThread)
	}
	s.mu.Lock()
	s.selected = conv.ThreadID
	s.mu.Unlock()

	ts := conv.LastMessage.Timestamp
	if !s.cursors.Merge(conv.ThreadID, ts, cursor.OriginLocal) {
		return nil
	}
	s.rebuild()

	req := api.MarkReadRequest{
		ThreadID:     conv.ThreadID,
		ThreadKey:    thread.Canonical(conv.ThreadID),
		LastReadAtMs: ts,
		Origin:       string(cursor.OriginLocal),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.backend.MarkRead(s.ctx, req); err != nil && s.ctx.Err() == nil {
			s.logger.Warn("read cursor write failed", zap.String("thread_id", req.ThreadID), zap.Error(err))
		}
	}()
	return nil
}

// Selected returns the id of the last selected thread.
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Focus is called when the user returns to the app; it refreshes the read
// cursors immediately instead of waiting for the next poll.
func (s *Session) Focus(ctx context.Context) error {
	return s.RefreshCursors(ctx)
}

// Send queues body for an existing thread. The pending message is visible
// before Send returns.
func (s *Session) Send(threadID, body string) (message.Message, error) {
	if !s.current.Load() {
		return message.Message{}, ErrSessionClosed
	}
	conv, ok := s.Thread(threadID)
	if !ok {
		to := s.threads.Counterparty(threadID, s.opts.Local)
		if to == "" {
			return message.Message{}, fmt.Errorf("send to %s: %w", threadID, ErrUnknownThread)
		}
		return s.outbox.Submit(s.threads.ID(s.opts.Local, to), to, body)
	}
	to := ""
	if !conv.IsGroup {
		to = conv.Counterparty
	}
	return s.outbox.Submit(conv.ThreadID, to, body)
}

// SendTo queues body for address, starting a new thread if needed.
func (s *Session) SendTo(address, body string) (message.Message, error) {
	if !s.current.Load() {
		return message.Message{}, ErrSessionClosed
	}
	return s.outbox.Submit(s.threads.ID(s.opts.Local, address), address, body)
}

// SendNow sends body to address and waits for the server's answer.
func (s *Session) SendNow(ctx context.Context, address, body string) (message.Message, error) {
	if !s.current.Load() {
		return message.Message{}, ErrSessionClosed
	}
	return s.outbox.Send(ctx, s.threads.ID(s.opts.Local, address), address, body)
}

// Retry requeues a failed send.
func (s *Session) Retry(localID string) error {
	if !s.current.Load() {
		return ErrSessionClosed
	}
	return s.outbox.Retry(localID)
}

// SearchContacts searches the contact list for starting a conversation.
func (s *Session) SearchContacts(query string) []contacts.Entry {
	return s.threads.Index().Search(query)
}
