package sync

import (
	"slices"

	"go.uber.org/zap"

	"github.com/matheus3301/textsync/internal/aggregate"
	"github.com/matheus3301/textsync/internal/bus"
	"github.com/matheus3301/textsync/internal/cursor"
	"github.com/matheus3301/textsync/internal/message"
)

// Apply merges normalized messages into the message set and rebuilds the
// view. Every input path ends here. Applying a record that is already
// present changes nothing.
func (s *Session) Apply(msgs ...message.Message) {
	if len(msgs) == 0 || !s.current.Load() {
		return
	}
	s.mu.Lock()
	for _, m := range msgs {
		s.seq++
		if m.Seq == 0 {
			m.Seq = s.seq
		}
		s.msgs = append(s.msgs, m)
	}
	s.msgs = s.dedup.Dedupe(s.msgs)
	s.mu.Unlock()
	s.rebuild()
}

// Update applies fn to the message with the given local id. It is how
// locally originated messages move from pending to synced or error.
func (s *Session) Update(localID string, fn func(*message.Message)) bool {
	if !s.current.Load() {
		return false
	}
	s.mu.Lock()
	i := slices.IndexFunc(s.msgs, func(m message.Message) bool { return m.LocalID == localID })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	fn(&s.msgs[i])
	s.msgs = s.dedup.Dedupe(s.msgs)
	s.mu.Unlock()
	s.rebuild()
	return true
}

// IngestRaw normalizes raw records from source and applies them.
func (s *Session) IngestRaw(source string, raws []message.Raw) {
	if len(raws) == 0 {
		return
	}
	s.logger.Debug("ingest", zap.String("source", source), zap.Int("records", len(raws)))
	s.Apply(s.normalizer.NormalizeAll(raws)...)
}

// HandleMessage ingests a message delivered by the push channel.
func (s *Session) HandleMessage(threadID string, raw message.Raw) {
	if raw.ThreadID == "" {
		raw.ThreadID = threadID
	}
	s.IngestRaw("push", []message.Raw{raw})
}

// HandleThreadRead merges a read receipt delivered by the push channel.
func (s *Session) HandleThreadRead(threadID string, lastReadAt int64) {
	if !s.current.Load() {
		return
	}
	if s.cursors.Merge(threadID, lastReadAt, cursor.OriginPush) {
		s.rebuild()
	}
}

// rebuild derives the conversation list from the message set and cursors.
func (s *Session) rebuild() {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if !s.current.Load() {
		return
	}
	s.mu.RLock()
	msgs := slices.Clone(s.msgs)
	s.mu.RUnlock()

	view := s.aggregator.Build(msgs, s.cursors)

	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
	s.bus.Emit(bus.ViewUpdated, aggregate.Summarize(view))
}

// Conversations returns the current conversation list, newest first,
// narrowed by filter and a free-text query.
func (s *Session) Conversations(filter aggregate.Filter, query string) []aggregate.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate.Select(s.view, filter, query)
}

// Thread returns one conversation with its messages in display order.
func (s *Session) Thread(threadID string) (aggregate.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate.Find(s.view, threadID)
}

// Stats summarizes the conversation list.
func (s *Session) Stats() aggregate.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregate.Summarize(s.view)
}

// MessageCount returns the size of the deduplicated message set.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
