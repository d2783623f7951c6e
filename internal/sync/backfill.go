package sync

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/textsync/internal/bus"
	"github.com/matheus3301/textsync/internal/contacts"
	"github.com/matheus3301/textsync/internal/message"
)

// BackfillPage is the payload of sync.backfill_page events.
type BackfillPage struct {
	Page  int
	Items int
	Total int
}

// Bootstrap runs the initial load: contacts, read cursors and message
// history concurrently. Each part applies its results as they arrive and
// a failing part does not stop the others.
func (s *Session) Bootstrap(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.RefreshContacts(ctx) })
	g.Go(func() error { return s.RefreshCursors(ctx) })
	g.Go(func() error {
		_, err := s.Backfill(ctx)
		return err
	})
	return g.Wait()
}

// RefreshContacts reloads the contact list and rebuilds the view so that
// display names and thread identities pick it up.
func (s *Session) RefreshContacts(ctx context.Context) error {
	entries, err := s.backend.ListContacts(ctx)
	if err != nil {
		s.logger.Warn("contact refresh failed", zap.Error(err))
		return fmt.Errorf("refresh contacts: %w", err)
	}
	if !s.current.Load() {
		return ErrSessionClosed
	}
	s.threads.SetIndex(contacts.Build(entries))
	s.logger.Info("contacts loaded", zap.Int("contacts", len(entries)))
	s.rebuild()
	return nil
}

// RefreshCursors fetches the server's read cursors once.
func (s *Session) RefreshCursors(ctx context.Context) error {
	n, err := s.poller.Refresh(ctx)
	if err != nil {
		s.logger.Warn("read cursor refresh failed", zap.Error(err))
		return err
	}
	if !s.current.Load() {
		return ErrSessionClosed
	}
	if n > 0 {
		s.rebuild()
	}
	return nil
}

// Backfill pages through the message history, applying each page as it
// arrives. It stops at the last page, an empty page, or the page and item
// ceilings. When a page fails, pagination is abandoned for one unpaginated
// fetch; if that fails as well the status is flagged degraded and whatever
// was already applied is kept.
func (s *Session) Backfill(ctx context.Context) (int, error) {
	s.setStatus(Status{Loading: true})

	total, pages := 0, 0
	next := ""
	for pages < s.opts.MaxPages {
		page, err := s.backend.ListMessages(ctx, s.opts.PageSize, next)
		if !s.current.Load() {
			return total, ErrSessionClosed
		}
		if err != nil {
			s.logger.Warn("history page failed, falling back to a single fetch",
				zap.Int("page", pages), zap.Error(err))
			return s.fallback(ctx, total, pages, err)
		}
		pages++
		n := s.ingestCapped("backfill", page.Items, total)
		total += n
		s.bus.Emit(bus.BackfillPage, BackfillPage{Page: pages, Items: n, Total: total})

		if page.NextCursor == "" || len(page.Items) == 0 || total >= s.opts.MaxItems {
			break
		}
		next = page.NextCursor
	}

	s.setStatus(Status{Pages: pages, Items: total})
	s.bus.Emit(bus.BackfillDone, total)
	s.logger.Info("history loaded", zap.Int("pages", pages), zap.Int("messages", total))
	return total, nil
}

func (s *Session) fallback(ctx context.Context, total, pages int, cause error) (int, error) {
	page, err := s.backend.ListMessages(ctx, 0, "")
	if !s.current.Load() {
		return total, ErrSessionClosed
	}
	if err != nil {
		err = multierr.Append(cause, err)
		s.setStatus(Status{Pages: pages, Items: total, Fallback: true, Degraded: true, Err: err})
		s.bus.Emit(bus.BackfillFailed, err)
		s.logger.Error("history load failed", zap.Error(err))
		s.rebuild()
		return total, fmt.Errorf("backfill: %w", err)
	}

	// The unpaginated reply repeats what the pages delivered; dedup absorbs it.
	n := s.ingestCapped("backfill-fallback", page.Items, 0)
	total = max(total, n)
	s.setStatus(Status{Pages: pages, Items: total, Fallback: true})
	s.bus.Emit(bus.BackfillDone, total)
	s.logger.Info("history loaded without pagination", zap.Int("messages", n))
	return total, nil
}

// ingestCapped applies at most MaxItems-already records and returns how
// many it applied.
func (s *Session) ingestCapped(source string, raws []message.Raw, already int) int {
	if room := s.opts.MaxItems - already; len(raws) > room {
		raws = raws[:max(room, 0)]
	}
	s.IngestRaw(source, raws)
	return len(raws)
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
