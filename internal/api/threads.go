package api

import (
	"context"
	"net/http"

	"github.com/matheus3301/textsync/internal/message"
)

// ReadCursor is the server's read position of one thread.
type ReadCursor struct {
	ThreadID   string
	LastReadAt int64
}

// ListReadCursors fetches the authoritative read cursors.
func (c *Client) ListReadCursors(ctx context.Context) ([]ReadCursor, error) {
	root, err := c.do(ctx, http.MethodGet, "/threads/read", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []ReadCursor
	for _, rec := range list(root, "items", "threads", "data") {
		id := rec.Get("threadId").String()
		if id == "" {
			id = rec.Get("thread_id").String()
		}
		if id == "" {
			continue
		}
		for _, k := range []string{"lastReadAtMs", "lastReadAt", "last_read_at"} {
			if ms, ok := message.ParseTimestamp(rec.Get(k)); ok {
				out = append(out, ReadCursor{ThreadID: id, LastReadAt: ms})
				break
			}
		}
	}
	return out, nil
}

// ReadCursors returns ListReadCursors keyed by thread id, keeping the
// later value for duplicate ids.
func (c *Client) ReadCursors(ctx context.Context) (map[string]int64, error) {
	list, err := c.ListReadCursors(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(list))
	for _, rc := range list {
		out[rc.ThreadID] = max(out[rc.ThreadID], rc.LastReadAt)
	}
	return out, nil
}

// MarkReadRequest is the body of POST /threads/read.
type MarkReadRequest struct {
	ThreadID     string `json:"threadId"`
	ThreadKey    string `json:"threadKey"`
	LastReadAtMs int64  `json:"lastReadAtMs"`
	Origin       string `json:"origin"`
}

// MarkRead records the local read position on the server.
func (c *Client) MarkRead(ctx context.Context, req MarkReadRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/threads/read", nil, req)
	return err
}
