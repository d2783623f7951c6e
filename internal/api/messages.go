package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/textsync/internal/message"
)

// MessagePage is one page of the message history.
type MessagePage struct {
	Items      []message.Raw
	NextCursor string
}

// ListMessages fetches one page. A zero limit and empty cursor request the
// whole history in one reply.
func (c *Client) ListMessages(ctx context.Context, limit int, cursor string) (MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	root, err := c.do(ctx, http.MethodGet, "/messages", q, nil)
	if err != nil {
		return MessagePage{}, err
	}

	var page MessagePage
	for _, rec := range list(root, "items", "messages", "data") {
		page.Items = append(page.Items, message.ParseRaw(rec))
	}
	if !root.IsArray() {
		for _, k := range []string{"nextCursor", "next_cursor", "cursor"} {
			if v := root.Get(k); v.Type == gjson.String && v.Str != "" {
				page.NextCursor = v.Str
				break
			}
		}
	}
	return page, nil
}

// SendRequest is the body of POST /messages.
type SendRequest struct {
	ThreadID string `json:"threadId,omitempty"`
	Body     string `json:"body"`
	To       string `json:"to"`
}

// SendResponse is the server's acknowledgment of a sent message.
type SendResponse struct {
	MessageID string
	// Timestamp is the server timestamp in epoch milliseconds, 0 if the
	// reply carried none.
	Timestamp int64
}

// PostMessage sends a message.
func (c *Client) PostMessage(ctx context.Context, req SendRequest) (SendResponse, error) {
	root, err := c.do(ctx, http.MethodPost, "/messages", nil, req)
	if err != nil {
		return SendResponse{}, err
	}
	if d := root.Get("data"); d.IsObject() {
		root = d
	}
	var resp SendResponse
	for _, k := range []string{"messageId", "message_id", "id"} {
		if v := root.Get(k); v.Exists() && v.String() != "" {
			resp.MessageID = v.String()
			break
		}
	}
	for _, k := range []string{"timestamp", "createdAt", "date"} {
		if ms, ok := message.ParseTimestamp(root.Get(k)); ok {
			resp.Timestamp = ms
			break
		}
	}
	return resp, nil
}
