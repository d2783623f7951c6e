package api

import (
	"context"
	"net/http"

	"github.com/matheus3301/textsync/internal/contacts"
)

// ListContacts fetches the contact list normalized into index entries.
// Records without a phone number are dropped.
func (c *Client) ListContacts(ctx context.Context) ([]contacts.Entry, error) {
	root, err := c.do(ctx, http.MethodGet, "/contacts", nil, nil)
	if err != nil {
		return nil, err
	}
	var out []contacts.Entry
	for _, rec := range list(root, "items", "contacts", "data") {
		if e, ok := contacts.Parse(rec); ok {
			out = append(out, e)
		}
	}
	return out, nil
}
