// Package api is the client for the messaging backend's REST endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// maxResponseBytes caps how much of one reply is read.
const maxResponseBytes = 32 << 20

// StatusError is returned for non-2xx replies.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client calls the REST API with a bearer credential on every request.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a client for baseURL. Requests are authorized with
// tokens; base may be nil to use http.DefaultClient underneath.
func NewClient(baseURL string, tokens oauth2.TokenSource, base *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	hc := oauth2.NewClient(ctx, tokens)
	if base != nil && base.Timeout > 0 {
		hc.Timeout = base.Timeout
	} else {
		hc.Timeout = 30 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   hc,
		logger: logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (gjson.Result, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s reply: %w", path, err)
	}
	c.logger.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, &StatusError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return gjson.Result{}, nil
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%s %s: invalid JSON reply", method, path)
	}
	return gjson.ParseBytes(data), nil
}

// list returns the record array of a reply that is either a bare array or
// an object wrapping one under any of keys.
func list(root gjson.Result, keys ...string) []gjson.Result {
	if root.IsArray() {
		return root.Array()
	}
	for _, k := range keys {
		if v := root.Get(k); v.IsArray() {
			return v.Array()
		}
	}
	return nil
}
