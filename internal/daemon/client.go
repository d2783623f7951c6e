package daemon

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/textsync/internal/aggregate"
	"github.com/matheus3301/textsync/internal/contacts"
	"github.com/matheus3301/textsync/internal/message"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient dials the daemon's Unix domain socket.
func NewClient(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// call invokes method and decodes the reply into out when out is non-nil.
// Errors from the daemon are returned as gRPC status errors.
func (c *Client) call(ctx context.Context, method string, in, reply proto.Message, out any) error {
	if err := c.conn.Invoke(ctx, fullMethod(method), in, reply); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(reply, out)
}

// Status returns the daemon's status report.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	var rep StatusReport
	err := c.call(ctx, "Status", &emptypb.Empty{}, &structpb.Struct{}, &rep)
	return rep, err
}

// Conversations lists conversations, newest first.
func (c *Client) Conversations(ctx context.Context, filter, query string) ([]aggregate.Conversation, error) {
	req := &structpb.Struct{}
	if err := encode(listRequest{Filter: filter, Query: query}, req); err != nil {
		return nil, err
	}
	var convs []aggregate.Conversation
	err := c.call(ctx, "Conversations", req, &structpb.ListValue{}, &convs)
	return convs, err
}

// Thread returns one conversation with its messages.
func (c *Client) Thread(ctx context.Context, threadID string) (aggregate.Conversation, error) {
	var conv aggregate.Conversation
	err := c.call(ctx, "Thread", wrapperspb.String(threadID), &structpb.Struct{}, &conv)
	return conv, err
}

// MarkRead opens a thread, advancing its read cursor.
func (c *Client) MarkRead(ctx context.Context, threadID string) error {
	return c.call(ctx, "MarkRead", wrapperspb.String(threadID), &emptypb.Empty{}, nil)
}

// Send submits a message and returns the pending (or, with Wait, the
// acknowledged) message.
func (c *Client) Send(ctx context.Context, body SendBody) (message.Message, error) {
	var msg message.Message
	req := &structpb.Struct{}
	if err := encode(body, req); err != nil {
		return msg, err
	}
	err := c.call(ctx, "Send", req, &structpb.Struct{}, &msg)
	return msg, err
}

// Retry requeues a failed send.
func (c *Client) Retry(ctx context.Context, localID string) error {
	return c.call(ctx, "Retry", wrapperspb.String(localID), &emptypb.Empty{}, nil)
}

// Contacts searches the daemon's contact index.
func (c *Client) Contacts(ctx context.Context, query string) ([]contacts.Entry, error) {
	var entries []contacts.Entry
	err := c.call(ctx, "Contacts", wrapperspb.String(query), &structpb.ListValue{}, &entries)
	return entries, err
}

// RefreshCursors asks the daemon to fetch read cursors now.
func (c *Client) RefreshCursors(ctx context.Context) error {
	return c.call(ctx, "RefreshCursors", &emptypb.Empty{}, &emptypb.Empty{}, nil)
}
