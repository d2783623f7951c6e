package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matheus3301/textsync/internal/aggregate"
	"github.com/matheus3301/textsync/internal/message"
	"github.com/matheus3301/textsync/internal/outbox"
	"github.com/matheus3301/textsync/internal/session"
	"github.com/matheus3301/textsync/internal/status"
	intsync "github.com/matheus3301/textsync/internal/sync"
)

// StatusReport is returned by Status.
type StatusReport struct {
	Session       string          `json:"session"`
	Channel       status.State    `json:"channel"`
	Attempts      int             `json:"attempts"`
	Loading       bool            `json:"loading"`
	Pages         int             `json:"pages"`
	Items         int             `json:"items"`
	Fallback      bool            `json:"fallback"`
	Degraded      bool            `json:"degraded"`
	LoadError     string          `json:"loadError,omitempty"`
	Messages      int             `json:"messages"`
	Stats         aggregate.Stats `json:"stats"`
	FailedSends   []string        `json:"failedSends,omitempty"`
	DroppedEvents uint64          `json:"droppedEvents"`
	UptimeMs      int64           `json:"uptimeMs"`
}

// SendBody is the payload of Send. ThreadID selects an existing thread;
// otherwise To starts or continues a one-to-one thread.
type SendBody struct {
	ThreadID string `json:"threadId,omitempty"`
	To       string `json:"to,omitempty"`
	Body     string `json:"body"`
	Wait     bool   `json:"wait,omitempty"`
}

type listRequest struct {
	Filter string `json:"filter,omitempty"`
	Query  string `json:"q,omitempty"`
}

// Server manages the gRPC control server of a session daemon.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates a gRPC server bound to the session's Unix domain socket.
func NewServer(p Params, sess *intsync.Session, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}

	// Set socket permissions to 0600.
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	RegisterControlServer(srv, &controlServer{
		name:    p.SessionName,
		sess:    sess,
		started: time.Now(),
		logger:  logger,
	})

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start begins serving gRPC requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("gRPC server stopping")
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

// controlServer implements ControlServer over a sync session.
type controlServer struct {
	name    string
	sess    *intsync.Session
	started time.Time
	logger  *zap.Logger
}

func (s *controlServer) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.sess.Status()
	rep := StatusReport{
		Session:       s.name,
		Channel:       status.Idle,
		Loading:       st.Loading,
		Pages:         st.Pages,
		Items:         st.Items,
		Fallback:      st.Fallback,
		Degraded:      st.Degraded,
		Messages:      s.sess.MessageCount(),
		Stats:         s.sess.Stats(),
		FailedSends:   s.sess.Outbox().Failed(),
		DroppedEvents: s.sess.Bus().Dropped(),
		UptimeMs:      time.Since(s.started).Milliseconds(),
	}
	if st.Err != nil {
		rep.LoadError = st.Err.Error()
	}
	if ch := s.sess.Channel(); ch != nil {
		rep.Channel = ch.State()
		rep.Attempts = ch.Attempts()
	}
	return toStruct(rep)
}

func (s *controlServer) Conversations(_ context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	var lr listRequest
	if err := decode(req, &lr); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	filter, err := aggregate.ParseFilter(lr.Filter)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	convs := s.sess.Conversations(filter, lr.Query)
	// The list carries the last message only.
	for i := range convs {
		convs[i].Messages = nil
	}
	return toList(orEmpty(convs))
}

func (s *controlServer) Thread(_ context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	conv, ok := s.sess.Thread(req.GetValue())
	if !ok {
		return nil, toStatus(intsync.ErrUnknownThread)
	}
	return toStruct(conv)
}

func (s *controlServer) MarkRead(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.sess.SelectThread(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *controlServer) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var body SendBody
	if err := decode(req, &body); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}

	var (
		msg message.Message
		err error
	)
	switch {
	case body.ThreadID != "":
		msg, err = s.sess.Send(body.ThreadID, body.Body)
	case body.To == "":
		return nil, grpcstatus.Error(codes.InvalidArgument, "threadId or to is required")
	case body.Wait:
		msg, err = s.sess.SendNow(ctx, body.To, body.Body)
	default:
		msg, err = s.sess.SendTo(body.To, body.Body)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(msg)
}

func (s *controlServer) Retry(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.sess.Retry(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *controlServer) Contacts(_ context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return toList(orEmpty(s.sess.SearchContacts(req.GetValue())))
}

func (s *controlServer) RefreshCursors(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.sess.Focus(ctx); err != nil {
		s.logger.Warn("cursor refresh failed", zap.Error(err))
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := encode(v, out); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func toList(v any) (*structpb.ListValue, error) {
	out := &structpb.ListValue{}
	if err := encode(v, out); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	code := codes.Unavailable
	switch {
	case errors.Is(err, intsync.ErrUnknownThread), errors.Is(err, outbox.ErrUnknownMessage):
		code = codes.NotFound
	case errors.Is(err, outbox.ErrEmptyBody):
		code = codes.InvalidArgument
	case errors.Is(err, outbox.ErrQueueFull):
		code = codes.ResourceExhausted
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return grpcstatus.Error(code, err.Error())
}
