package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const controlService = "textsync.v1.Control"

// ControlServer is the daemon's control service. Payloads travel as
// well-known protobuf types carrying the JSON form of the Go values.
type ControlServer interface {
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Conversations(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	Thread(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	MarkRead(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retry(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Contacts(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	RefreshCursors(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: controlService,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Status", func(s ControlServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.Status(ctx, in)
		}),
		unary("Conversations", func(s ControlServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Conversations(ctx, in)
		}),
		unary("Thread", func(s ControlServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
			return s.Thread(ctx, in)
		}),
		unary("MarkRead", func(s ControlServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
			return s.MarkRead(ctx, in)
		}),
		unary("Send", func(s ControlServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Send(ctx, in)
		}),
		unary("Retry", func(s ControlServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
			return s.Retry(ctx, in)
		}),
		unary("Contacts", func(s ControlServer, ctx context.Context, in *wrapperspb.StringValue) (proto.Message, error) {
			return s.Contacts(ctx, in)
		}),
		unary("RefreshCursors", func(s ControlServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.RefreshCursors(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterControlServer registers impl on s.
func RegisterControlServer(s grpc.ServiceRegistrar, impl ControlServer) {
	s.RegisterService(&controlServiceDesc, impl)
}

func fullMethod(name string) string {
	return "/" + controlService + "/" + name
}

func unary[Req any, PReq interface {
	*Req
	proto.Message
}](name string, call func(ControlServer, context.Context, PReq) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// encode converts v to its JSON form and loads it into m, which must be a
// Struct for objects or a ListValue for slices.
func encode(v any, m proto.Message) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	if err := protojson.Unmarshal(data, m); err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	return nil
}

// decode is the inverse of encode.
func decode(m proto.Message, v any) error {
	data, err := protojson.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
