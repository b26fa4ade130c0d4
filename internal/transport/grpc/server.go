// Package grpc exposes the dispatcher as the AppCallback gRPC service. The
// service is registered by hand over structpb messages, so no generated code
// is needed on either side.
package grpc

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shaharia-lab/notifier/internal/codec"
	"github.com/shaharia-lab/notifier/internal/dispatch"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "notifications.v1.AppCallback"

	methodOnInvoke               = "OnInvoke"
	methodListInputBindings      = "ListInputBindings"
	methodListTopicSubscriptions = "ListTopicSubscriptions"
)

// Request and response field names of the invoke messages. The payload is
// carried as JSON text in the data field.
const (
	fieldMethod = "method"
	fieldData   = "data"
)

// AppCallbackService is the handler type registered with a gRPC server.
type AppCallbackService interface {
	OnInvoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListInputBindings(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListTopicSubscriptions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// AppCallbackServer adapts a dispatcher to AppCallbackService.
type AppCallbackServer struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewAppCallbackServer creates an AppCallbackServer.
func NewAppCallbackServer(d *dispatch.Dispatcher, logger *slog.Logger) *AppCallbackServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppCallbackServer{dispatcher: d, logger: logger}
}

// NewServer creates a gRPC server with tracing and the AppCallback service
// registered.
func NewServer(svc AppCallbackService, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	srv := grpc.NewServer(opts...)
	Register(srv, svc)
	return srv
}

// Register adds svc to server.
func Register(server grpc.ServiceRegistrar, svc AppCallbackService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*AppCallbackService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: methodOnInvoke,
				Handler: unaryHandler(methodOnInvoke, func() any { return &structpb.Struct{} }, func(ctx context.Context, req any) (any, error) {
					return svc.OnInvoke(ctx, req.(*structpb.Struct))
				}),
			},
			{
				MethodName: methodListInputBindings,
				Handler: unaryHandler(methodListInputBindings, func() any { return &emptypb.Empty{} }, func(ctx context.Context, req any) (any, error) {
					return svc.ListInputBindings(ctx, req.(*emptypb.Empty))
				}),
			},
			{
				MethodName: methodListTopicSubscriptions,
				Handler: unaryHandler(methodListTopicSubscriptions, func() any { return &emptypb.Empty{} }, func(ctx context.Context, req any) (any, error) {
					return svc.ListTopicSubscriptions(ctx, req.(*emptypb.Empty))
				}),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "notifications/v1/app_callback.proto",
	}, svc)
}

// OnInvoke dispatches one envelope. A payload that cannot be decoded fails
// with InvalidArgument; any other dispatch failure with Internal.
func (s *AppCallbackServer) OnInvoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	method := req.GetFields()[fieldMethod].GetStringValue()
	if method == "" {
		return nil, status.Error(codes.InvalidArgument, "missing method")
	}
	data := req.GetFields()[fieldData].GetStringValue()

	out, err := s.dispatcher.Dispatch(ctx, dispatch.Envelope{Method: method, Payload: []byte(data)})
	if err != nil {
		var decErr *codec.DecodeError
		if errors.As(err, &decErr) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error("grpc invoke failed", "method", method, "error", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp, err := structpb.NewStruct(map[string]any{fieldData: string(out.Payload)})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

// ListInputBindings always reports no bindings.
func (s *AppCallbackServer) ListInputBindings(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	names := make([]any, 0)
	for _, b := range s.dispatcher.ListInputBindings() {
		names = append(names, b.Name)
	}
	resp, err := structpb.NewStruct(map[string]any{"bindings": names})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

// ListTopicSubscriptions always reports no subscriptions.
func (s *AppCallbackServer) ListTopicSubscriptions(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	subs := make([]any, 0)
	for _, t := range s.dispatcher.ListTopicSubscriptions() {
		subs = append(subs, map[string]any{"pubsubName": t.PubsubName, "topic": t.Topic})
	}
	resp, err := structpb.NewStruct(map[string]any{"subscriptions": subs})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func unaryHandler(
	method string,
	newReq func() any,
	call func(context.Context, any) (any, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		return interceptor(ctx, req, info, call)
	}
}

var _ AppCallbackService = (*AppCallbackServer)(nil)
