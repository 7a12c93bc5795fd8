package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	LighthouseQuorumMethod            = "/replicaft.Lighthouse/Quorum"
	LighthouseHeartbeatMethod         = "/replicaft.Lighthouse/Heartbeat"
	LighthouseSubscribeFailuresMethod = "/replicaft.Lighthouse/SubscribeFailures"
)

// LighthouseClient is the client API for the Lighthouse service.
type LighthouseClient interface {
	Quorum(ctx context.Context, in *LighthouseQuorumRequest, opts ...grpc.CallOption) (*LighthouseQuorumResponse, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
	SubscribeFailures(ctx context.Context, in *SubscribeFailuresRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[FailureNotification], error)
}

type lighthouseClient struct {
	cc grpc.ClientConnInterface
}

// NewLighthouseClient wraps an established connection.
func NewLighthouseClient(cc grpc.ClientConnInterface) LighthouseClient {
	return &lighthouseClient{cc: cc}
}

func (c *lighthouseClient) Quorum(ctx context.Context, in *LighthouseQuorumRequest, opts ...grpc.CallOption) (*LighthouseQuorumResponse, error) {
	out := new(LighthouseQuorumResponse)
	if err := c.cc.Invoke(ctx, LighthouseQuorumMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lighthouseClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, LighthouseHeartbeatMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *lighthouseClient) SubscribeFailures(ctx context.Context, in *SubscribeFailuresRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[FailureNotification], error) {
	stream, err := c.cc.NewStream(ctx, &LighthouseServiceDesc.Streams[0], LighthouseSubscribeFailuresMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeFailuresRequest, FailureNotification]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// LighthouseServer is the server API for the Lighthouse service.
type LighthouseServer interface {
	Quorum(ctx context.Context, in *LighthouseQuorumRequest) (*LighthouseQuorumResponse, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest) (*HeartbeatResponse, error)
	SubscribeFailures(in *SubscribeFailuresRequest, stream grpc.ServerStreamingServer[FailureNotification]) error
}

// RegisterLighthouseServer registers srv on s.
func RegisterLighthouseServer(s grpc.ServiceRegistrar, srv LighthouseServer) {
	s.RegisterService(&LighthouseServiceDesc, srv)
}

func lighthouseQuorumHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LighthouseQuorumRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LighthouseServer).Quorum(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LighthouseQuorumMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LighthouseServer).Quorum(ctx, req.(*LighthouseQuorumRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func lighthouseHeartbeatHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LighthouseServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: LighthouseHeartbeatMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LighthouseServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func lighthouseSubscribeFailuresHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeFailuresRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(LighthouseServer).SubscribeFailures(in, &grpc.GenericServerStream[SubscribeFailuresRequest, FailureNotification]{ServerStream: stream})
}

// LighthouseServiceDesc is the grpc.ServiceDesc for the Lighthouse
// service. It is written by hand, the messages being plain structs
// carried by the JSON codec.
var LighthouseServiceDesc = grpc.ServiceDesc{
	ServiceName: "replicaft.Lighthouse",
	HandlerType: (*LighthouseServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Quorum",
			Handler:    lighthouseQuorumHandler,
		},
		{
			MethodName: "Heartbeat",
			Handler:    lighthouseHeartbeatHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeFailures",
			Handler:       lighthouseSubscribeFailuresHandler,
			ServerStreams: true,
		},
	},
	Metadata: "replicaft/lighthouse",
}
