package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	StoreSetMethod  = "/replicaft.Store/Set"
	StoreGetMethod  = "/replicaft.Store/Get"
	StoreWaitMethod = "/replicaft.Store/Wait"
)

// StoreClient is the client API for the Store service.
type StoreClient interface {
	Set(ctx context.Context, in *StoreSetRequest, opts ...grpc.CallOption) (*StoreSetResponse, error)
	Get(ctx context.Context, in *StoreGetRequest, opts ...grpc.CallOption) (*StoreGetResponse, error)
	Wait(ctx context.Context, in *StoreWaitRequest, opts ...grpc.CallOption) (*StoreWaitResponse, error)
}

type storeClient struct {
	cc grpc.ClientConnInterface
}

// NewStoreClient wraps an established connection.
func NewStoreClient(cc grpc.ClientConnInterface) StoreClient {
	return &storeClient{cc: cc}
}

func (c *storeClient) Set(ctx context.Context, in *StoreSetRequest, opts ...grpc.CallOption) (*StoreSetResponse, error) {
	out := new(StoreSetResponse)
	if err := c.cc.Invoke(ctx, StoreSetMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storeClient) Get(ctx context.Context, in *StoreGetRequest, opts ...grpc.CallOption) (*StoreGetResponse, error) {
	out := new(StoreGetResponse)
	if err := c.cc.Invoke(ctx, StoreGetMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *storeClient) Wait(ctx context.Context, in *StoreWaitRequest, opts ...grpc.CallOption) (*StoreWaitResponse, error) {
	out := new(StoreWaitResponse)
	if err := c.cc.Invoke(ctx, StoreWaitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StoreServer is the server API for the Store service.
type StoreServer interface {
	Set(ctx context.Context, in *StoreSetRequest) (*StoreSetResponse, error)
	Get(ctx context.Context, in *StoreGetRequest) (*StoreGetResponse, error)
	Wait(ctx context.Context, in *StoreWaitRequest) (*StoreWaitResponse, error)
}

// RegisterStoreServer registers srv on s.
func RegisterStoreServer(s grpc.ServiceRegistrar, srv StoreServer) {
	s.RegisterService(&StoreServiceDesc, srv)
}

func storeSetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StoreSetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Set(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StoreSetMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServer).Set(ctx, req.(*StoreSetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func storeGetHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StoreGetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StoreGetMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServer).Get(ctx, req.(*StoreGetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func storeWaitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StoreWaitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Wait(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StoreWaitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(StoreServer).Wait(ctx, req.(*StoreWaitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// StoreServiceDesc is the grpc.ServiceDesc for the Store service.
var StoreServiceDesc = grpc.ServiceDesc{
	ServiceName: "replicaft.Store",
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Set",
			Handler:    storeSetHandler,
		},
		{
			MethodName: "Get",
			Handler:    storeGetHandler,
		},
		{
			MethodName: "Wait",
			Handler:    storeWaitHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replicaft/store",
}
