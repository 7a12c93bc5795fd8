package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ManagerQuorumMethod             = "/replicaft.Manager/Quorum"
	ManagerShouldCommitMethod       = "/replicaft.Manager/ShouldCommit"
	ManagerCheckpointMetadataMethod = "/replicaft.Manager/CheckpointMetadata"
)

// ManagerClient is the client API for the Manager service hosted by
// group rank 0 of each replica group.
type ManagerClient interface {
	Quorum(ctx context.Context, in *ManagerQuorumRequest, opts ...grpc.CallOption) (*ManagerQuorumResponse, error)
	ShouldCommit(ctx context.Context, in *ShouldCommitRequest, opts ...grpc.CallOption) (*ShouldCommitResponse, error)
	CheckpointMetadata(ctx context.Context, in *CheckpointMetadataRequest, opts ...grpc.CallOption) (*CheckpointMetadataResponse, error)
}

type managerClient struct {
	cc grpc.ClientConnInterface
}

// NewManagerClient wraps an established connection.
func NewManagerClient(cc grpc.ClientConnInterface) ManagerClient {
	return &managerClient{cc: cc}
}

func (c *managerClient) Quorum(ctx context.Context, in *ManagerQuorumRequest, opts ...grpc.CallOption) (*ManagerQuorumResponse, error) {
	out := new(ManagerQuorumResponse)
	if err := c.cc.Invoke(ctx, ManagerQuorumMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *managerClient) ShouldCommit(ctx context.Context, in *ShouldCommitRequest, opts ...grpc.CallOption) (*ShouldCommitResponse, error) {
	out := new(ShouldCommitResponse)
	if err := c.cc.Invoke(ctx, ManagerShouldCommitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *managerClient) CheckpointMetadata(ctx context.Context, in *CheckpointMetadataRequest, opts ...grpc.CallOption) (*CheckpointMetadataResponse, error) {
	out := new(CheckpointMetadataResponse)
	if err := c.cc.Invoke(ctx, ManagerCheckpointMetadataMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ManagerServer is the server API for the Manager service.
type ManagerServer interface {
	Quorum(ctx context.Context, in *ManagerQuorumRequest) (*ManagerQuorumResponse, error)
	ShouldCommit(ctx context.Context, in *ShouldCommitRequest) (*ShouldCommitResponse, error)
	CheckpointMetadata(ctx context.Context, in *CheckpointMetadataRequest) (*CheckpointMetadataResponse, error)
}

// RegisterManagerServer registers srv on s.
func RegisterManagerServer(s grpc.ServiceRegistrar, srv ManagerServer) {
	s.RegisterService(&ManagerServiceDesc, srv)
}

func managerQuorumHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ManagerQuorumRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagerServer).Quorum(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ManagerQuorumMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ManagerServer).Quorum(ctx, req.(*ManagerQuorumRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func managerShouldCommitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ShouldCommitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagerServer).ShouldCommit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ManagerShouldCommitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ManagerServer).ShouldCommit(ctx, req.(*ShouldCommitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func managerCheckpointMetadataHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckpointMetadataRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ManagerServer).CheckpointMetadata(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ManagerCheckpointMetadataMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ManagerServer).CheckpointMetadata(ctx, req.(*CheckpointMetadataRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ManagerServiceDesc is the grpc.ServiceDesc for the Manager service.
var ManagerServiceDesc = grpc.ServiceDesc{
	ServiceName: "replicaft.Manager",
	HandlerType: (*ManagerServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Quorum",
			Handler:    managerQuorumHandler,
		},
		{
			MethodName: "ShouldCommit",
			Handler:    managerShouldCommitHandler,
		},
		{
			MethodName: "CheckpointMetadata",
			Handler:    managerCheckpointMetadataHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replicaft/manager",
}
