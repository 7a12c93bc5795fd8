package store

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"replicaft/internal/api"
)

// Server exposes an InMemory store over the Store gRPC service.
type Server struct {
	backing    *InMemory
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer creates a store server bound to addr (host:port, port 0 for
// an arbitrary port).
func NewServer(addr string) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		backing:    NewInMemory(),
		grpcServer: grpc.NewServer(),
		listener:   lis,
	}
	api.RegisterStoreServer(s.grpcServer, s)

	go func() {
		_ = s.grpcServer.Serve(lis)
	}()

	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	s.grpcServer.Stop()
}

// Set implements api.StoreServer.
func (s *Server) Set(ctx context.Context, req *api.StoreSetRequest) (*api.StoreSetResponse, error) {
	s.backing.Set(req.Key, req.Value)
	return &api.StoreSetResponse{}, nil
}

// Get implements api.StoreServer.
func (s *Server) Get(ctx context.Context, req *api.StoreGetRequest) (*api.StoreGetResponse, error) {
	value, found := s.backing.Get(req.Key)
	return &api.StoreGetResponse{Value: value, Found: found}, nil
}

// Wait implements api.StoreServer. The wait is bounded by the
// client-supplied timeout so a lost client cannot pin a handler.
func (s *Server) Wait(ctx context.Context, req *api.StoreWaitRequest) (*api.StoreWaitResponse, error) {
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Minute
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := s.backing.Wait(waitCtx, req.Key)
	if err != nil {
		return nil, err
	}
	return &api.StoreWaitResponse{Value: value}, nil
}
