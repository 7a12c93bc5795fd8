package manager

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"replicaft/internal/api"
	"replicaft/internal/lighthouse"
	"replicaft/internal/quorum"
)

// ServerOptions configures the group RPC endpoint hosted by rank 0.
type ServerOptions struct {
	ReplicaID         string
	Bind              string
	StoreAddr         string
	GroupWorldSize    int
	LighthouseAddr    string
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	QuorumTimeout     time.Duration
}

// Server is the per-replica-group RPC endpoint. Every local rank sends
// its quorum and commit requests here; the server barriers across the
// group, forwards a single quorum request to the lighthouse, and hands
// the same answer back to every rank so the whole group acts as one
// replica.
type Server struct {
	opts       ServerOptions
	lighthouse *lighthouse.Client
	grpcServer *grpc.Server
	listener   net.Listener

	mu             sync.Mutex
	quorumBarriers map[int]*quorumBarrier
	commitBarriers map[int]*commitBarrier
	metadata       map[int]string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type quorumBarrier struct {
	reqs map[int]*api.ManagerQuorumRequest
	done chan struct{}
	resp *api.ManagerQuorumResponse
	err  error
}

type commitBarrier struct {
	votes map[int]bool
	done  chan struct{}
	ok    bool
}

// NewServer starts the group endpoint and the heartbeat loop.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.GroupWorldSize <= 0 {
		opts.GroupWorldSize = 1
	}

	lc, err := lighthouse.Dial(opts.LighthouseAddr, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	lis, err := net.Listen("tcp", opts.Bind)
	if err != nil {
		_ = lc.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", opts.Bind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:           opts,
		lighthouse:     lc,
		grpcServer:     grpc.NewServer(),
		listener:       lis,
		quorumBarriers: make(map[int]*quorumBarrier),
		commitBarriers: make(map[int]*commitBarrier),
		metadata:       make(map[int]string),
		ctx:            ctx,
		cancel:         cancel,
	}
	api.RegisterManagerServer(s.grpcServer, s)

	go func() {
		_ = s.grpcServer.Serve(lis)
	}()

	s.wg.Add(1)
	go s.heartbeatLoop()

	log.Printf("[%s/0] Manager server listening on %s", opts.ReplicaID, s.Addr())
	return s, nil
}

// Addr returns the advertised address of the endpoint.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the endpoint. Safe to call more than once.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
	s.grpcServer.Stop()
	_ = s.lighthouse.Close()
}

func (s *Server) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		hbCtx, cancel := context.WithTimeout(s.ctx, s.opts.HeartbeatInterval*4)
		err := s.lighthouse.Heartbeat(hbCtx, s.opts.ReplicaID)
		cancel()
		if err != nil && s.ctx.Err() == nil {
			log.Printf("[%s/0] Heartbeat failed: %v", s.opts.ReplicaID, err)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Quorum implements api.ManagerServer. The call barriers until every
// local rank has joined for the step, then forwards one request to the
// lighthouse on behalf of the whole group.
func (s *Server) Quorum(ctx context.Context, req *api.ManagerQuorumRequest) (*api.ManagerQuorumResponse, error) {
	s.mu.Lock()
	s.metadata[req.GroupRank] = req.CheckpointMetadata
	b, ok := s.quorumBarriers[req.Step]
	if !ok {
		b = &quorumBarrier{
			reqs: make(map[int]*api.ManagerQuorumRequest),
			done: make(chan struct{}),
		}
		s.quorumBarriers[req.Step] = b
	}
	b.reqs[req.GroupRank] = req
	full := len(b.reqs) == s.opts.GroupWorldSize
	s.mu.Unlock()

	if full {
		s.completeQuorum(req.Step, b)
	}

	select {
	case <-b.done:
		if b.err != nil {
			return nil, b.err
		}
		resp := *b.resp
		return &resp, nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// completeQuorum runs in the handler of the last rank to arrive.
func (s *Server) completeQuorum(step int, b *quorumBarrier) {
	defer func() {
		s.mu.Lock()
		delete(s.quorumBarriers, step)
		s.mu.Unlock()
		close(b.done)
	}()

	shrinkOnly := false
	initSync := false
	errored := false
	commitFailures := 0
	for _, req := range b.reqs {
		if req.ShrinkOnly {
			shrinkOnly = true
		}
		if req.InitSync {
			initSync = true
		}
		if req.BackendErrored {
			errored = true
		}
		if req.CommitFailures > commitFailures {
			commitFailures = req.CommitFailures
		}
	}

	member := api.QuorumMember{
		ReplicaID:      s.opts.ReplicaID,
		Address:        s.Addr(),
		StoreAddress:   s.opts.StoreAddr,
		Step:           step,
		WorldSize:      s.opts.GroupWorldSize,
		ShrinkOnly:     shrinkOnly,
		CommitFailures: commitFailures,
		Errored:        errored,
	}

	q, err := s.lighthouse.Quorum(s.ctx, member, s.opts.QuorumTimeout)
	if err != nil {
		b.err = err
		return
	}

	d, err := quorum.Compute(q, s.opts.ReplicaID, initSync)
	if err != nil {
		b.err = err
		return
	}

	b.resp = &api.ManagerQuorumResponse{
		QuorumID:                 d.QuorumID,
		ReplicaRank:              d.ReplicaRank,
		ReplicaWorldSize:         d.ReplicaWorldSize,
		RecoverSrcManagerAddress: d.RecoverSrcManagerAddress,
		RecoverSrcReplicaRank:    d.RecoverSrcReplicaRank,
		RecoverDstReplicaRanks:   d.RecoverDstReplicaRanks,
		StoreAddress:             d.StoreAddress,
		MaxStep:                  d.MaxStep,
		MaxReplicaRank:           d.MaxReplicaRank,
		MaxWorldSize:             d.MaxWorldSize,
		Heal:                     d.Heal,
	}
}

// ShouldCommit implements api.ManagerServer: one boolean decision per
// step, the AND of every local rank's readiness.
func (s *Server) ShouldCommit(ctx context.Context, req *api.ShouldCommitRequest) (*api.ShouldCommitResponse, error) {
	s.mu.Lock()
	b, ok := s.commitBarriers[req.Step]
	if !ok {
		b = &commitBarrier{
			votes: make(map[int]bool),
			done:  make(chan struct{}),
		}
		s.commitBarriers[req.Step] = b
	}
	b.votes[req.GroupRank] = req.ShouldCommit
	full := len(b.votes) == s.opts.GroupWorldSize
	if full {
		b.ok = true
		for _, v := range b.votes {
			b.ok = b.ok && v
		}
		delete(s.commitBarriers, req.Step)
	}
	s.mu.Unlock()

	if full {
		close(b.done)
	}

	select {
	case <-b.done:
		return &api.ShouldCommitResponse{ShouldCommit: b.ok}, nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// CheckpointMetadata implements api.ManagerServer. It returns the
// checkpoint metadata the given local rank submitted with its latest
// quorum request; recovering peers use it to fetch from the matching
// rank's transport.
func (s *Server) CheckpointMetadata(ctx context.Context, req *api.CheckpointMetadataRequest) (*api.CheckpointMetadataResponse, error) {
	s.mu.Lock()
	md, ok := s.metadata[req.GroupRank]
	s.mu.Unlock()

	if !ok {
		return nil, status.Errorf(codes.NotFound, "no checkpoint metadata for group rank %d", req.GroupRank)
	}
	return &api.CheckpointMetadataResponse{CheckpointMetadata: md}, nil
}
