package lighthouse

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"replicaft/internal/api"
)

const formationInterval = 10 * time.Millisecond

// Options configures a lighthouse server.
type Options struct {
	// Bind is the host:port to listen on (port 0 for arbitrary).
	Bind string
	// MinReplicas is the minimum number of participants per quorum.
	MinReplicas int
	// JoinTimeout bounds how long formation waits for known-alive
	// members to rejoin before cutting a quorum anyway.
	JoinTimeout time.Duration
	// HeartbeatTimeout is the deadline after which a silent member is
	// declared failed.
	HeartbeatTimeout time.Duration
}

type joiner struct {
	member api.QuorumMember
	ch     chan api.Quorum
}

// Server is the lighthouse quorum service.
type Server struct {
	opts       Options
	membership *Membership
	grpcServer *grpc.Server
	listener   net.Listener

	mu        sync.Mutex
	quorumID  int
	prev      map[string]bool
	pending   map[string]*joiner
	firstJoin time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer starts a lighthouse server.
func NewServer(opts Options) (*Server, error) {
	if opts.MinReplicas <= 0 {
		opts.MinReplicas = 1
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 100 * time.Millisecond
	}

	lis, err := net.Listen("tcp", opts.Bind)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", opts.Bind, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:       opts,
		membership: NewMembership(opts.HeartbeatTimeout),
		grpcServer: grpc.NewServer(),
		listener:   lis,
		prev:       make(map[string]bool),
		pending:    make(map[string]*joiner),
		ctx:        ctx,
		cancel:     cancel,
	}
	api.RegisterLighthouseServer(s.grpcServer, s)

	s.membership.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(formationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.tryFormQuorum()
			}
		}
	}()

	go func() {
		_ = s.grpcServer.Serve(lis)
	}()

	log.Printf("[lighthouse] Listening on %s (min_replicas=%d)", s.Addr(), opts.MinReplicas)
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server. Safe to call more than once.
func (s *Server) Shutdown() {
	s.cancel()
	s.wg.Wait()
	s.membership.Stop()
	s.grpcServer.Stop()
}

// Quorum implements api.LighthouseServer. The call blocks until the
// requester is part of a cut quorum or the caller's context expires.
func (s *Server) Quorum(ctx context.Context, req *api.LighthouseQuorumRequest) (*api.LighthouseQuorumResponse, error) {
	if req.Requester.ReplicaID == "" {
		return nil, status.Error(codes.InvalidArgument, "replica_id cannot be empty")
	}

	ch := s.join(req.Requester)
	select {
	case q := <-ch:
		return &api.LighthouseQuorumResponse{Quorum: q}, nil
	case <-ctx.Done():
		s.abandon(req.Requester.ReplicaID, ch)
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// Heartbeat implements api.LighthouseServer.
func (s *Server) Heartbeat(ctx context.Context, req *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	if req.ReplicaID == "" {
		return nil, status.Error(codes.InvalidArgument, "replica_id cannot be empty")
	}
	s.membership.Heartbeat(req.ReplicaID)
	return &api.HeartbeatResponse{}, nil
}

// SubscribeFailures implements api.LighthouseServer.
func (s *Server) SubscribeFailures(req *api.SubscribeFailuresRequest, stream grpc.ServerStreamingServer[api.FailureNotification]) error {
	id, ch := s.membership.Subscribe()
	defer s.membership.Unsubscribe(id)

	for {
		select {
		case replicaID := <-ch:
			if err := stream.Send(&api.FailureNotification{ReplicaID: replicaID}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		case <-s.ctx.Done():
			return nil
		}
	}
}

func (s *Server) join(member api.QuorumMember) chan api.Quorum {
	s.membership.Heartbeat(member.ReplicaID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		s.firstJoin = time.Now()
	}
	ch := make(chan api.Quorum, 1)
	s.pending[member.ReplicaID] = &joiner{member: member, ch: ch}
	return ch
}

func (s *Server) abandon(replicaID string, ch chan api.Quorum) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.pending[replicaID]; ok && j.ch == ch {
		delete(s.pending, replicaID)
	}
}

// tryFormQuorum cuts a new quorum when every live member has rejoined,
// or when the join timeout has expired with at least MinReplicas
// present. Under shrink-only, participants are limited to members of
// the previous quorum; excluded joiners stay pending for the next one.
func (s *Server) tryFormQuorum() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return
	}

	alive := s.membership.AliveIDs()
	allJoined := true
	for _, id := range alive {
		if _, ok := s.pending[id]; !ok {
			allJoined = false
			break
		}
	}
	timedOut := time.Since(s.firstJoin) >= s.opts.JoinTimeout

	if !allJoined && !timedOut {
		return
	}

	shrinkOnly := false
	for _, j := range s.pending {
		if j.member.ShrinkOnly {
			shrinkOnly = true
			break
		}
	}

	participants := make([]api.QuorumMember, 0, len(s.pending))
	for id, j := range s.pending {
		if shrinkOnly && len(s.prev) > 0 && !s.prev[id] {
			continue
		}
		participants = append(participants, j.member)
	}
	if len(participants) < s.opts.MinReplicas {
		return
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ReplicaID < participants[j].ReplicaID
	})

	// An unchanged participant set keeps its quorum id so members do
	// not reconfigure their backends between steps. A member whose
	// backend errored needs every participant to rendezvous afresh, so
	// its report advances the id even when membership is stable.
	unchanged := len(s.prev) == len(participants)
	if unchanged {
		for _, p := range participants {
			if !s.prev[p.ReplicaID] || p.Errored {
				unchanged = false
				break
			}
		}
	}
	if !unchanged {
		s.quorumID++
	}
	q := api.Quorum{
		QuorumID:     s.quorumID,
		Participants: participants,
		CreatedMs:    time.Now().UnixMilli(),
	}

	oldPrev := s.prev
	s.prev = make(map[string]bool, len(participants))
	for _, p := range participants {
		s.prev[p.ReplicaID] = true
	}

	// Members that dropped out of the quorum and stopped heartbeating
	// are gone for good; a restarted replica comes back under a fresh
	// id.
	aliveSet := make(map[string]bool, len(alive))
	for _, id := range alive {
		aliveSet[id] = true
	}
	for id := range oldPrev {
		if !s.prev[id] && !aliveSet[id] {
			s.membership.Forget(id)
		}
	}

	log.Printf("[lighthouse] Quorum %d formed with %d participants", q.QuorumID, len(participants))

	for _, p := range participants {
		j := s.pending[p.ReplicaID]
		delete(s.pending, p.ReplicaID)
		j.ch <- q
	}
	if len(s.pending) > 0 {
		s.firstJoin = time.Now()
	}
}
