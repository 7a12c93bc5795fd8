package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"replicaft/internal/api"
	"replicaft/internal/backend"
	"replicaft/internal/checkpoint"
	"replicaft/internal/fault"
	"replicaft/internal/future"
	"replicaft/internal/store"
)

// Store keys published by group rank 0 so the other local ranks can
// find the group endpoint.
const (
	managerAddrKey = "manager_addr"
	replicaIDKey   = "replica_id"
)

// ErrMaxRetries is returned by ShouldCommit once the configured number
// of consecutive commit failures is exceeded.
var ErrMaxRetries = fmt.Errorf("too many consecutive commit failures")

// Manager coordinates fault-tolerant training steps for one worker of
// a replica group. All methods are expected to be called from a single
// control goroutine, except ReportError and Shutdown which are safe to
// call concurrently.
type Manager[T any] struct {
	opts      Options
	replicaID string
	logger    *stepLogger

	backend   backend.Backend
	transport checkpoint.Transport[Bundle[T]]

	storeClient *store.Client
	server      *Server
	clientConn  *grpc.ClientConn
	client      api.ManagerClient
	listener    *failureListener

	loadUser func(T)
	saveUser func() T

	// quorumDone is the single-flight quorum task. Control-goroutine
	// only.
	quorumDone chan struct{}
	collected  bool

	mu                    sync.Mutex
	step                  int
	batchesCommitted      int
	commitFailures        int
	quorumID              int
	configured            bool
	errored               *fault.Envelope
	healing               bool
	pendingState          *Bundle[T]
	pendingWork           []future.Completion
	participatingRank     *int
	participatingWorldSize int

	errCh    chan *fault.Envelope
	procStop chan struct{}
	procDone chan struct{}

	shutdownOnce sync.Once
}

// NewManager connects the worker to its replica group. Group rank 0
// additionally hosts the group endpoint and publishes its address
// through the store.
func NewManager[T any](opts Options, b backend.Backend, t checkpoint.Transport[Bundle[T]]) (*Manager[T], error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	sc, err := store.Dial(opts.StoreAddr, opts.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	m := &Manager[T]{
		opts:        opts,
		backend:     b,
		transport:   t,
		storeClient: sc,
		errCh:       make(chan *fault.Envelope, 16),
		procStop:    make(chan struct{}),
		procDone:    make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	var managerAddr string
	if opts.GroupRank == 0 {
		// A fresh suffix per start distinguishes a restarted process
		// from the member it replaced.
		m.replicaID = opts.ReplicaID + ":" + uuid.NewString()

		srv, err := NewServer(ServerOptions{
			ReplicaID:         m.replicaID,
			Bind:              fmt.Sprintf("%s:%d", opts.Hostname, opts.BindPort),
			StoreAddr:         opts.StoreAddr,
			GroupWorldSize:    opts.GroupWorldSize,
			LighthouseAddr:    opts.LighthouseAddr,
			HeartbeatInterval: opts.HeartbeatInterval,
			ConnectTimeout:    opts.ConnectTimeout,
			QuorumTimeout:     opts.QuorumTimeout,
		})
		if err != nil {
			_ = sc.Close()
			return nil, err
		}
		m.server = srv
		managerAddr = srv.Addr()

		if err := sc.Set(ctx, managerAddrKey, []byte(managerAddr)); err != nil {
			m.closeOnInitError()
			return nil, err
		}
		if err := sc.Set(ctx, replicaIDKey, []byte(m.replicaID)); err != nil {
			m.closeOnInitError()
			return nil, err
		}
	} else {
		addr, err := sc.Wait(ctx, managerAddrKey, opts.ConnectTimeout)
		if err != nil {
			_ = sc.Close()
			return nil, fmt.Errorf("failed to resolve manager address: %w", err)
		}
		id, err := sc.Wait(ctx, replicaIDKey, opts.ConnectTimeout)
		if err != nil {
			_ = sc.Close()
			return nil, fmt.Errorf("failed to resolve replica id: %w", err)
		}
		managerAddr = string(addr)
		m.replicaID = string(id)
	}

	m.logger = &stepLogger{
		replicaID: m.replicaID,
		groupRank: opts.GroupRank,
		step:      m.CurrentStep,
	}

	cc, err := api.Dial(managerAddr, opts.ConnectTimeout)
	if err != nil {
		m.closeOnInitError()
		return nil, fmt.Errorf("failed to connect to manager at %s: %w", managerAddr, err)
	}
	m.clientConn = cc
	m.client = api.NewManagerClient(cc)

	if opts.ProactiveRecovery {
		m.listener = newFailureListener(opts.LighthouseAddr, opts.ConnectTimeout, opts.SubscribeTimeout, m.errCh)
		m.listener.start()
	}

	go m.processErrors()

	return m, nil
}

func (m *Manager[T]) closeOnInitError() {
	if m.server != nil {
		m.server.Shutdown()
	}
	_ = m.storeClient.Close()
}

// processErrors drains peer-failure and collective-failure reports and
// aborts in-flight work on each.
func (m *Manager[T]) processErrors() {
	defer close(m.procDone)
	for {
		select {
		case <-m.procStop:
			return
		case env := <-m.errCh:
			m.logger.Printf("received error: %v", env)
			m.ReportError(env)
			m.backend.Abort()
		}
	}
}

// SetStateFuncs registers the user state callbacks used during
// healing: save produces the state sent to recovering peers and load
// installs a received one.
func (m *Manager[T]) SetStateFuncs(load func(T), save func() T) {
	m.loadUser = load
	m.saveUser = save
}

// ReplicaID returns the process-unique replica id.
func (m *Manager[T]) ReplicaID() string {
	return m.replicaID
}

// ReportError marks the current step as failed. Collectives started
// afterwards complete immediately with their input unchanged, and
// ShouldCommit will vote false. Safe to call concurrently.
func (m *Manager[T]) ReportError(err error) {
	env, ok := err.(*fault.Envelope)
	if !ok {
		env = fault.New(err)
	}
	m.mu.Lock()
	m.errored = env
	m.mu.Unlock()
}

// Errored returns the failure recorded for the current step, if any.
func (m *Manager[T]) Errored() *fault.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errored
}

// StartQuorum begins forming a quorum for the next step. With async
// quorum enabled the call returns immediately and formation overlaps
// the caller's work; otherwise it blocks until the quorum resolves.
//
// The previous quorum's result must have been collected (via
// AllReduce, ShouldCommit or one of the participation accessors)
// before starting a new one.
func (m *Manager[T]) StartQuorum(allowHeal, shrinkOnly bool) error {
	if m.quorumDone != nil && !m.collected {
		return fmt.Errorf("previous quorum still outstanding")
	}

	m.mu.Lock()
	m.errored = nil
	m.healing = false
	m.pendingWork = m.pendingWork[:0]
	m.mu.Unlock()

	done := make(chan struct{})
	m.quorumDone = done
	m.collected = false
	go func() {
		defer close(done)
		m.runQuorum(allowHeal, shrinkOnly)
	}()

	if !m.opts.UseAsyncQuorum {
		m.waitQuorum()
		// Synchronous mode applies a received checkpoint before the
		// caller touches its state again.
		m.mu.Lock()
		healing := m.healing
		m.mu.Unlock()
		if healing {
			if err := m.applyPendingState(); err != nil {
				return err
			}
			m.mu.Lock()
			m.healing = false
			m.mu.Unlock()
		}
	}
	return nil
}

// WaitQuorum blocks until the quorum begun by StartQuorum resolves.
// Callers rarely need it directly: AllReduce, ShouldCommit and the
// participation accessors all wait implicitly.
func (m *Manager[T]) WaitQuorum() error {
	if m.quorumDone == nil {
		return fmt.Errorf("no quorum started")
	}
	m.waitQuorum()
	return nil
}

// waitQuorum blocks until the in-flight quorum task finishes.
func (m *Manager[T]) waitQuorum() {
	if m.quorumDone != nil {
		<-m.quorumDone
		m.collected = true
	}
}

// runQuorum is the single-flight quorum task. Every failure is
// reported rather than returned: the step then fails through the
// normal ShouldCommit path.
func (m *Manager[T]) runQuorum(allowHeal, shrinkOnly bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.QuorumTimeout)
	defer cancel()

	m.mu.Lock()
	step := m.step
	commitFailures := m.commitFailures
	m.mu.Unlock()

	resp, err := m.client.Quorum(ctx, &api.ManagerQuorumRequest{
		GroupRank:          m.opts.GroupRank,
		Step:               step,
		CheckpointMetadata: m.transport.Metadata(),
		ShrinkOnly:         shrinkOnly,
		InitSync:           m.opts.InitSync,
		CommitFailures:     commitFailures,
		BackendErrored:     m.backend.Errored() != nil,
	})
	if err != nil {
		m.logger.Printf("quorum failed: %v", err)
		m.ReportError(fmt.Errorf("quorum failed: %w", err))
		return
	}

	// The participating view is the full quorum when healing inside
	// the step is possible, and the up-to-date cohort otherwise.
	pRank := new(int)
	*pRank = resp.ReplicaRank
	pWorldSize := resp.ReplicaWorldSize
	if m.opts.UseAsyncQuorum || !allowHeal {
		pRank = resp.MaxReplicaRank
		pWorldSize = resp.MaxWorldSize
	}
	if m.opts.WorldSizeMode == FixedWithSpares {
		if pWorldSize > m.opts.MinReplicaSize {
			pWorldSize = m.opts.MinReplicaSize
		}
		if pRank != nil && *pRank >= m.opts.MinReplicaSize {
			pRank = nil
		}
	}

	// A backend that failed mid-step keeps its error until the next
	// Configure, so it must be reconfigured even when the quorum id is
	// unchanged. A transient collective failure then costs exactly one
	// step.
	backendErrored := m.backend.Errored() != nil

	m.mu.Lock()
	m.participatingRank = pRank
	m.participatingWorldSize = pWorldSize
	reconfigure := !m.configured || m.quorumID != resp.QuorumID || backendErrored
	m.quorumID = resp.QuorumID
	m.mu.Unlock()

	if reconfigure {
		rdzv := fmt.Sprintf("%s/replicaft/%d/%d", resp.StoreAddress, resp.QuorumID, m.opts.GroupRank)
		m.logger.Printf("Reconfiguring backend for quorum %d: rank %d of %d", resp.QuorumID, resp.ReplicaRank, resp.ReplicaWorldSize)
		if err := m.backend.Configure(rdzv, resp.ReplicaRank, resp.ReplicaWorldSize); err != nil {
			m.ReportError(fmt.Errorf("backend configure failed: %w", err))
			return
		}
		m.mu.Lock()
		m.configured = true
		m.mu.Unlock()
	}

	if allowHeal {
		if len(resp.RecoverDstReplicaRanks) > 0 {
			m.logger.Printf("Peers %v need recovery, sending checkpoint for step %d", resp.RecoverDstReplicaRanks, resp.MaxStep)
			if m.saveUser == nil {
				m.ReportError(fmt.Errorf("state funcs not set, cannot serve recovery"))
				return
			}
			bundle := Bundle[T]{User: m.saveUser(), Coordinator: m.State()}
			if err := m.transport.SendCheckpoint(ctx, resp.RecoverDstReplicaRanks, resp.MaxStep, bundle, m.opts.Timeout); err != nil {
				m.ReportError(fmt.Errorf("failed to send checkpoint: %w", err))
				return
			}
		}

		if resp.Heal {
			if err := m.heal(ctx, resp); err != nil {
				m.logger.Printf("healing failed: %v", err)
				m.ReportError(err)
				return
			}
		}
	}
}

// heal fetches the checkpoint for the quorum's max step from the
// assigned recovery source and stages it. The user portion is applied
// at the next ShouldCommit; the coordinator portion takes effect
// immediately so this replica joins the quorum at the right step.
func (m *Manager[T]) heal(ctx context.Context, resp *api.ManagerQuorumResponse) error {
	if resp.RecoverSrcReplicaRank == nil || resp.RecoverSrcManagerAddress == "" {
		return fmt.Errorf("quorum requires healing but assigned no recovery source")
	}
	m.logger.Printf("Healing from replica rank %d at %s", *resp.RecoverSrcReplicaRank, resp.RecoverSrcManagerAddress)

	m.mu.Lock()
	m.healing = true
	m.mu.Unlock()

	cc, err := api.Dial(resp.RecoverSrcManagerAddress, m.opts.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to recovery source: %w", err)
	}
	defer func() { _ = cc.Close() }()

	src := api.NewManagerClient(cc)
	md, err := src.CheckpointMetadata(ctx, &api.CheckpointMetadataRequest{GroupRank: m.opts.GroupRank})
	if err != nil {
		return fmt.Errorf("failed to fetch checkpoint metadata: %w", err)
	}

	bundle, err := m.transport.RecvCheckpoint(ctx, *resp.RecoverSrcReplicaRank, md.CheckpointMetadata, resp.MaxStep, m.opts.Timeout)
	if err != nil {
		return fmt.Errorf("failed to receive checkpoint: %w", err)
	}

	m.mu.Lock()
	m.pendingState = &bundle
	m.step = bundle.Coordinator.Step
	m.batchesCommitted = bundle.Coordinator.BatchesCommitted
	m.mu.Unlock()
	return nil
}

// AllReduce sums data element-wise across all participating replicas
// and divides by the participant count. If an error is already
// recorded for the step the input passes through unchanged, and a
// non-participating replica contributes (and receives) zeros.
func (m *Manager[T]) AllReduce(data []float64) *future.Future[[]float64] {
	if m.Errored() != nil {
		return future.Completed(data)
	}

	m.waitQuorum()

	if !m.IsParticipating() {
		for i := range data {
			data[i] = 0
		}
	}

	fut := m.backend.AllReduceSum(data)
	n := m.NumParticipants()
	scaled := future.Then(fut, func(out []float64, err error) ([]float64, error) {
		if err != nil {
			return nil, err
		}
		if n > 0 {
			for i := range out {
				out[i] /= float64(n)
			}
		}
		return out, nil
	})
	return WrapFuture(m, scaled, data, m.opts.Timeout)
}

// WrapFuture bounds fut with timeout and converts failures into step
// errors: on error or timeout the manager records the failure and the
// returned future completes with def instead. The wrapped future is
// tracked and drained at the next ShouldCommit.
func WrapFuture[S, T any](m *Manager[S], fut *future.Future[T], def T, timeout time.Duration) *future.Future[T] {
	bounded := future.Timeout(fut, timeout)
	out := future.Then(bounded, func(val T, err error) (T, error) {
		if err != nil {
			m.logger.Printf("got exception in future -- skipping remaining: %v", err)
			m.ReportError(err)
			return def, nil
		}
		return val, nil
	})

	m.mu.Lock()
	m.pendingWork = append(m.pendingWork, out)
	m.mu.Unlock()
	return out
}

// ShouldCommit decides whether the step's results may be applied. It
// drains outstanding wrapped futures, applies a staged recovery
// checkpoint when healing, then agrees a single boolean across the
// replica group: true only when every local rank saw no error and
// enough replicas participated.
//
// A false decision increments the consecutive-failure counter; once it
// exceeds MaxRetries (if set) the error is fatal and the caller should
// exit.
func (m *Manager[T]) ShouldCommit() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()

	m.waitQuorum()

	m.mu.Lock()
	pending := m.pendingWork
	m.pendingWork = nil
	m.mu.Unlock()

	for _, w := range pending {
		if m.Errored() != nil {
			break
		}
		select {
		case <-w.Done():
		case <-ctx.Done():
			m.ReportError(fmt.Errorf("timed out waiting for pending work: %w", ctx.Err()))
		}
	}

	if err := m.backend.Errored(); err != nil {
		m.ReportError(err)
	}

	m.mu.Lock()
	healing := m.healing
	m.mu.Unlock()
	if healing {
		if err := m.applyPendingState(); err != nil {
			return false, err
		}
		m.mu.Lock()
		m.healing = false
		m.mu.Unlock()
	}

	m.mu.Lock()
	step := m.step
	errored := m.errored
	enough := m.participatingWorldSize >= m.opts.MinReplicaSize
	m.mu.Unlock()

	local := enough && errored == nil

	resp, err := m.client.ShouldCommit(ctx, &api.ShouldCommitRequest{
		GroupRank:    m.opts.GroupRank,
		Step:         step,
		ShouldCommit: local,
	})
	if err != nil {
		return false, fmt.Errorf("should_commit failed: %w", err)
	}

	m.logger.Printf("should_commit=%v enough_replicas=%v, errored=%v", resp.ShouldCommit, enough, errored)

	// A checkpoint staged for this step must not be served once a new
	// step begins.
	m.transport.Disallow()

	m.mu.Lock()
	defer m.mu.Unlock()
	if resp.ShouldCommit {
		m.step++
		m.batchesCommitted += m.participatingWorldSize
		m.commitFailures = 0
		return true, nil
	}

	m.commitFailures++
	if m.opts.MaxRetries > 0 && m.commitFailures > m.opts.MaxRetries {
		return false, fmt.Errorf("%w: %d failures with max_retries=%d", ErrMaxRetries, m.commitFailures, m.opts.MaxRetries)
	}
	return false, nil
}

// applyPendingState installs the staged recovery checkpoint's user
// state. The checkpoint is consumed exactly once.
func (m *Manager[T]) applyPendingState() error {
	m.waitQuorum()

	m.mu.Lock()
	ps := m.pendingState
	m.pendingState = nil
	errored := m.errored
	m.mu.Unlock()

	if ps == nil {
		if errored != nil {
			// Recovery itself failed; the step fails through the
			// normal vote.
			return nil
		}
		return fmt.Errorf("healing but no pending state staged")
	}
	if m.loadUser == nil {
		return fmt.Errorf("state funcs not set, cannot apply recovery state")
	}
	m.logger.Printf("Applying recovered state for step %d", ps.Coordinator.Step)
	m.loadUser(ps.User)
	return nil
}

// CurrentStep returns the committed step count.
func (m *Manager[T]) CurrentStep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// BatchesCommitted returns the total batches committed across all
// participants over the job's lifetime.
func (m *Manager[T]) BatchesCommitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchesCommitted
}

// NumParticipants returns the participating world size of the current
// quorum, blocking on an outstanding quorum first.
func (m *Manager[T]) NumParticipants() int {
	m.waitQuorum()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.participatingWorldSize
}

// ParticipatingRank returns this replica's rank among participants,
// or nil for spares and healing replicas.
func (m *Manager[T]) ParticipatingRank() *int {
	m.waitQuorum()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.healing {
		return nil
	}
	return m.participatingRank
}

// IsParticipating reports whether this replica contributes real
// gradients to the current step.
func (m *Manager[T]) IsParticipating() bool {
	return m.ParticipatingRank() != nil
}

// State snapshots the coordinator-owned checkpoint state.
func (m *Manager[T]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Step: m.step, BatchesCommitted: m.batchesCommitted}
}

// LoadState restores coordinator state from a checkpoint.
func (m *Manager[T]) LoadState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step = s.Step
	m.batchesCommitted = s.BatchesCommitted
}

// Shutdown releases all resources. Safe to call more than once.
func (m *Manager[T]) Shutdown(wait bool) {
	m.shutdownOnce.Do(func() {
		if m.listener != nil {
			m.listener.stop()
		}

		close(m.procStop)
		select {
		case <-m.procDone:
		case <-time.After(5 * time.Second):
			m.logger.Printf("timed out waiting for error processor to stop")
		}

		if m.server != nil {
			m.server.Shutdown()
		}
		m.transport.Shutdown(wait)
		if m.clientConn != nil {
			_ = m.clientConn.Close()
		}
		_ = m.storeClient.Close()
	})
}
