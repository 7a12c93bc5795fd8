package it

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"replicaft/internal/backend"
	"replicaft/internal/checkpoint"
	"replicaft/internal/lighthouse"
	"replicaft/internal/manager"
	"replicaft/internal/store"
)

// ModelState is the user state trained by the harness replicas.
type ModelState struct {
	Weights []float64 `json:"weights"`
}

// Replica is one single-rank replica group running in-process: its own
// rendezvous store, checkpoint transport and store-backed collective.
type Replica struct {
	ID      string
	Manager *manager.Manager[ModelState]

	mu    sync.Mutex
	state ModelState
}

// State returns a snapshot of the replica's model state.
func (r *Replica) State() ModelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ModelState{Weights: append([]float64(nil), r.state.Weights...)}
}

// ApplyGradient subtracts grad from the weights, the usual SGD update
// with a unit learning rate.
func (r *Replica) ApplyGradient(grad []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.state.Weights {
		r.state.Weights[i] -= grad[i]
	}
}

// StepResult is the outcome of one training step on one replica.
type StepResult struct {
	Committed bool
	Err       error
	Reduced   []float64
}

// Cluster is an in-process test cluster: one lighthouse plus any
// number of replicas.
type Cluster struct {
	Lighthouse *lighthouse.Server

	mu       sync.Mutex
	replicas map[string]*Replica
}

// NewCluster starts a lighthouse configured for quick formation.
func NewCluster(t *testing.T, minReplicas int, heartbeatTimeout time.Duration) *Cluster {
	t.Helper()

	lh, err := lighthouse.NewServer(lighthouse.Options{
		Bind:             "127.0.0.1:0",
		MinReplicas:      minReplicas,
		JoinTimeout:      100 * time.Millisecond,
		HeartbeatTimeout: heartbeatTimeout,
	})
	require.NoError(t, err)
	t.Cleanup(lh.Shutdown)

	return &Cluster{Lighthouse: lh, replicas: make(map[string]*Replica)}
}

// StartReplica brings up a replica with the given id and initial
// weights.
func (c *Cluster) StartReplica(t *testing.T, id string, weights []float64, minReplicaSize int) *Replica {
	t.Helper()

	st, err := store.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(st.Stop)

	transport, err := checkpoint.NewHTTPTransport[manager.Bundle[ModelState]]("127.0.0.1:0")
	require.NoError(t, err)

	b := backend.NewStoreBackend(5*time.Second, 10*time.Second)

	m, err := manager.NewManager[ModelState](manager.Options{
		ReplicaID:         id,
		MinReplicaSize:    minReplicaSize,
		StoreAddr:         st.Addr(),
		LighthouseAddr:    c.Lighthouse.Addr(),
		Timeout:           10 * time.Second,
		QuorumTimeout:     10 * time.Second,
		ConnectTimeout:    5 * time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
	}, b, transport)
	require.NoError(t, err)

	r := &Replica{
		ID:      id,
		Manager: m,
		state:   ModelState{Weights: append([]float64(nil), weights...)},
	}
	m.SetStateFuncs(
		func(s ModelState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.state = s
		},
		func() ModelState { return r.State() },
	)
	t.Cleanup(func() { m.Shutdown(false) })

	c.mu.Lock()
	c.replicas[id] = r
	c.mu.Unlock()
	return r
}

// Kill shuts the replica down without committing, simulating a dead
// worker. Its heartbeats stop and the lighthouse eventually reports
// the failure.
func (c *Cluster) Kill(id string) {
	c.mu.Lock()
	r := c.replicas[id]
	delete(c.replicas, id)
	c.mu.Unlock()
	if r != nil {
		r.Manager.Shutdown(false)
	}
}

// Step runs one synchronous training step on each replica
// concurrently: form a quorum, allreduce the replica's gradient, and
// commit. Committed replicas apply the averaged gradient.
func Step(grads map[*Replica][]float64) map[*Replica]StepResult {
	results := make(map[*Replica]StepResult, len(grads))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for r, grad := range grads {
		wg.Add(1)
		go func(r *Replica, grad []float64) {
			defer wg.Done()
			res := stepOne(r, grad)
			mu.Lock()
			results[r] = res
			mu.Unlock()
		}(r, append([]float64(nil), grad...))
	}
	wg.Wait()
	return results
}

func stepOne(r *Replica, grad []float64) StepResult {
	m := r.Manager
	if err := m.StartQuorum(true, false); err != nil {
		return StepResult{Err: err}
	}

	fut := m.AllReduce(grad)

	ok, err := m.ShouldCommit()
	if err != nil {
		return StepResult{Err: err}
	}

	<-fut.Done()
	reduced, ferr := fut.Value()
	if ok && ferr == nil {
		r.ApplyGradient(reduced)
	}
	return StepResult{Committed: ok, Reduced: reduced}
}
