package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"replicaft/internal/future"
	"replicaft/internal/store"
)

// ErrAborted is returned by operations issued after Abort.
var ErrAborted = errors.New("backend aborted")

// StoreBackend implements sum collectives through a rendezvous store.
// The rendezvous address has the form "host:port/prefix"; the prefix is
// quorum-scoped so stale participants from an earlier quorum can never
// collide with the current one.
type StoreBackend struct {
	connectTimeout time.Duration
	opTimeout      time.Duration

	mu        sync.Mutex
	client    *store.Client
	rdzv      string
	prefix    string
	rank      int
	worldSize int
	seq       int
	err       error
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewStoreBackend creates an unconfigured backend.
func NewStoreBackend(connectTimeout, opTimeout time.Duration) *StoreBackend {
	return &StoreBackend{
		connectTimeout: connectTimeout,
		opTimeout:      opTimeout,
	}
}

// Configure implements Backend.
func (b *StoreBackend) Configure(rendezvousAddr string, rank, worldSize int) error {
	addr, prefix, ok := strings.Cut(rendezvousAddr, "/")
	if !ok || addr == "" {
		return fmt.Errorf("invalid rendezvous address %q (expected host:port/prefix)", rendezvousAddr)
	}

	client, err := store.Dial(addr, b.connectTimeout)
	if err != nil {
		return fmt.Errorf("failed to join rendezvous %s: %w", rendezvousAddr, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}
	if b.client != nil {
		_ = b.client.Close()
	}

	// Rejoining the same rendezvous (after a transient failure) keeps
	// the sequence counter, so the next collective cannot alias keys
	// written by rounds that already completed under this prefix.
	if rendezvousAddr != b.rdzv {
		b.seq = 0
	}
	b.client = client
	b.rdzv = rendezvousAddr
	b.prefix = prefix
	b.rank = rank
	b.worldSize = worldSize
	b.err = nil
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return nil
}

// AllReduceSum implements Backend.
func (b *StoreBackend) AllReduceSum(data []float64) *future.Future[[]float64] {
	fut := future.New[[]float64]()

	b.mu.Lock()
	client := b.client
	ctx := b.ctx
	rank, worldSize := b.rank, b.worldSize
	if client == nil {
		b.mu.Unlock()
		fut.SetErr(errors.New("backend is not configured"))
		return fut
	}
	if err := b.err; err != nil {
		b.mu.Unlock()
		fut.SetErr(err)
		return fut
	}
	b.seq++
	base := fmt.Sprintf("%s/allreduce/%d", b.prefix, b.seq)
	b.mu.Unlock()

	go func() {
		result, err := b.runAllReduce(ctx, client, base, rank, worldSize, data)
		if err != nil {
			b.setErr(err)
			fut.SetErr(err)
			return
		}
		fut.SetResult(result)
	}()
	return fut
}

func (b *StoreBackend) runAllReduce(ctx context.Context, client *store.Client, base string, rank, worldSize int, data []float64) ([]float64, error) {
	opCtx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	contribution, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	if err := client.Set(opCtx, fmt.Sprintf("%s/in/%d", base, rank), contribution); err != nil {
		return nil, b.opError(ctx, err)
	}

	if rank == 0 {
		sum := make([]float64, len(data))
		for r := 0; r < worldSize; r++ {
			raw, err := client.Wait(opCtx, fmt.Sprintf("%s/in/%d", base, r), b.opTimeout)
			if err != nil {
				return nil, b.opError(ctx, err)
			}
			var vec []float64
			if err := json.Unmarshal(raw, &vec); err != nil {
				return nil, err
			}
			if len(vec) != len(sum) {
				return nil, fmt.Errorf("rank %d contributed %d elements, expected %d", r, len(vec), len(sum))
			}
			for i, v := range vec {
				sum[i] += v
			}
		}
		out, err := json.Marshal(sum)
		if err != nil {
			return nil, err
		}
		if err := client.Set(opCtx, base+"/out", out); err != nil {
			return nil, b.opError(ctx, err)
		}
	}

	raw, err := client.Wait(opCtx, base+"/out", b.opTimeout)
	if err != nil {
		return nil, b.opError(ctx, err)
	}
	var result []float64
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// opError distinguishes an abort from an ordinary failure.
func (b *StoreBackend) opError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	return err
}

func (b *StoreBackend) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
}

// Errored implements Backend.
func (b *StoreBackend) Errored() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Abort implements Backend.
func (b *StoreBackend) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	if b.err == nil {
		b.err = ErrAborted
	}
}
