package backend

import (
	"sync"
	"time"

	"replicaft/internal/future"
)

// Fake is a single-process Backend for tests. AllReduceSum completes
// with the input unchanged (a one-replica sum), unless told to fail.
type Fake struct {
	mu             sync.Mutex
	configureCalls []string
	allReduceCalls int
	aborted        bool
	err            error

	FailConfigure error
	FailAllReduce error
	AllReduceWait time.Duration
}

// NewFake creates a fake backend.
func NewFake() *Fake {
	return &Fake{}
}

// Configure implements Backend.
func (f *Fake) Configure(rendezvousAddr string, rank, worldSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailConfigure != nil {
		return f.FailConfigure
	}
	f.configureCalls = append(f.configureCalls, rendezvousAddr)
	f.aborted = false
	f.err = nil
	return nil
}

// AllReduceSum implements Backend.
func (f *Fake) AllReduceSum(data []float64) *future.Future[[]float64] {
	f.mu.Lock()
	f.allReduceCalls++
	failErr := f.FailAllReduce
	wait := f.AllReduceWait
	f.mu.Unlock()

	fut := future.New[[]float64]()
	go func() {
		if wait > 0 {
			time.Sleep(wait)
		}
		if failErr != nil {
			fut.SetErr(failErr)
			return
		}
		fut.SetResult(append([]float64(nil), data...))
	}()
	return fut
}

// Errored implements Backend.
func (f *Fake) Errored() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// SetErrored injects a backend-detected error.
func (f *Fake) SetErrored(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Abort implements Backend.
func (f *Fake) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
}

// Aborted reports whether Abort was called since the last Configure.
func (f *Fake) Aborted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}

// ConfigureCalls returns the rendezvous addresses passed to Configure.
func (f *Fake) ConfigureCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.configureCalls...)
}

// AllReduceCalls returns how many collectives were issued.
func (f *Fake) AllReduceCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allReduceCalls
}
