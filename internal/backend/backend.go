package backend

import (
	"replicaft/internal/future"
)

// Backend is a reconfigurable collective-communication provider.
// Configure and the accessor methods are serialized by the caller (the
// step coordinator's single-flight quorum task); Abort may be called
// concurrently from the error-processing path.
type Backend interface {
	// Configure (re)joins the collective at rendezvousAddr with the
	// given rank and world size, clearing any prior error or abort.
	Configure(rendezvousAddr string, rank, worldSize int) error

	// AllReduceSum asynchronously sums data element-wise across all
	// configured ranks.
	AllReduceSum(data []float64) *future.Future[[]float64]

	// Errored reports a failure detected by the backend itself outside
	// any returned future.
	Errored() error

	// Abort fails all in-flight and future operations until the next
	// Configure.
	Abort()
}
