package checkpoint

import (
	"context"
	"time"
)

// Transport transfers checkpoint state to recovering replicas.
type Transport[T any] interface {
	// Metadata returns an opaque token a recovering replica needs to
	// fetch from this transport (for the HTTP transport, its URL).
	Metadata() string

	// SendCheckpoint stages state for step and allows dstRanks to
	// fetch it.
	SendCheckpoint(ctx context.Context, dstRanks []int, step int, state T, timeout time.Duration) error

	// RecvCheckpoint fetches the state staged for step from the
	// transport described by metadata.
	RecvCheckpoint(ctx context.Context, srcRank int, metadata string, step int, timeout time.Duration) (T, error)

	// Disallow invalidates any staged checkpoint.
	Disallow()

	// Shutdown releases the transport's resources.
	Shutdown(wait bool)
}
