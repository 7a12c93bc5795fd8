// Package manager implements the replica-group step coordinator: it
// forms a quorum of live replicas before each synchronized step, heals
// replicas that have fallen behind via checkpoint transfer, runs the
// per-step commit exchange with a bounded retry budget, and reacts to
// asynchronously reported peer failures by aborting the local
// communication backend instead of waiting for a collective timeout.
//
// One Manager runs per worker process. Group rank 0 additionally hosts
// the group's RPC endpoint, which aggregates quorum and commit requests
// from all local ranks and forwards a single request per step to the
// lighthouse.
package manager
