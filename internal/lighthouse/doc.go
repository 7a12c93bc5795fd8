// Package lighthouse implements the quorum service: replica groups
// heartbeat to it, join quorum formation before each step, and may
// subscribe to a stream of failure notifications raised when a member
// misses its heartbeat deadline. Quorum formation is a join barrier:
// a quorum is cut once every live member has rejoined, or the join
// timeout expires with at least min_replicas present.
package lighthouse
