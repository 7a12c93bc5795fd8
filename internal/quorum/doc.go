// Package quorum derives per-replica quorum descriptors from the raw
// member list returned by the lighthouse: ranks within the full quorum
// and within the up-to-date cohort, and checkpoint recovery source and
// destination assignments for replicas that have fallen behind.
package quorum
