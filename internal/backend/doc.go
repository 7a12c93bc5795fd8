// Package backend defines the collective-communication provider used
// for cross-replica payload operations. The store-backed implementation
// rendezvouses participants through the group store: every rank posts
// its contribution under a sequence-numbered key, rank 0 reduces and
// publishes the result, and all ranks collect it.
package backend
