// Package store provides the rendezvous key-value store used by a
// replica group: group rank 0 publishes the manager address and replica
// id under well-known keys, and the collective backend rendezvouses
// through prefixed keys. Values are write-once per key from the
// readers' perspective; Wait blocks until a key appears.
package store
