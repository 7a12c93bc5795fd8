// Package api defines the wire layer shared by all replicaft services:
// the JSON codec registered with gRPC, the request/response structs, and
// hand-written service descriptors and clients for the Lighthouse,
// Manager and Store services.
package api
