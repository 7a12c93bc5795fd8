// Package fault provides the error envelope used for failure reporting.
// An envelope carries the original error together with the stack trace
// captured when the failure was recorded, so errors surfacing from
// background work keep their causal context.
package fault
