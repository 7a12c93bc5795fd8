// Package future provides a minimal asynchronous result primitive:
// a write-once value with a completion channel, timeout wrapping and
// continuation chaining. Collective operations and checkpoint work
// surface their results through futures so callers can overlap them
// with other work and drain them before the commit decision.
package future
