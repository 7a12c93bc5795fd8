package fault

import (
	"fmt"
	"runtime/debug"
)

// Envelope pairs a failure with the stack trace captured where it was
// first reported. It is the unit of failure reporting across the
// coordinator's asynchronous paths.
type Envelope struct {
	Err   error
	Stack string
}

// New captures the current stack and wraps err.
func New(err error) *Envelope {
	return &Envelope{
		Err:   err,
		Stack: string(debug.Stack()),
	}
}

// Newf is shorthand for New(fmt.Errorf(...)).
func Newf(format string, args ...any) *Envelope {
	return New(fmt.Errorf(format, args...))
}

func (e *Envelope) Error() string {
	return fmt.Sprintf("%v\n%s", e.Err, e.Stack)
}

func (e *Envelope) Unwrap() error {
	return e.Err
}
