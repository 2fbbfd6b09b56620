package worker

import (
	"errors"
	"fmt"
)

// ErrTargetFailed is the failure cause when a target returns false or
// fails itself through its Handle.
var ErrTargetFailed = errors.New("worker: target reported failure")

// ExecutionFault wraps an error returned by a target or a recovered panic.
type ExecutionFault struct {
	Err error
}

func (f *ExecutionFault) Error() string {
	return fmt.Sprintf("execution fault: %v", f.Err)
}

func (f *ExecutionFault) Unwrap() error { return f.Err }
