package cli

import "fmt"

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1 // catalog could not be enumerated, run cancelled
	ExitUsage   = 2 // bad flags, credentials, login or output directory
)

// ExitError carries the exit code a failed run should end with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

func usageErrorf(format string, args ...interface{}) error {
	return usageError(fmt.Errorf(format, args...))
}
