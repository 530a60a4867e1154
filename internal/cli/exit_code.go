package cli

import "errors"

// Process exit codes. Anything not wrapped in an ExitError exits with
// exitFailure.
const (
	exitFailure = 1
	exitUsage   = 2
)

// ExitError attaches a process exit code to err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func exitCodeError(code int, err error) error {
	if err == nil || code <= 0 {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

// usageError marks err as a problem with how the command was invoked.
func usageError(err error) error {
	return exitCodeError(exitUsage, err)
}

// ExitCode maps an Execute error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded *ExitError
	if errors.As(err, &coded) && coded.Code > 0 {
		return coded.Code
	}
	return exitFailure
}
