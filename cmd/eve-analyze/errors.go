package main

// exitError pairs an error with the ExitCode main should terminate the
// process with, letting each cobra RunE return ordinary errors while
// still controlling the taxonomy §6 "Process exit codes" calls for.
type exitError struct {
	code ExitCode
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code ExitCode, err error) error {
	return &exitError{code: code, err: err}
}

func usageError(err error) error {
	return exitWith(ExitUsageError, err)
}
