package main

// ExitCode is the process exit-code taxonomy §6 "Process exit codes"
// calls for, given concrete values per original_source/main.cpp's
// loose sysexits.h convention.
type ExitCode int

const (
	ExitSuccess       ExitCode = 0
	ExitAnalysisError ExitCode = 1
	ExitUsageError    ExitCode = 2
	ExitInfraError    ExitCode = 3
	// ExitPartialFailure marks "succeeded but some artifacts failed to
	// build" (the value of sysexits.h EX_DATAERR, borrowed loosely as the
	// original does). This core only analyzes targets; it never executes
	// the actions an analysis produces, so no call site in this binary
	// currently returns it — it is declared here for the execution layer
	// this core is extracted from to reuse rather than invent its own.
	ExitPartialFailure ExitCode = 65
)
