package models

import "fmt"

// Task is an immutable problem statement. It is created once at run
// start and never mutated; every prompt the generator sees is derived
// from it plus the episode's diagnosis history.
type Task struct {
	Name      string
	Statement string
	// TestCases is source text appended to each candidate before
	// execution, so the sandbox runs code and checks in one script.
	TestCases string
	// Predicate, when present, is authoritative for success. When nil,
	// a clean run (exit 0, no captured trace) counts as success.
	Predicate *SuccessPredicate
}

// SuccessPredicate is a machine-checkable success condition evaluated
// against the execution result.
type SuccessPredicate struct {
	ExpectedStdout *string
	ExitStatus     *int
}

// Evaluate reports whether the predicate holds for the given output
// and exit status. The returned reason identifies the first mismatch
// and is empty on success.
func (p *SuccessPredicate) Evaluate(stdout string, exitStatus int) (bool, string) {
	if p.ExitStatus != nil && exitStatus != *p.ExitStatus {
		return false, fmt.Sprintf("expected exit status %d, got %d", *p.ExitStatus, exitStatus)
	}
	if p.ExpectedStdout != nil && stdout != *p.ExpectedStdout {
		return false, fmt.Sprintf("expected stdout %q, got %q", *p.ExpectedStdout, stdout)
	}
	return true, ""
}
