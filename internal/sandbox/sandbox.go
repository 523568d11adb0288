// Package sandbox defines the isolated-execution collaborator
// contract. A sandbox runs exactly one code attempt per call with no
// state carried between attempts, captures stdout/stderr/exit status
// deterministically, and enforces the timeout by terminating the run
// rather than hanging. Provisioning faults are reported in the result
// (SetupFailure) so the caller can tell infrastructure failures from
// faults of the code itself.
package sandbox

import (
	"context"
	"strings"
	"time"

	"github.com/pcastell/mend/internal/models"
)

// RunOptions bounds one execution.
type RunOptions struct {
	// Timeout is the hard wall-clock budget for the attempt.
	Timeout time.Duration
	// CPUs limits CPU allocation; 0 means provider default.
	CPUs int
	// MemoryMB limits memory in MiB; 0 means provider default.
	MemoryMB int
	Env      map[string]string
}

// Sandbox runs one code attempt in isolation.
type Sandbox interface {
	// Name returns the adapter name (e.g. "docker", "modal").
	Name() string

	// Run executes the script and returns a structured result. Run
	// only returns a non-nil error for faults of the harness itself;
	// failures of the attempt, timeouts and provisioning faults are
	// all reported inside the result.
	Run(ctx context.Context, code string, opts RunOptions) (*models.ExecutionResult, error)
}

// ExtractTrace pulls the trailing exception traceback out of captured
// stderr, or returns "" when none is present. Interpreter output ends
// with the traceback, so the last occurrence wins.
func ExtractTrace(stderr string) string {
	const marker = "Traceback (most recent call last):"
	i := strings.LastIndex(stderr, marker)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(stderr[i:])
}
