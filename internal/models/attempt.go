package models

import "time"

// Attempt is one generated-code submission within an episode.
// Iteration indices start at 0 and are gap-free. Immutable once
// created.
type Attempt struct {
	Iteration int    `json:"iteration"`
	Code      string `json:"code"`
	Rationale string `json:"rationale"`
}

// ExecutionResult is the sandbox's report for exactly one attempt.
type ExecutionResult struct {
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	ExitStatus int           `json:"exit_status"`
	Duration   time.Duration `json:"duration"`
	// Trace holds a captured exception or stack trace, when the
	// sandbox can distinguish one from ordinary stderr.
	Trace string `json:"trace,omitempty"`
	// TimedOut is set when the attempt exceeded its time budget and
	// the sandbox terminated it.
	TimedOut bool `json:"timed_out,omitempty"`
	// SetupFailure is non-empty when the sandbox could not even start
	// the attempt (daemon unreachable, image missing, container create
	// failure). Such results are faults of the infrastructure, not of
	// the generated code.
	SetupFailure string `json:"setup_failure,omitempty"`
}

// Category classifies one execution result.
type Category string

const (
	// Success: the attempt ran and met the task's success condition.
	Success Category = "success"
	// AssertionFailure: the attempt ran cleanly but the task's success
	// predicate evaluated false. Recoverable; drives the next prompt.
	AssertionFailure Category = "assertion_failure"
	// CodeError: the attempt's own logic or runtime fault.
	// Recoverable; drives the next prompt.
	CodeError Category = "code_error"
	// Timeout: the attempt exceeded its time budget. Treated as a code
	// fault for feedback purposes.
	Timeout Category = "timeout"
	// GenerationFailure: the provider call failed; no code was
	// produced this iteration. Counts against the consecutive
	// infrastructure-failure bound, not against code corrections.
	GenerationFailure Category = "generation_error"
	// InfraFailure: the sandbox failed before the code could run.
	InfraFailure Category = "infra_failure"
)

// IsInfra reports whether the category is a collaborator fault rather
// than a fault of the generated code.
func (c Category) IsInfra() bool {
	return c == GenerationFailure || c == InfraFailure
}

// Diagnosis is the classification of one execution result plus the
// feedback summary fed into the next prompt. It is a deterministic
// function of the result and task: classifying the same result twice
// yields the same diagnosis.
type Diagnosis struct {
	Category Category `json:"category"`
	Feedback string   `json:"feedback"`
}
