package models

import "time"

// RunStatus is the lifecycle state of an episode. RUNNING is the only
// non-terminal state; transitions out of it are one-way.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusAborted   RunStatus = "aborted"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusAborted
}

// Triple is one completed loop iteration: the attempt, what happened
// when it ran, and what we concluded. Triples are never revised or
// removed once written.
type Triple struct {
	Attempt   Attempt         `json:"attempt"`
	Result    ExecutionResult `json:"result"`
	Diagnosis Diagnosis       `json:"diagnosis"`
}

// Episode is the full ordered record of one task run: every triple in
// iteration order plus the terminal status. It is the unit of
// persistence and is append-only.
type Episode struct {
	ID        string    `json:"id"`
	TaskName  string    `json:"task_name"`
	Triples   []Triple  `json:"triples"`
	Status    RunStatus `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	// FinalCode is the code of the successful attempt; empty unless
	// the episode succeeded.
	FinalCode string `json:"final_code,omitempty"`
}

// Succeeded reports whether the episode ended with a passing attempt.
func (e *Episode) Succeeded() bool {
	return e.Status == StatusSucceeded
}
