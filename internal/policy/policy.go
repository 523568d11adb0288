// Package policy implements the termination state machine: the rules
// deciding, after each attempt, whether an episode stops and with
// what terminal status.
package policy

import "github.com/pcastell/mend/internal/models"

// TerminationPolicy folds the running diagnosis sequence into a
// RunStatus. It holds only counters derived from the sequence, so
// feeding it the same diagnoses in the same order always yields the
// same decisions.
type TerminationPolicy struct {
	maxIterations       int
	maxConsecutiveInfra int
	iterations          int
	consecutiveInfra    int
}

// New creates a policy with the given bounds. Both bounds must be
// positive; config validation enforces that before a policy exists.
func New(maxIterations, maxConsecutiveInfra int) *TerminationPolicy {
	return &TerminationPolicy{
		maxIterations:       maxIterations,
		maxConsecutiveInfra: maxConsecutiveInfra,
	}
}

// Observe records the diagnosis of the attempt that just completed
// and returns the episode status after it. StatusRunning means the
// loop continues with the next iteration; anything else is terminal.
//
// Success is checked before the iteration bound, so a correct attempt
// on the final allowed iteration still counts as SUCCEEDED.
func (p *TerminationPolicy) Observe(d models.Diagnosis) models.RunStatus {
	p.iterations++

	if d.Category.IsInfra() {
		p.consecutiveInfra++
	} else {
		p.consecutiveInfra = 0
	}

	if d.Category == models.Success {
		return models.StatusSucceeded
	}
	if p.consecutiveInfra >= p.maxConsecutiveInfra {
		return models.StatusAborted
	}
	if p.iterations >= p.maxIterations {
		return models.StatusFailed
	}
	return models.StatusRunning
}

// Iterations returns the number of attempts observed so far.
func (p *TerminationPolicy) Iterations() int {
	return p.iterations
}
