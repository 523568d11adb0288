// Package generator defines the text-generation collaborator contract
// and an OpenAI-compatible HTTP adapter. All provider failures
// (unreachable endpoint, malformed or empty response, quota, rate
// limit) surface as a single *models.GenerationError kind; the cause
// is logged, never distinguished in control flow.
package generator

import (
	"context"

	"github.com/pcastell/mend/internal/models"
)

// Candidate is one generated solution: the code to execute and the
// rationale text that produced it.
type Candidate struct {
	Code      string
	Rationale string
}

// Generator produces a candidate for a prompt. Implementations must
// bound the call (provider-level timeout) and return
// *models.GenerationError on any provider fault.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Candidate, error)
}

// genErr wraps a cause as the single generation-failure kind.
func genErr(cause error) error {
	return &models.GenerationError{Cause: cause}
}
