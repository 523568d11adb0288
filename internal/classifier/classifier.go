// Package classifier turns raw execution results into diagnoses: a
// category plus a feedback summary usable in the next prompt. The
// mapping is a pure function of (result, task) with no randomness, so
// re-running a recorded episode reproduces its diagnoses exactly.
package classifier

import (
	"fmt"
	"strings"

	"github.com/pcastell/mend/internal/models"
)

// DefaultFeedbackMaxBytes bounds feedback summaries so prompt size
// stays stable across iterations.
const DefaultFeedbackMaxBytes = 2000

// Classifier classifies execution results for one run.
type Classifier struct {
	feedbackMaxBytes int
}

// New creates a classifier. maxBytes <= 0 selects the default bound.
func New(maxBytes int) *Classifier {
	if maxBytes <= 0 {
		maxBytes = DefaultFeedbackMaxBytes
	}
	return &Classifier{feedbackMaxBytes: maxBytes}
}

// Classify applies the category decision order, first match wins:
//
//  1. sandbox could not start the attempt      -> InfraFailure
//  2. attempt exceeded its budget              -> Timeout
//  3. captured trace or non-zero exit status   -> CodeError
//  4. task predicate present and false         -> AssertionFailure
//  5. otherwise                                -> Success
func (c *Classifier) Classify(result *models.ExecutionResult, task *models.Task) models.Diagnosis {
	if result.SetupFailure != "" {
		return models.Diagnosis{
			Category: models.InfraFailure,
			Feedback: c.truncate(result.SetupFailure),
		}
	}

	if result.TimedOut {
		return models.Diagnosis{
			Category: models.Timeout,
			Feedback: "execution exceeded time limit",
		}
	}

	if result.Trace != "" || result.ExitStatus != 0 {
		return models.Diagnosis{
			Category: models.CodeError,
			Feedback: c.errorFeedback(result),
		}
	}

	if task.Predicate != nil {
		if ok, reason := task.Predicate.Evaluate(result.Stdout, result.ExitStatus); !ok {
			return models.Diagnosis{
				Category: models.AssertionFailure,
				Feedback: c.truncate("output did not satisfy the task's success condition: " + reason),
			}
		}
	}

	return models.Diagnosis{
		Category: models.Success,
		Feedback: "all checks passed",
	}
}

// errorFeedback prefers the captured trace, then stderr, then the
// bare exit status, keeping the trailing portion: interpreters print
// the actual error last.
func (c *Classifier) errorFeedback(result *models.ExecutionResult) string {
	text := result.Trace
	if text == "" {
		text = strings.TrimSpace(result.Stderr)
	}
	if text == "" {
		text = fmt.Sprintf("process exited with status %d", result.ExitStatus)
	}
	return c.truncate(text)
}

// truncate keeps the tail of s within the configured bound. The tail
// wins because error output ends with the most specific message.
func (c *Classifier) truncate(s string) string {
	if len(s) <= c.feedbackMaxBytes {
		return s
	}
	return "..." + s[len(s)-c.feedbackMaxBytes:]
}
