package generator

import (
	"fmt"
	"strings"

	"github.com/pcastell/mend/internal/models"
)

const systemPrompt = `You are an expert Python programming agent. Your goal is to write a correct, working Python program to solve a given problem.

You operate in a loop of reasoning and acting.

1. Reason: think step-by-step about the problem or the previous error. If you are fixing a bug, explain the root cause. Enclose your entire thought process in <thinking> tags.
2. Act: after reasoning, write the full program required to solve the problem, self-contained in a single ` + "```python ... ```" + ` block. Do not write any text after the code block.`

// SystemPrompt returns the fixed system message sent with every call.
func SystemPrompt() string {
	return systemPrompt
}

// BuildPrompt rebuilds the user prompt deterministically from the
// immutable episode prefix: the task statement plus the feedback
// summaries of all prior diagnoses, oldest first, so the generator
// sees the full correction history. No mutable conversation state
// exists anywhere else.
func BuildPrompt(task *models.Task, triples []models.Triple) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Problem Statement:**\n%s\n", task.Statement)
	if task.TestCases != "" {
		fmt.Fprintf(&b, "\n**Test Cases:**\n```python\n%s```\n", task.TestCases)
	}

	if len(triples) == 0 {
		b.WriteString("\nPlease write a Python program that solves this problem and passes all the provided test cases.\n")
		return b.String()
	}

	last := triples[len(triples)-1]
	b.WriteString("\nYour previous attempts failed. Do not apologize. Analyze the feedback and fix the code.\n")

	b.WriteString("\n**Attempt history (oldest first):**\n")
	for _, tr := range triples {
		fmt.Fprintf(&b, "- attempt %d: %s: %s\n",
			tr.Attempt.Iteration, tr.Diagnosis.Category, summarize(tr.Diagnosis.Feedback))
	}

	if last.Attempt.Code != "" {
		fmt.Fprintf(&b, "\n**Your previous code:**\n```python\n%s\n```\n", last.Attempt.Code)
	}
	fmt.Fprintf(&b, "\n**Latest execution feedback:**\n%s\n", last.Diagnosis.Feedback)

	b.WriteString("\nFirst, reason about why the code failed inside <thinking> tags. Then provide the complete, corrected program in a ```python ... ``` block.\n")
	return b.String()
}

// summarize collapses a feedback string to a single history line.
func summarize(feedback string) string {
	s := strings.TrimSpace(feedback)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	const max = 160
	if len(s) > max {
		s = s[:max] + "..."
	}
	if s == "" {
		s = "(no feedback)"
	}
	return s
}
