// Package agent owns the self-correction loop: generate a candidate,
// execute it in the sandbox, classify the outcome, persist the
// triple, and either build the next prompt from the accumulated
// feedback or stop with a terminal status.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pcastell/mend/internal/classifier"
	"github.com/pcastell/mend/internal/config"
	"github.com/pcastell/mend/internal/generator"
	"github.com/pcastell/mend/internal/history"
	"github.com/pcastell/mend/internal/models"
	"github.com/pcastell/mend/internal/policy"
	"github.com/pcastell/mend/internal/sandbox"
	"github.com/pcastell/mend/internal/visual"
)

// Orchestrator drives one episode for one task. Iterations are
// strictly sequential: every prompt depends on all prior results, so
// no concurrency exists inside an episode.
type Orchestrator struct {
	cfg      config.RunConfig
	gen      generator.Generator
	sb       sandbox.Sandbox
	cls      *classifier.Classifier
	store    *history.Store
	renderer visual.Renderer
	// outputDir receives the final code of a successful episode;
	// empty disables the copy.
	outputDir string
}

// NewOrchestrator wires the loop's collaborators together.
func NewOrchestrator(cfg config.RunConfig, gen generator.Generator, sb sandbox.Sandbox, store *history.Store, renderer visual.Renderer, outputDir string) *Orchestrator {
	if renderer == nil {
		renderer = visual.Disabled{}
	}
	return &Orchestrator{
		cfg:       cfg,
		gen:       gen,
		sb:        sb,
		cls:       classifier.New(cfg.FeedbackMaxBytes),
		store:     store,
		renderer:  renderer,
		outputDir: outputDir,
	}
}

// Run executes the loop until the termination policy stops it and
// returns the episode, which always carries a terminal status.
// Exactly one attempt is produced per iteration, and each completed
// triple is flushed to the store before the next iteration begins.
func (o *Orchestrator) Run(ctx context.Context, task *models.Task) (*models.Episode, error) {
	startedAt := time.Now()
	id, err := o.store.Begin(task.Name, startedAt)
	if err != nil {
		return nil, fmt.Errorf("beginning episode: %w", err)
	}

	ep := &models.Episode{
		ID:        id,
		TaskName:  task.Name,
		Status:    models.StatusRunning,
		StartedAt: startedAt,
	}
	pol := policy.New(o.cfg.MaxIterations, o.cfg.MaxConsecutiveInfraFailures)

	log := slog.With("episode", id, "task", task.Name)
	log.Info("episode started", "sandbox", o.sb.Name(), "max_iterations", o.cfg.MaxIterations)

	for iteration := 0; ; iteration++ {
		// Cooperative cancellation: checked before a new attempt
		// starts, never by killing an iteration midway.
		if ctx.Err() != nil {
			log.Info("episode cancelled", "iteration", iteration)
			ep.Status = models.StatusAborted
			break
		}

		triple := o.iterate(ctx, log, id, task, ep.Triples, iteration)
		ep.Triples = append(ep.Triples, triple)

		if err := o.store.Append(id, triple); err != nil {
			// Persistence is not optional: continuing would leave the
			// audit trail behind the loop.
			ep.Status = models.StatusAborted
			o.finish(log, ep)
			return ep, fmt.Errorf("persisting triple %d: %w", iteration, err)
		}

		status := pol.Observe(triple.Diagnosis)
		log.Info("attempt finished",
			"iteration", iteration,
			"category", triple.Diagnosis.Category,
			"status", status)
		if status != models.StatusRunning {
			ep.Status = status
			break
		}
	}

	if ep.Succeeded() {
		ep.FinalCode = ep.Triples[len(ep.Triples)-1].Attempt.Code
		o.saveFinalCode(log, task, ep)
	}
	o.finish(log, ep)
	return ep, nil
}

// iterate performs one loop body: prompt, generate, execute, classify,
// render. It always returns a complete triple; a provider failure
// yields a GenerationError triple with a zero execution result so the
// episode record stays gap-free.
func (o *Orchestrator) iterate(ctx context.Context, log *slog.Logger, episodeID string, task *models.Task, prior []models.Triple, iteration int) models.Triple {
	prompt := generator.BuildPrompt(task, prior)

	cand, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		// The cause is logged, not distinguished in control flow.
		log.Warn("generation failed", "iteration", iteration, "error", err)
		return models.Triple{
			Attempt: models.Attempt{Iteration: iteration},
			Result:  models.ExecutionResult{},
			Diagnosis: models.Diagnosis{
				Category: models.GenerationFailure,
				Feedback: "code generation failed; no attempt was executed",
			},
		}
	}

	attempt := models.Attempt{
		Iteration: iteration,
		Code:      cand.Code,
		Rationale: cand.Rationale,
	}

	o.render(ctx, log, episodeID, attempt)

	opts := sandbox.RunOptions{
		Timeout: o.cfg.PerAttemptTimeout(),
		CPUs:    o.cfg.Sandbox.CPUs,
	}
	opts.MemoryMB, _ = o.cfg.Sandbox.MemoryMB() // validated at load

	result, err := o.sb.Run(ctx, composeScript(cand.Code, task.TestCases), opts)
	if err != nil {
		// Harness faults are infrastructure failures like any other.
		log.Warn("sandbox harness fault", "iteration", iteration, "error", err)
		result = &models.ExecutionResult{SetupFailure: err.Error()}
	}

	return models.Triple{
		Attempt:   attempt,
		Result:    *result,
		Diagnosis: o.cls.Classify(result, task),
	}
}

// render pushes the rationale through the side-channel. Failures are
// logged and never affect the run status or loop continuation. The
// episode ID keys the artifact path, so parallel episodes of the same
// task never overwrite each other's images.
func (o *Orchestrator) render(ctx context.Context, log *slog.Logger, episodeID string, attempt models.Attempt) {
	if attempt.Rationale == "" {
		return
	}
	artifact, err := o.renderer.Render(ctx, attempt.Rationale, episodeID, attempt.Iteration)
	if err != nil {
		log.Warn("rendering rationale failed", "iteration", attempt.Iteration, "error", err)
		return
	}
	if artifact != "" {
		log.Debug("rationale rendered", "iteration", attempt.Iteration, "artifact", artifact)
	}
}

// finish records the terminal status in the store, best effort.
func (o *Orchestrator) finish(log *slog.Logger, ep *models.Episode) {
	ep.EndedAt = time.Now()
	if err := o.store.Finish(ep.ID, ep.Status, ep.EndedAt, ep.FinalCode); err != nil {
		log.Warn("finalizing episode record failed", "error", err)
	}
	log.Info("episode finished",
		"status", ep.Status,
		"iterations", len(ep.Triples),
		"duration", ep.EndedAt.Sub(ep.StartedAt).Round(time.Millisecond))
}

// saveFinalCode writes the winning code next to the run artifacts.
func (o *Orchestrator) saveFinalCode(log *slog.Logger, task *models.Task, ep *models.Episode) {
	if o.outputDir == "" {
		return
	}
	dir := filepath.Join(o.outputDir, task.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn("creating output dir failed", "error", err)
		return
	}
	path := filepath.Join(dir, "solution.py")
	if err := os.WriteFile(path, []byte(ep.FinalCode), 0644); err != nil {
		log.Warn("saving final code failed", "error", err)
		return
	}
	log.Info("final code saved", "path", path)
}

// composeScript joins the candidate with the task's test cases into
// the single script the sandbox runs.
func composeScript(code, testCases string) string {
	if testCases == "" {
		return code
	}
	return code + "\n\n# Test cases\n" + testCases
}
