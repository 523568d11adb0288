package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pcastell/mend/internal/config"
	"github.com/pcastell/mend/internal/generator"
	"github.com/pcastell/mend/internal/history"
	"github.com/pcastell/mend/internal/models"
	"github.com/pcastell/mend/internal/sandbox"
	"github.com/pcastell/mend/internal/sandbox/docker"
	"github.com/pcastell/mend/internal/sandbox/modal"
	"github.com/pcastell/mend/internal/visual"
)

// Runner executes the episodes of one run. Different tasks run fully
// independently, each with its own sandbox and no shared mutable
// state, so they may proceed in parallel up to the configured limit.
type Runner struct {
	cfg        config.RunConfig
	gen        generator.Generator
	store      *history.Store
	renderer   visual.Renderer
	newSandbox func() (sandbox.Sandbox, error)
}

// RunResult summarizes one run across all its episodes.
type RunResult struct {
	RunName     string           `json:"run_name"`
	RunDir      string           `json:"run_dir"`
	Total       int              `json:"total"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Aborted     int              `json:"aborted"`
	DurationSec float64          `json:"duration_sec"`
	Episodes    []EpisodeSummary `json:"episodes"`
}

// EpisodeSummary is one episode's line in the run result.
type EpisodeSummary struct {
	EpisodeID  string           `json:"episode_id"`
	TaskName   string           `json:"task_name"`
	Status     models.RunStatus `json:"status"`
	Iterations int              `json:"iterations"`
	Error      string           `json:"error,omitempty"`
}

// NewRunner builds a runner from a validated run config.
func NewRunner(cfg config.RunConfig) (*Runner, error) {
	store, err := history.NewStore(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	var renderer visual.Renderer = visual.Disabled{}
	if cfg.Visualizer.Command != "" {
		renderer = visual.NewCommandRenderer(cfg.Visualizer.Command, cfg.Visualizer.OutDir)
	}

	newSandbox, err := sandboxFactory(cfg.Sandbox)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Runner{
		cfg:        cfg,
		gen:        generator.NewOpenAIGenerator(cfg.Generator),
		store:      store,
		renderer:   renderer,
		newSandbox: newSandbox,
	}, nil
}

// Close releases the runner's resources.
func (r *Runner) Close() error {
	return r.store.Close()
}

// sandboxFactory returns a constructor producing one sandbox per
// episode, so parallel episodes never share one.
func sandboxFactory(cfg config.SandboxConfig) (func() (sandbox.Sandbox, error), error) {
	switch cfg.Type {
	case "docker":
		return func() (sandbox.Sandbox, error) {
			return docker.New(cfg.Image, cfg.Command), nil
		}, nil
	case "modal":
		mc := modal.ParseConfig(cfg.ProviderConfig)
		return func() (sandbox.Sandbox, error) {
			return modal.New(cfg.Image, cfg.Command, mc)
		}, nil
	default:
		return nil, &models.ConfigurationError{Field: "sandbox.type", Reason: fmt.Sprintf("unsupported sandbox type %q", cfg.Type)}
	}
}

// Run executes one episode per task and writes the run artifacts
// (config snapshot, per-episode records, summary) under the run
// directory.
func (r *Runner) Run(ctx context.Context, tasks []*models.Task) (*RunResult, error) {
	start := time.Now()

	runName := start.Format("2006-01-02__15-04-05")
	if r.cfg.Name != nil {
		runName = *r.cfg.Name
	}
	runDir := filepath.Join(r.cfg.RunsDir, runName)
	if _, err := os.Stat(runDir); err == nil {
		return nil, fmt.Errorf("run directory already exists: %s (will not overwrite existing results)", runDir)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	cfgJSON, _ := json.MarshalIndent(r.cfg, "", "  ")
	os.WriteFile(filepath.Join(runDir, "config.json"), cfgJSON, 0644)

	summaries := make([]EpisodeSummary, len(tasks))

	var g errgroup.Group
	g.SetLimit(r.cfg.NConcurrentTasks)
	for i, task := range tasks {
		g.Go(func() error {
			summaries[i] = r.runEpisode(ctx, task, runDir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running episodes: %w", err)
	}

	result := &RunResult{
		RunName:     runName,
		RunDir:      runDir,
		Total:       len(tasks),
		DurationSec: time.Since(start).Seconds(),
		Episodes:    summaries,
	}
	for _, s := range summaries {
		switch s.Status {
		case models.StatusSucceeded:
			result.Succeeded++
		case models.StatusFailed:
			result.Failed++
		default:
			result.Aborted++
		}
	}

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	os.WriteFile(filepath.Join(runDir, "result.json"), resultJSON, 0644)

	return result, nil
}

// runEpisode drives one task through its own orchestrator and sandbox
// and records the episode JSON in the run directory. Harness faults
// surface in the summary, never as a panic of the whole run.
func (r *Runner) runEpisode(ctx context.Context, task *models.Task, runDir string) EpisodeSummary {
	sb, err := r.newSandbox()
	if err != nil {
		return EpisodeSummary{
			TaskName: task.Name,
			Status:   models.StatusAborted,
			Error:    fmt.Sprintf("creating sandbox: %v", err),
		}
	}

	orch := NewOrchestrator(r.cfg, r.gen, sb, r.store, r.renderer, runDir)
	ep, err := orch.Run(ctx, task)

	summary := EpisodeSummary{TaskName: task.Name}
	if err != nil {
		summary.Error = err.Error()
	}
	if ep != nil {
		summary.EpisodeID = ep.ID
		summary.Status = ep.Status
		summary.Iterations = len(ep.Triples)

		epJSON, _ := json.MarshalIndent(ep, "", "  ")
		os.WriteFile(filepath.Join(runDir, fmt.Sprintf("%s__episode.json", task.Name)), epJSON, 0644)
	} else {
		summary.Status = models.StatusAborted
	}
	return summary
}
