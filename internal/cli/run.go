package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pcastell/mend/internal/agent"
	"github.com/pcastell/mend/internal/config"
	"github.com/pcastell/mend/internal/models"
)

var (
	flagMaxIterations int
	flagModel         string
	flagSandboxType   string
	flagConcurrency   int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <task-dir> [task-dir...]",
		Short: "Run the self-correction loop on one or more tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTasks,
	}
	cmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "override max attempts per task")
	cmd.Flags().StringVar(&flagModel, "model", "", "override generator model")
	cmd.Flags().StringVar(&flagSandboxType, "sandbox", "", "override sandbox type (docker, modal)")
	cmd.Flags().IntVar(&flagConcurrency, "parallel", 0, "override max concurrent tasks")
	return cmd
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadRunConfig(cfgFile)
	if err != nil {
		return err
	}
	if flagMaxIterations > 0 {
		cfg.MaxIterations = flagMaxIterations
	}
	if flagModel != "" {
		cfg.Generator.Model = flagModel
	}
	if flagSandboxType != "" {
		cfg.Sandbox.Type = flagSandboxType
	}
	if flagConcurrency > 0 {
		cfg.NConcurrentTasks = flagConcurrency
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	var tasks []*models.Task
	for _, dir := range args {
		task, err := config.LoadTask(dir)
		if err != nil {
			return fmt.Errorf("loading task %s: %w", dir, err)
		}
		tasks = append(tasks, task)
	}

	// An interrupt cancels cooperatively: in-flight iterations finish,
	// no new attempt starts.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := agent.NewRunner(cfg)
	if err != nil {
		return err
	}
	defer runner.Close()

	result, err := runner.Run(ctx, tasks)
	if err != nil {
		return err
	}

	fmt.Printf("\nRun: %s\n", result.RunName)
	fmt.Printf("Tasks: %d\n", result.Total)
	fmt.Printf("Succeeded: %d\n", result.Succeeded)
	fmt.Printf("Failed: %d\n", result.Failed)
	fmt.Printf("Aborted: %d\n", result.Aborted)
	fmt.Printf("Duration: %.2fs\n", result.DurationSec)
	for _, ep := range result.Episodes {
		line := fmt.Sprintf("  %-20s %-10s %d attempt(s)", ep.TaskName, ep.Status, ep.Iterations)
		if ep.Error != "" {
			line += "  error: " + ep.Error
		}
		fmt.Println(line)
	}

	switch {
	case result.Aborted > 0:
		exitStatus = ExitAborted
	case result.Failed > 0:
		exitStatus = ExitFailed
	default:
		exitStatus = ExitSucceeded
	}
	return nil
}
