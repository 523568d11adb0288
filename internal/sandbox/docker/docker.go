// Package docker runs attempts in throwaway Docker containers via the
// docker CLI. Each attempt gets a fresh container with the network
// disabled and memory/CPU limits applied; the container is
// force-removed when the attempt's budget expires.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pcastell/mend/internal/models"
	"github.com/pcastell/mend/internal/sandbox"
)

// Sandbox shells out to the docker CLI. It holds no per-attempt state:
// isolation between attempts comes from using a new container per Run.
type Sandbox struct {
	image   string
	command string
}

// New creates a Docker sandbox for the given image. command runs the
// attempt script, which is mounted read-only at /work/main.py.
func New(image, command string) *Sandbox {
	if command == "" {
		command = "python3 /work/main.py"
	}
	return &Sandbox{image: image, command: command}
}

// Name returns the adapter name.
func (s *Sandbox) Name() string { return "docker" }

// Exit codes the docker CLI reserves for its own failures; anything
// the contained process exits with is passed through untouched.
const (
	dockerDaemonError     = 125
	dockerCmdCannotInvoke = 126
	dockerCmdNotFound     = 127
)

// Run writes the script to a temp dir, runs it in a fresh container
// and shapes the outcome into an ExecutionResult.
func (s *Sandbox) Run(ctx context.Context, code string, opts sandbox.RunOptions) (*models.ExecutionResult, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return &models.ExecutionResult{SetupFailure: "docker CLI not found in PATH"}, nil
	}

	workDir, err := os.MkdirTemp("", "mend-attempt-*")
	if err != nil {
		return nil, fmt.Errorf("creating attempt dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := os.WriteFile(filepath.Join(workDir, "main.py"), []byte(code), 0644); err != nil {
		return nil, fmt.Errorf("writing attempt script: %w", err)
	}

	name := fmt.Sprintf("mend-%d", time.Now().UnixNano())
	args := s.runArgs(name, workDir, opts)

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	res := &models.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		// CommandContext killed the CLI; the container itself needs a
		// forced removal so nothing keeps running past the budget.
		removeContainer(name)
		res.TimedOut = true
		return res, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.SetupFailure = fmt.Sprintf("starting container: %v", err)
			return res, nil
		}
		code := exitErr.ExitCode()
		switch code {
		case dockerDaemonError, dockerCmdCannotInvoke, dockerCmdNotFound:
			res.SetupFailure = fmt.Sprintf("docker run failed with code %d: %s", code, stderr.String())
			return res, nil
		}
		res.ExitStatus = code
	}

	res.Trace = sandbox.ExtractTrace(res.Stderr)
	return res, nil
}

func (s *Sandbox) runArgs(name, workDir string, opts sandbox.RunOptions) []string {
	args := []string{
		"run",
		"--rm",
		"--name", name,
		"--network", "none",
		"-v", fmt.Sprintf("%s:/work:ro", workDir),
		"-w", "/work",
	}
	if opts.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryMB))
	}
	if opts.CPUs > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%d", opts.CPUs))
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, s.image, "bash", "-c", s.command)
	return args
}

// removeContainer force-removes a container, best effort.
func removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()
}
