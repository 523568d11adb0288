// Package modal runs attempts in Modal sandboxes via the modal-go
// SDK. Every attempt gets a fresh sandbox created from a registry
// image and terminated when the attempt finishes, so nothing leaks
// between attempts.
package modal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	modal "github.com/modal-labs/libmodal/modal-go"

	"github.com/pcastell/mend/internal/models"
	"github.com/pcastell/mend/internal/sandbox"
)

// Config holds Modal-specific options from the run config's
// provider_config map.
type Config struct {
	// AppName is the Modal app sandboxes are created under. A unique
	// name is generated when empty.
	AppName string
	// Regions restricts sandbox placement (e.g. "us-east").
	Regions []string
	Verbose bool
}

// ParseConfig extracts Modal options from the generic config map.
func ParseConfig(raw map[string]any) Config {
	var c Config
	if raw == nil {
		return c
	}
	if v, ok := raw["app_name"].(string); ok {
		c.AppName = v
	}
	if v, ok := raw["region"].(string); ok {
		c.Regions = []string{v}
	}
	if v, ok := raw["regions"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				c.Regions = append(c.Regions, s)
			}
		}
	}
	if v, ok := raw["verbose"].(bool); ok {
		c.Verbose = v
	}
	return c
}

// Sandbox creates one Modal sandbox per attempt.
type Sandbox struct {
	client  *modal.Client
	image   string
	command string
	config  Config
}

// New creates a Modal sandbox adapter for the given registry image.
func New(image, command string, cfg Config) (*Sandbox, error) {
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	if command == "" {
		command = "python3 /work/main.py"
	}
	return &Sandbox{
		client:  client,
		image:   image,
		command: command,
		config:  cfg,
	}, nil
}

// Name returns the adapter name.
func (s *Sandbox) Name() string { return "modal" }

// Run provisions a sandbox, writes the script into it, executes the
// configured command under the attempt's budget and tears the sandbox
// down.
func (s *Sandbox) Run(ctx context.Context, code string, opts sandbox.RunOptions) (*models.ExecutionResult, error) {
	appName := s.config.AppName
	if appName == "" {
		appName = fmt.Sprintf("mend-%d", time.Now().UnixNano())
	}

	app, err := s.client.Apps.FromName(ctx, appName, &modal.AppFromNameParams{
		CreateIfMissing: true,
	})
	if err != nil {
		return &models.ExecutionResult{SetupFailure: fmt.Sprintf("creating modal app: %v", err)}, nil
	}

	image := s.client.Images.FromRegistry(s.image, nil)

	cpus := opts.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	memoryMiB := opts.MemoryMB
	if memoryMiB <= 0 {
		memoryMiB = 256
	}

	sb, err := s.client.Sandboxes.Create(ctx, app, image, &modal.SandboxCreateParams{
		CPU:       float64(cpus),
		MemoryMiB: memoryMiB,
		Env:       opts.Env,
		Timeout:   opts.Timeout + time.Minute,
		Verbose:   s.config.Verbose,
		Regions:   s.config.Regions,
	})
	if err != nil {
		return &models.ExecutionResult{SetupFailure: fmt.Sprintf("creating modal sandbox: %v", err)}, nil
	}
	defer func() {
		if err := sb.Terminate(context.Background()); err != nil {
			slog.Debug("terminating modal sandbox", "sandbox_id", sb.SandboxID, "error", err)
		}
	}()

	if err := s.writeScript(ctx, sb, code); err != nil {
		return &models.ExecutionResult{SetupFailure: fmt.Sprintf("writing attempt script: %v", err)}, nil
	}

	execParams := &modal.SandboxExecParams{
		Env:     opts.Env,
		Workdir: "/work",
	}
	if opts.Timeout > 0 {
		execParams.Timeout = opts.Timeout
	}

	start := time.Now()
	process, err := sb.Exec(ctx, []string{"bash", "-c", s.command}, execParams)
	if err != nil {
		return &models.ExecutionResult{SetupFailure: fmt.Sprintf("executing command: %v", err)}, nil
	}

	var stdout, stderr strings.Builder
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(&stdout, process.Stdout)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(&stderr, process.Stderr)
		done <- struct{}{}
	}()
	<-done
	<-done

	exitCode, err := process.Wait(ctx)
	duration := time.Since(start)

	res := &models.ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		if isTimeout(err) || (opts.Timeout > 0 && duration >= opts.Timeout) {
			res.TimedOut = true
			return res, nil
		}
		res.SetupFailure = fmt.Sprintf("waiting for process: %v", err)
		return res, nil
	}
	if opts.Timeout > 0 && duration >= opts.Timeout {
		res.TimedOut = true
		return res, nil
	}

	res.ExitStatus = exitCode
	res.Trace = sandbox.ExtractTrace(res.Stderr)
	return res, nil
}

// writeScript places the attempt script at /work/main.py through the
// sandbox filesystem API.
func (s *Sandbox) writeScript(ctx context.Context, sb *modal.Sandbox, code string) error {
	p, err := sb.Exec(ctx, []string{"mkdir", "-p", "/work"}, &modal.SandboxExecParams{})
	if err != nil {
		return err
	}
	io.Copy(io.Discard, p.Stdout)
	io.Copy(io.Discard, p.Stderr)
	if _, err := p.Wait(ctx); err != nil {
		return err
	}

	f, err := sb.Open(ctx, "/work/main.py", "w")
	if err != nil {
		return fmt.Errorf("opening script file: %w", err)
	}
	if _, err := f.Write([]byte(code)); err != nil {
		f.Close()
		return fmt.Errorf("writing script: %w", err)
	}
	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing script: %w", err)
	}
	return f.Close()
}

func isTimeout(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout")
}
