// Package visual is the optional thought-rendering side-channel: it
// turns a generation rationale into an image artifact. Failures here
// are logged and never affect the episode's status or the loop.
package visual

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Renderer renders a rationale to an artifact and returns a reference
// to it (a file path).
type Renderer interface {
	Render(ctx context.Context, rationale, episodeID string, iteration int) (string, error)
}

// Disabled is a renderer that renders nothing.
type Disabled struct{}

// Render always reports that no artifact was produced.
func (Disabled) Render(context.Context, string, string, int) (string, error) {
	return "", nil
}

// CommandRenderer delegates to an external image-generation command.
// The command receives the rationale on stdin and the output path as
// its final argument; whatever model or pipeline sits behind it is
// its own business.
type CommandRenderer struct {
	Command string
	OutDir  string
}

// NewCommandRenderer creates a renderer invoking the given command.
func NewCommandRenderer(command, outDir string) *CommandRenderer {
	if outDir == "" {
		outDir = filepath.Join("outputs", "images")
	}
	return &CommandRenderer{Command: command, OutDir: outDir}
}

// Render writes the artifact to <out_dir>/<episode>_<iteration>.png.
func (r *CommandRenderer) Render(ctx context.Context, rationale, episodeID string, iteration int) (string, error) {
	if strings.TrimSpace(rationale) == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.OutDir, 0755); err != nil {
		return "", fmt.Errorf("creating artifact dir: %w", err)
	}

	outPath := filepath.Join(r.OutDir, fmt.Sprintf("%s_%d.png", episodeID, iteration))

	parts := strings.Fields(r.Command)
	args := append(parts[1:], outPath)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Stdin = strings.NewReader(rationale)

	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("render command failed: %w: %s", err, out)
	}
	return outPath, nil
}
