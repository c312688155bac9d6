package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/typeguard/typedsets/internal/models"
)

// ProcessEngine runs the engine as a local process, one invocation per request.
type ProcessEngine struct {
	cfg     models.EngineConfig
	argv    []string
	version string
}

// NewProcessEngine creates an engine running argv on the host.
func NewProcessEngine(cfg models.EngineConfig, argv []string, version string) *ProcessEngine {
	return &ProcessEngine{cfg: cfg, argv: argv, version: version}
}

func (e *ProcessEngine) Name() string    { return e.cfg.Name }
func (e *ProcessEngine) Version() string { return e.version }
func (e *ProcessEngine) Cost() float64   { return 0 }

func (e *ProcessEngine) Close(context.Context) error { return nil }

// Generate runs the engine and waits for it to exit.
func (e *ProcessEngine) Generate(ctx context.Context, req Request) error {
	if e.cfg.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutSec*float64(time.Second)))
		defer cancel()
	}

	if err := os.MkdirAll(filepath.Dir(req.OutputFile), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	args := append(append([]string(nil), e.argv[1:]...), Args(e.cfg, req.InputDir, req.OutputFile, req.Language)...)
	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Debug("running engine", "command", e.argv[0], "args", args)
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %gs", e.cfg.Name, e.cfg.TimeoutSec)
		}
		return fmt.Errorf("running %s: %w: %s", e.cfg.Name, err, tail(stderr.String()))
	}
	return nil
}

// tail keeps the last lines of engine output for error messages.
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	return strings.Join(lines, "\n")
}
