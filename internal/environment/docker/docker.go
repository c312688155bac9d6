package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/typeguard/typedsets/internal/environment"
	"github.com/typeguard/typedsets/internal/util"
)

// Provider runs the engine in containers driven through the docker CLI.
type Provider struct {
	bin string
}

// docker runs the CLI and folds its stderr into the error.
func docker(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("docker %s: %w: %s", args[0], err, msg)
		}
		return fmt.Errorf("docker %s: %w", args[0], err)
	}
	return nil
}

// NewProvider creates a new Docker provider.
func NewProvider() *Provider {
	return &Provider{bin: "docker"}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "docker"
}

// BuildImage builds a Docker image from the given context directory.
func (p *Provider) BuildImage(ctx context.Context, opts environment.BuildImageOptions) (string, error) {
	args := []string{"build", "-t", opts.Tag}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	args = append(args, opts.ContextDir)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	slog.Info("building engine image", "tag", opts.Tag, "context", opts.ContextDir)
	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("building docker image: %w", err)
	}
	return opts.Tag, nil
}

// PullImage pulls a pre-built image from a registry.
func (p *Provider) PullImage(ctx context.Context, imageRef string) error {
	slog.Debug("pulling engine image", "image", imageRef)
	return docker(ctx, p.bin, "pull", imageRef)
}

// runArgs builds the "docker run" arguments for a detached, idle container.
func runArgs(name string, opts environment.CreateEnvironmentOptions) []string {
	args := []string{"run", "-d", "--name", name}

	if opts.CPUs > 0 {
		args = append(args, "--cpus", strconv.Itoa(opts.CPUs))
	}
	if mem := util.FormatMemory(opts.MemoryMB); mem != "" {
		args = append(args, "--memory", mem)
	}
	for _, k := range util.SortedKeys(opts.Env) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	return append(args, opts.ImageRef, "sleep", "infinity")
}

// CreateEnvironment creates and starts a Docker container.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("typedsets-engine-%d", time.Now().UnixNano())
	}

	if err := docker(ctx, p.bin, runArgs(name, opts)...); err != nil {
		return nil, err
	}

	slog.Debug("docker container started", "container", name, "image", opts.ImageRef)
	return &Environment{bin: p.bin, containerID: name}, nil
}

// Environment is a running Docker container.
type Environment struct {
	bin         string
	containerID string
}

// ID returns the container name.
func (e *Environment) ID() string {
	return e.containerID
}

// CopyTo copies a local file or directory into the container at dst.
func (e *Environment) CopyTo(ctx context.Context, src, dst string) error {
	if err := docker(ctx, e.bin, "exec", e.containerID, "mkdir", "-p", path.Dir(dst)); err != nil {
		return err
	}
	return docker(ctx, e.bin, "cp", src, e.containerID+":"+dst)
}

// CopyFrom copies the file src out of the container to dst.
func (e *Environment) CopyFrom(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating local directory: %w", err)
	}
	return docker(ctx, e.bin, "cp", e.containerID+":"+src, dst)
}

// Exec executes a shell command in the container.
func (e *Environment) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts environment.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"exec"}
	for _, k := range util.SortedKeys(opts.Env) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	args = append(args, e.containerID, "bash", "-c", cmd)

	execCmd := exec.CommandContext(ctx, e.bin, args...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	if err := execCmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return -1, fmt.Errorf("command timed out after %s", opts.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executing command: %w", err)
	}
	return 0, nil
}

// Destroy force-removes the container. A container that is already gone is not an error.
func (e *Environment) Destroy(ctx context.Context) error {
	err := docker(ctx, e.bin, "rm", "-f", e.containerID)
	if err != nil && strings.Contains(err.Error(), "No such container") {
		return nil
	}
	return err
}

// Cost is always 0 for local Docker.
func (e *Environment) Cost() float64 {
	return 0
}
