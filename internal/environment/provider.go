package environment

import (
	"context"
	"io"
	"time"
)

// Environment is a running sandbox the generation engine executes in.
type Environment interface {
	// ID returns the unique identifier for this environment.
	ID() string

	// CopyTo copies a local file or directory into the environment.
	CopyTo(ctx context.Context, src, dst string) error

	// CopyFrom copies a single file from the environment to a local path.
	CopyFrom(ctx context.Context, src, dst string) error

	// Exec runs a shell command, streaming its output to stdout and stderr.
	// A non-zero exit is reported through the exit code, not the error.
	Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts ExecOptions) (int, error)

	// Destroy removes the environment and cleans up all resources.
	Destroy(ctx context.Context) error

	// Cost returns the cost incurred by this environment so far.
	Cost() float64
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	WorkDir string
}

// Provider creates environments.
type Provider interface {
	// Name returns the provider name ("docker", "modal").
	Name() string

	// BuildImage builds an image from a directory containing a Dockerfile and
	// returns the reference to pass to CreateEnvironment.
	BuildImage(ctx context.Context, opts BuildImageOptions) (string, error)

	// PullImage makes a registry image available locally.
	PullImage(ctx context.Context, imageRef string) error

	// CreateEnvironment creates and starts a new environment from an image.
	CreateEnvironment(ctx context.Context, opts CreateEnvironmentOptions) (Environment, error)
}

// BuildImageOptions configures image building.
type BuildImageOptions struct {
	ContextDir string
	Tag        string
	Timeout    time.Duration
	NoCache    bool
}

// CreateEnvironmentOptions configures environment creation.
type CreateEnvironmentOptions struct {
	Name     string
	ImageRef string
	CPUs     int
	MemoryMB int
	Env      map[string]string
}
