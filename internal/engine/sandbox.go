package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/typeguard/typedsets/internal/environment"
	"github.com/typeguard/typedsets/internal/models"
	"github.com/typeguard/typedsets/internal/util"
)

const sandboxWorkDir = "/typedsets"

// SandboxEngine runs the engine inside one long-lived environment shared by every
// request of a run. Inputs are copied in and outputs copied back per request.
type SandboxEngine struct {
	cfg     models.EngineConfig
	argv    []string
	version string
	env     environment.Environment
	seq     atomic.Int64
}

// NewSandboxEngine prepares the image, starts the environment and runs the
// optional install command.
func NewSandboxEngine(ctx context.Context, provider environment.Provider, cfg models.EngineConfig, argv []string, version string) (*SandboxEngine, error) {
	envCfg := cfg.Environment

	imageRef := envCfg.Image
	if envCfg.DockerfileDir != "" {
		tag := "typedsets-engine:" + sanitizeTag(version)
		ref, err := provider.BuildImage(ctx, environment.BuildImageOptions{
			ContextDir: envCfg.DockerfileDir,
			Tag:        tag,
			Timeout:    30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("building engine image: %w", err)
		}
		imageRef = ref
	} else if err := provider.PullImage(ctx, imageRef); err != nil {
		return nil, fmt.Errorf("pulling engine image: %w", err)
	}

	memoryMB, err := util.ParseMemory(envCfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("parsing engine memory: %w", err)
	}

	env, err := provider.CreateEnvironment(ctx, environment.CreateEnvironmentOptions{
		ImageRef: imageRef,
		CPUs:     envCfg.CPUs,
		MemoryMB: memoryMB,
		Env:      envCfg.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s environment: %w", provider.Name(), err)
	}
	slog.Info("engine environment started", "provider", provider.Name(), "id", env.ID(), "image", imageRef)

	e := &SandboxEngine{cfg: cfg, argv: argv, version: version, env: env}

	if envCfg.Install != "" {
		var stderr bytes.Buffer
		code, err := env.Exec(ctx, envCfg.Install, nil, &stderr, environment.ExecOptions{Env: envCfg.Env})
		if err == nil && code != 0 {
			err = fmt.Errorf("exit code %d: %s", code, tail(stderr.String()))
		}
		if err != nil {
			e.Close(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("installing engine: %w", err)
		}
	}

	return e, nil
}

func (e *SandboxEngine) Name() string    { return e.cfg.Name }
func (e *SandboxEngine) Version() string { return e.version }
func (e *SandboxEngine) Cost() float64   { return e.env.Cost() }

// Close destroys the environment.
func (e *SandboxEngine) Close(ctx context.Context) error {
	slog.Debug("destroying engine environment", "id", e.env.ID())
	return e.env.Destroy(ctx)
}

// Generate copies the input into the environment, runs the engine and copies the
// output file back to req.OutputFile.
func (e *SandboxEngine) Generate(ctx context.Context, req Request) error {
	work := path.Join(sandboxWorkDir, strconv.FormatInt(e.seq.Add(1), 10))
	remoteIn := path.Join(work, "in")
	remoteOut := path.Join(work, "out", filepath.Base(req.OutputFile))

	if err := e.env.CopyTo(ctx, req.InputDir, remoteIn); err != nil {
		return fmt.Errorf("copying input: %w", err)
	}
	defer func() {
		cleanup := shellquote.Join("rm", "-rf", work)
		if _, err := e.env.Exec(context.WithoutCancel(ctx), cleanup, nil, nil, environment.ExecOptions{}); err != nil {
			slog.Warn("cleaning engine work dir", "dir", work, "error", err)
		}
	}()

	args := append(append([]string(nil), e.argv...), Args(e.cfg, remoteIn, remoteOut, req.Language)...)
	cmd := shellquote.Join("mkdir", "-p", path.Dir(remoteOut)) + " && " + shellquote.Join(args...)

	var stderr bytes.Buffer
	code, err := e.env.Exec(ctx, cmd, nil, &stderr, environment.ExecOptions{
		Env:     e.cfg.Environment.Env,
		Timeout: time.Duration(e.cfg.TimeoutSec * float64(time.Second)),
	})
	if err != nil {
		return fmt.Errorf("running %s: %w", e.cfg.Name, err)
	}
	if code != 0 {
		return fmt.Errorf("running %s: exit code %d: %s", e.cfg.Name, code, tail(stderr.String()))
	}

	if err := e.env.CopyFrom(ctx, remoteOut, req.OutputFile); err != nil {
		return fmt.Errorf("copying output: %w", err)
	}
	return nil
}

func sanitizeTag(version string) string {
	if version == "" {
		return "latest"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, version)
}
