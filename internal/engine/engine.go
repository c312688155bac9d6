package engine

import (
	"context"
	"fmt"

	"github.com/kballard/go-shellquote"

	"github.com/typeguard/typedsets/internal/environment"
	"github.com/typeguard/typedsets/internal/environment/docker"
	"github.com/typeguard/typedsets/internal/environment/modal"
	"github.com/typeguard/typedsets/internal/models"
)

// Request is a single generation: every sample under InputDir into one source file.
type Request struct {
	InputDir   string
	OutputFile string
	Language   models.TargetLanguage
}

// Engine infers a type model from sample JSON and renders it in a target language.
type Engine interface {
	Name() string
	Version() string
	Generate(ctx context.Context, req Request) error
	// Cost is the accumulated cost of remote execution, 0 for local engines.
	Cost() float64
	Close(ctx context.Context) error
}

// Args returns the engine arguments for generating output from input, without the
// command itself. Both the real invocation and the replay script use it.
func Args(cfg models.EngineConfig, input, output string, lang models.TargetLanguage) []string {
	args := []string{input}
	if cfg.LangFlag != "" {
		args = append(args, cfg.LangFlag, lang.Shortname())
	}
	return append(args, "-o", output)
}

// New creates the engine for cfg's environment type. version is the resolved
// engine version reported in commit messages.
func New(ctx context.Context, cfg models.EngineConfig, version string) (Engine, error) {
	argv, err := shellquote.Split(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parsing engine command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}

	var provider environment.Provider
	switch cfg.Environment.Type {
	case "", "local":
		return NewProcessEngine(cfg, argv, version), nil
	case "docker":
		provider = docker.NewProvider()
	case "modal":
		provider, err = modal.NewProvider(modal.ParseProviderConfig(cfg.Environment.ProviderConfig))
		if err != nil {
			return nil, fmt.Errorf("creating modal provider: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported engine environment type: %s", cfg.Environment.Type)
	}

	return NewSandboxEngine(ctx, provider, cfg, argv, version)
}
