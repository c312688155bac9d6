// Package modal runs the generation engine in a Modal sandbox.
package modal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/modal-labs/libmodal/modal-go"

	"github.com/typeguard/typedsets/internal/environment"
)

const (
	defaultAppName   = "typedsets"
	defaultMemoryMiB = 2048
	// A run keeps one sandbox for all datasets.
	sandboxLifetime = 24 * time.Hour
)

// MinImageBuilderVersion is the oldest image builder that honours WORKDIR and ARG
// in Dockerfile commands.
const MinImageBuilderVersion = "2025.06"

// ProviderConfig holds Modal settings taken from engine.environment.provider_config.
type ProviderConfig struct {
	AppName string
	Regions []string
	Verbose bool
	// StopApp stops the app through the modal CLI when the engine shuts down.
	StopApp bool
}

// ParseProviderConfig reads the provider_config map. Unknown keys are ignored.
func ParseProviderConfig(config map[string]any) ProviderConfig {
	var pc ProviderConfig
	if v, ok := config["app_name"].(string); ok {
		pc.AppName = v
	}
	if v, ok := config["region"].(string); ok {
		pc.Regions = []string{v}
	}
	if v, ok := config["regions"].([]any); ok {
		for _, r := range v {
			if s, ok := r.(string); ok {
				pc.Regions = append(pc.Regions, s)
			}
		}
	}
	pc.Verbose, _ = config["verbose"].(bool)
	pc.StopApp, _ = config["stop_app"].(bool)
	return pc
}

// Provider creates Modal sandboxes.
type Provider struct {
	client *modal.Client
	config ProviderConfig
}

// NewProvider checks the local Modal configuration and connects a client.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if err := checkImageBuilderVersion(cliConfigReader{}); err != nil {
		return nil, err
	}
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Provider{client: client, config: config}, nil
}

// ConfigReader returns the JSON printed by "modal config show".
type ConfigReader interface {
	ReadConfig() ([]byte, error)
}

type cliConfigReader struct{}

func (cliConfigReader) ReadConfig() ([]byte, error) {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return nil, fmt.Errorf("modal CLI not found: %w", err)
	}
	return exec.Command(modalPath, "config", "show").Output()
}

func checkImageBuilderVersion(reader ConfigReader) error {
	output, err := reader.ReadConfig()
	if err != nil {
		return fmt.Errorf("reading modal config: %w", err)
	}

	var config struct {
		ImageBuilderVersion string `json:"image_builder_version"`
	}
	if err := json.Unmarshal(output, &config); err != nil {
		return fmt.Errorf("parsing modal config: %w", err)
	}

	// Versions are YYYY.MM, so lexical order is chronological.
	switch v := config.ImageBuilderVersion; {
	case v == "":
		return fmt.Errorf("modal image_builder_version is not set; run: modal config set image_builder_version %s",
			MinImageBuilderVersion)
	case v < MinImageBuilderVersion:
		return fmt.Errorf("modal image_builder_version %s is older than %s; run: modal config set image_builder_version %s",
			v, MinImageBuilderVersion, MinImageBuilderVersion)
	}
	return nil
}

// Name returns "modal".
func (p *Provider) Name() string {
	return "modal"
}

// BuildImage validates the Dockerfile in opts.ContextDir and returns the directory
// itself as the image reference; the image is built with the sandbox.
func (p *Provider) BuildImage(ctx context.Context, opts environment.BuildImageOptions) (string, error) {
	if _, _, err := readDockerfile(opts.ContextDir); err != nil {
		return "", err
	}
	return opts.ContextDir, nil
}

// PullImage is a no-op; Modal pulls registry images itself.
func (p *Provider) PullImage(ctx context.Context, imageRef string) error {
	return nil
}

// CreateEnvironment starts a sandbox from a registry image or a build context
// returned by BuildImage.
func (p *Provider) CreateEnvironment(ctx context.Context, opts environment.CreateEnvironmentOptions) (environment.Environment, error) {
	appName := p.config.AppName
	if appName == "" {
		appName = defaultAppName
	}

	app, err := p.client.Apps.FromName(ctx, appName, &modal.AppFromNameParams{CreateIfMissing: true})
	if err != nil {
		return nil, fmt.Errorf("looking up modal app %s: %w", appName, err)
	}

	image, err := p.image(ctx, app, opts.ImageRef)
	if err != nil {
		return nil, err
	}

	cpus := max(opts.CPUs, 1)
	memoryMiB := opts.MemoryMB
	if memoryMiB <= 0 {
		memoryMiB = defaultMemoryMiB
	}

	slog.Debug("creating modal sandbox", "app", appName, "image", opts.ImageRef,
		"cpus", cpus, "memory_mib", memoryMiB, "regions", p.config.Regions)
	sandbox, err := p.client.Sandboxes.Create(ctx, app, image, &modal.SandboxCreateParams{
		CPU:       float64(cpus),
		MemoryMiB: memoryMiB,
		Env:       maps.Clone(opts.Env),
		Timeout:   sandboxLifetime,
		Verbose:   p.config.Verbose,
		Regions:   p.config.Regions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal sandbox: %w", err)
	}

	return &Sandbox{
		sandbox:   sandbox,
		appName:   appName,
		stopApp:   p.config.StopApp,
		startTime: time.Now(),
		cpuCount:  cpus,
		memoryMiB: memoryMiB,
	}, nil
}

func (p *Provider) image(ctx context.Context, app *modal.App, ref string) (*modal.Image, error) {
	if !isDockerContextPath(ref) {
		return p.client.Images.FromRegistry(ref, nil), nil
	}

	base, commands, err := readDockerfile(ref)
	if err != nil {
		return nil, err
	}
	image := p.client.Images.FromRegistry(base, nil)
	if len(commands) > 0 {
		image = image.DockerfileCommands(commands, nil)
	}

	slog.Info("building modal image", "base", base, "layers", len(commands))
	built, err := image.Build(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("building modal image: %w", err)
	}
	return built, nil
}

func readDockerfile(contextDir string) (string, []string, error) {
	p := filepath.Join(contextDir, "Dockerfile")
	content, err := os.ReadFile(p)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", p, err)
	}
	base, commands, err := parseDockerfile(string(content))
	if err != nil {
		return "", nil, fmt.Errorf("parsing %s: %w", p, err)
	}
	return base, commands, nil
}

// isDockerContextPath reports whether ref is a local directory rather than a
// registry reference.
func isDockerContextPath(ref string) bool {
	info, err := os.Stat(ref)
	return err == nil && info.IsDir()
}
