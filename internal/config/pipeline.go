package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/typeguard/typedsets/internal/models"
)

// DefaultConfigFile is the configuration file looked up when none is given.
const DefaultConfigFile = "typedsets.yaml"

const quicktypeHomepage = "https://github.com/quicktype/quicktype"

// DefaultPipelineConfig returns a PipelineConfig with default values.
func DefaultPipelineConfig() models.PipelineConfig {
	return models.PipelineConfig{
		DatasetsDir: "datasets",
		CacheDir:    "datasets-cache",
		ReposDir:    "repos",
		CatalogPath: "README.md",
		Concurrency: 1,
		LogLevel:    "info",
		Retry: models.RetryConfig{
			MaxAttempts:    3,
			InitialDelayMs: 1000,
			MaxDelayMs:     30000,
			Multiplier:     2.0,
		},
		Fetch: models.FetchConfig{
			TimeoutSec: 60,
		},
		Engine: models.EngineConfig{
			Name:          "quicktype",
			Command:       "node_modules/.bin/quicktype",
			ReplayCommand: "quicktype",
			Lockfile:      "package-lock.json",
			Package:       "quicktype",
			TimeoutSec:    300,
			Environment: models.EngineEnvironmentConfig{
				Type: "local",
			},
		},
		Host: models.HostConfig{
			Type:         "github",
			Org:          "typeguard",
			RepoPrefix:   "types-",
			RemoteFormat: "git@github.com:%s",
			WebURLFormat: "https://github.com/%s",
			Branch:       "master",
			TokenEnv:     "GITHUB_AUTH_TOKEN",
			AuthorName:   "typeguard",
			AuthorEmail:  "typeguard@users.noreply.github.com",
			CatalogRepo:  "typeguard/awesome-typed-datasets",
		},
		Languages: DefaultLanguages(),
	}
}

// LoadPipelineConfig loads and parses a typedsets.yaml file. A missing file yields
// the defaults. Relative paths are resolved against the file's directory.
func LoadPipelineConfig(path string) (models.PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return cfg, fmt.Errorf("getting absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading pipeline config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing pipeline config: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	if err := resolvePaths(&cfg, filepath.Dir(absPath)); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *models.PipelineConfig) {
	def := DefaultPipelineConfig()

	if cfg.DatasetsDir == "" {
		cfg.DatasetsDir = def.DatasetsDir
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = def.CacheDir
	}
	if cfg.ReposDir == "" {
		cfg.ReposDir = def.ReposDir
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = def.CatalogPath
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelayMs == 0 {
		cfg.Retry.InitialDelayMs = def.Retry.InitialDelayMs
	}
	if cfg.Retry.MaxDelayMs == 0 {
		cfg.Retry.MaxDelayMs = def.Retry.MaxDelayMs
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = def.Retry.Multiplier
	}
	if cfg.Fetch.TimeoutSec == 0 {
		cfg.Fetch.TimeoutSec = def.Fetch.TimeoutSec
	}
	if cfg.Engine.Name == "" {
		cfg.Engine.Name = def.Engine.Name
	}
	// Only the default engine has a known homepage.
	if cfg.Engine.Homepage == "" && cfg.Engine.Name == def.Engine.Name {
		cfg.Engine.Homepage = quicktypeHomepage
	}
	if cfg.Engine.Command == "" {
		cfg.Engine.Command = def.Engine.Command
	}
	if cfg.Engine.ReplayCommand == "" {
		cfg.Engine.ReplayCommand = def.Engine.ReplayCommand
	}
	if cfg.Engine.Version == "" && cfg.Engine.Lockfile == "" {
		cfg.Engine.Lockfile = def.Engine.Lockfile
	}
	if cfg.Engine.Package == "" {
		cfg.Engine.Package = def.Engine.Package
	}
	if cfg.Engine.TimeoutSec == 0 {
		cfg.Engine.TimeoutSec = def.Engine.TimeoutSec
	}
	if cfg.Engine.Environment.Type == "" {
		cfg.Engine.Environment.Type = def.Engine.Environment.Type
	}
	if cfg.Host.Type == "" {
		cfg.Host.Type = def.Host.Type
	}
	if cfg.Host.RemoteFormat == "" {
		cfg.Host.RemoteFormat = def.Host.RemoteFormat
	}
	if cfg.Host.WebURLFormat == "" {
		cfg.Host.WebURLFormat = def.Host.WebURLFormat
	}
	if cfg.Host.Branch == "" {
		cfg.Host.Branch = def.Host.Branch
	}
	if cfg.Host.TokenEnv == "" {
		cfg.Host.TokenEnv = def.Host.TokenEnv
	}
	if cfg.Host.AuthorName == "" {
		cfg.Host.AuthorName = def.Host.AuthorName
	}
	if cfg.Host.AuthorEmail == "" {
		cfg.Host.AuthorEmail = def.Host.AuthorEmail
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = def.Languages
	}
}

// Validate checks a fully defaulted configuration.
func Validate(cfg models.PipelineConfig) error {
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch.requests_per_second must not be negative")
	}

	if _, err := shellquote.Split(cfg.Engine.Command); err != nil {
		return fmt.Errorf("engine.command: %w", err)
	}
	switch cfg.Engine.Environment.Type {
	case "local":
	case "docker", "modal":
		env := cfg.Engine.Environment
		if env.Image == "" && env.DockerfileDir == "" {
			return fmt.Errorf("engine.environment: %s requires image or dockerfile_dir", env.Type)
		}
	default:
		return fmt.Errorf("unsupported engine environment type: %s", cfg.Engine.Environment.Type)
	}

	switch cfg.Host.Type {
	case "github":
	case "local":
		if cfg.Host.LocalRoot == "" {
			return fmt.Errorf("host: type local requires local_root")
		}
	default:
		return fmt.Errorf("unsupported host type: %s", cfg.Host.Type)
	}
	if cfg.Host.Org == "" {
		return fmt.Errorf("host.org is required")
	}
	if strings.Count(cfg.Host.RemoteFormat, "%s") != 1 {
		return fmt.Errorf("host.remote_format must contain exactly one %%s")
	}

	return ValidateLanguages(cfg.Languages)
}

// ValidateLanguages rejects incomplete languages and shortname collisions, which
// would make two languages write into the same directory.
func ValidateLanguages(langs []models.TargetLanguage) error {
	seen := make(map[string]string, len(langs))
	for i, l := range langs {
		if l.DisplayName == "" || len(l.Names) == 0 || l.Extension == "" {
			return fmt.Errorf("languages[%d]: display_name, names and extension are required", i)
		}
		short := l.Shortname()
		if other, ok := seen[short]; ok {
			return fmt.Errorf("languages[%d]: shortname %q of %s collides with %s", i, short, l.DisplayName, other)
		}
		seen[short] = l.DisplayName
	}
	return nil
}

func resolvePaths(cfg *models.PipelineConfig, baseDir string) error {
	for _, p := range []*string{
		&cfg.DatasetsDir,
		&cfg.CacheDir,
		&cfg.ReposDir,
		&cfg.CatalogPath,
		&cfg.ResultsPath,
		&cfg.Engine.Lockfile,
		&cfg.Engine.Environment.DockerfileDir,
		&cfg.Host.LocalRoot,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}

	// Only the local runner resolves the binary against the config directory;
	// sandboxed engines see their own filesystem.
	if cfg.Engine.Environment.Type != "local" {
		return nil
	}
	args, err := shellquote.Split(cfg.Engine.Command)
	if err != nil {
		return fmt.Errorf("engine.command: %w", err)
	}
	if len(args) > 0 && strings.ContainsRune(args[0], filepath.Separator) && !filepath.IsAbs(args[0]) {
		args[0] = filepath.Join(baseDir, args[0])
		cfg.Engine.Command = shellquote.Join(args...)
	}
	return nil
}
