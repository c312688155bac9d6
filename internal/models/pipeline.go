package models

// PipelineConfig represents the parsed typedsets.yaml configuration.
type PipelineConfig struct {
	DatasetsDir    string           `yaml:"datasets_dir" json:"datasets_dir"`
	DatasetsSource string           `yaml:"datasets_source,omitempty" json:"datasets_source,omitempty"`
	CacheDir       string           `yaml:"cache_dir" json:"cache_dir"`
	ReposDir       string           `yaml:"repos_dir" json:"repos_dir"`
	CatalogPath    string           `yaml:"catalog_path" json:"catalog_path"`
	ResultsPath    string           `yaml:"results_path,omitempty" json:"results_path,omitempty"`
	Concurrency    int              `yaml:"concurrency" json:"concurrency"`
	LogLevel       string           `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	Retry          RetryConfig      `yaml:"retry,omitempty" json:"retry,omitempty"`
	Fetch          FetchConfig      `yaml:"fetch,omitempty" json:"fetch,omitempty"`
	Engine         EngineConfig     `yaml:"engine" json:"engine"`
	Host           HostConfig       `yaml:"host" json:"host"`
	Languages      []TargetLanguage `yaml:"languages,omitempty" json:"languages,omitempty"`
}

type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" json:"max_attempts"`
	InitialDelayMs int     `yaml:"initial_delay_ms" json:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms" json:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier" json:"multiplier"`
}

type FetchConfig struct {
	TimeoutSec        float64 `yaml:"timeout_sec" json:"timeout_sec"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" json:"requests_per_second,omitempty"`
}

// EngineConfig describes how to invoke the code generation engine.
type EngineConfig struct {
	Name          string `yaml:"name" json:"name"`
	Command       string `yaml:"command" json:"command"`
	ReplayCommand string `yaml:"replay_command" json:"replay_command"`
	// Homepage is linked from generated READMEs. Without one the name is shown bare.
	Homepage string `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	// LangFlag, when set, passes the language shortname explicitly ("--lang go")
	// instead of letting the engine infer it from the output extension.
	LangFlag          string                  `yaml:"lang_flag,omitempty" json:"lang_flag,omitempty"`
	Version           string                  `yaml:"version,omitempty" json:"version,omitempty"`
	Lockfile          string                  `yaml:"lockfile,omitempty" json:"lockfile,omitempty"`
	Package           string                  `yaml:"package,omitempty" json:"package,omitempty"`
	VersionConstraint string                  `yaml:"version_constraint,omitempty" json:"version_constraint,omitempty"`
	TimeoutSec        float64                 `yaml:"timeout_sec" json:"timeout_sec"`
	Environment       EngineEnvironmentConfig `yaml:"environment" json:"environment"`
}

// EngineEnvironmentConfig selects where the engine runs.
type EngineEnvironmentConfig struct {
	Type           string            `yaml:"type" json:"type"` // local, docker or modal
	Image          string            `yaml:"image,omitempty" json:"image,omitempty"`
	DockerfileDir  string            `yaml:"dockerfile_dir,omitempty" json:"dockerfile_dir,omitempty"`
	Install        string            `yaml:"install,omitempty" json:"install,omitempty"`
	CPUs           int               `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	Memory         string            `yaml:"memory,omitempty" json:"memory,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	ProviderConfig map[string]any    `yaml:"provider_config,omitempty" json:"provider_config,omitempty"`
}

// HostConfig describes the repository hosting service.
type HostConfig struct {
	Type         string `yaml:"type" json:"type"` // github or local
	Org          string `yaml:"org" json:"org"`
	RepoPrefix   string `yaml:"repo_prefix" json:"repo_prefix"`
	RemoteFormat string `yaml:"remote_format" json:"remote_format"`
	WebURLFormat string `yaml:"web_url_format" json:"web_url_format"`
	Branch       string `yaml:"branch" json:"branch"`
	TokenEnv     string `yaml:"token_env" json:"token_env"`
	APIURL       string `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	LocalRoot    string `yaml:"local_root,omitempty" json:"local_root,omitempty"`
	AuthorName   string `yaml:"author_name" json:"author_name"`
	AuthorEmail  string `yaml:"author_email" json:"author_email"`
	// CatalogRepo is linked from each dataset README as the place to contribute.
	CatalogRepo string `yaml:"catalog_repo" json:"catalog_repo"`
}

// RepoName returns "<org>/<prefix><slug>".
func (h HostConfig) RepoName(slug string) string {
	return h.Org + "/" + h.RepoPrefix + slug
}
