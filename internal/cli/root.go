// Package cli implements the typedsets command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/typeguard/typedsets/internal/config"
	"github.com/typeguard/typedsets/internal/models"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitConfigError   = 2
	ExitDatasetFailed = 3
)

type appContext struct {
	configPath string
	logLevel   string
	cfg        models.PipelineConfig
}

// NewRootCmd builds the command tree. Without a subcommand the root runs the
// pipeline over the given slugs.
func NewRootCmd(version string) *cobra.Command {
	app := &appContext{}
	cmd := &cobra.Command{
		Use:   "typedsets [slug...]",
		Short: "Generate typed code for public JSON datasets and publish it to per-dataset repositories",
		Args:  cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, app, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&app.configPath, "config", config.DefaultConfigFile, "path to pipeline config")
	cmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides log_level)")

	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newCatalogCmd(app))
	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newLanguagesCmd(app))
	cmd.AddCommand(newVersionCmd(app, version))

	return cmd
}

// Execute runs the command line against args and returns the process exit code.
func Execute(ctx context.Context, version string, args []string) int {
	cmd := NewRootCmd(version)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return mapExitCode(err)
	}
	return ExitOK
}

// load reads the config file and installs the default logger.
func (a *appContext) load() error {
	cfg, err := config.LoadPipelineConfig(a.configPath)
	if err != nil {
		return newExitCodeError(ExitConfigError, err)
	}
	a.cfg = cfg

	levelName := cfg.LogLevel
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := parseLevel(levelName)
	if err != nil {
		return newExitCodeError(ExitConfigError, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return level, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

func mapExitCode(err error) int {
	var codeErr *exitCodeError
	if errors.As(err, &codeErr) {
		return codeErr.code
	}
	if models.IsFatalToRun(err) {
		return ExitConfigError
	}
	return ExitError
}

type exitCodeError struct {
	code int
	err  error
}

func newExitCodeError(code int, err error) *exitCodeError {
	return &exitCodeError{code: code, err: err}
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}
