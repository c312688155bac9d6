package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/typeguard/typedsets/internal/models"
	"github.com/typeguard/typedsets/internal/pipeline"
)

func newRunCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run [slug...]",
		Short: "Rebuild the catalog and reconcile the given datasets (all when none are named)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, app, args)
		},
	}
}

func runPipeline(cmd *cobra.Command, app *appContext, slugs []string) error {
	result, err := pipeline.RunFromConfig(cmd.Context(), app.cfg, slugs)
	if err != nil {
		if models.IsFatalToRun(err) {
			return newExitCodeError(ExitConfigError, err)
		}
		return err
	}

	printSummary(cmd.OutOrStdout(), result)

	if result.Failed > 0 || result.Cancelled {
		return newExitCodeError(ExitDatasetFailed,
			fmt.Errorf("%d dataset(s) failed, %d skipped", result.Failed, result.Skipped))
	}
	return nil
}

func printSummary(w io.Writer, result *models.RunResult) {
	fmt.Fprintf(w, "\nEngine version: %s\n", result.EngineVersion)
	fmt.Fprintf(w, "Datasets: %d (selected %d)\n", result.TotalDatasets, result.Selected)
	fmt.Fprintf(w, "Succeeded: %d\n", result.Succeeded)
	fmt.Fprintf(w, "Failed: %d\n", result.Failed)
	fmt.Fprintf(w, "Skipped: %d\n", result.Skipped)
	fmt.Fprintf(w, "Created: %d\n", result.Created)
	fmt.Fprintf(w, "Committed: %d\n", result.Committed)
	if result.EngineCost > 0 {
		fmt.Fprintf(w, "Engine cost: %.4f\n", result.EngineCost)
	}
	fmt.Fprintf(w, "Duration: %.2fs\n", result.TotalDurationSec)

	for _, r := range result.Results {
		if r.Error != nil {
			fmt.Fprintf(w, "  %s: %s: %s\n", r.Slug, r.Error.Type, r.Error.Message)
		}
	}
}
