package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/typeguard/typedsets/internal/engine"
	"github.com/typeguard/typedsets/internal/pipeline"
)

func newCatalogCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Write the top-level catalog document without touching any repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metas, err := pipeline.Discover(cmd.Context(), app.cfg)
			if err != nil {
				return err
			}
			return pipeline.WriteCatalog(app.cfg, metas)
		},
	}
}

func newListCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metas, err := pipeline.Discover(cmd.Context(), app.cfg)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, m := range metas {
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Slug, m.Dataset.Category, m.Dataset.Name)
			}
			return w.Flush()
		},
	}
}

func newLanguagesCmd(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List target languages with their output directory and extension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, l := range app.cfg.Languages {
				fmt.Fprintf(w, "%s\t.%s\t%s\n", l.Shortname(), l.Extension, l.DisplayName)
			}
			return w.Flush()
		},
	}
}

func newVersionCmd(app *appContext, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLI and engine versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			if v, err := engine.ResolveVersion(app.cfg.Engine); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", app.cfg.Engine.Name, v)
			}
		},
	}
}
