package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/folio-cms/folio/internal/app"
)

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write the site as static HTML to the configured output directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := app.New(c.logger, c.cfg)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			res, err := application.Export(cmd.Context())
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d pages to %s in %s\n", res.Pages, res.OutputDir, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
