package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/config"
	"github.com/folio-cms/folio/internal/pkg/nativelog"
)

type cli struct {
	configPath string
	cfg        *config.AppConfig
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "folio",
		Short: "Folio - a file-backed CMS with themes and static export",
		Long: `Folio serves markdown posts and pages from a data directory through
installable themes, with an admin JSON API under /api. It can also export the
site as plain HTML.

Configuration comes from environment variables (PORT, DATA_DIR, ...) and an
optional YAML file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default is ./config.yml when present)")
	root.AddCommand(newServeCmd(c), newExportCmd(c))
	return root
}

func (c *cli) init() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger, err := nativelog.NewZapLogger(nativelog.Options{
		Dir:         cfg.LogDir,
		Level:       cfg.LogLevel,
		Development: cfg.IsDev(),
	})
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("native log pipeline unavailable, fallback to zap production logger", zap.Error(err))
	}
	c.cfg, c.logger = cfg, logger
	return nil
}
