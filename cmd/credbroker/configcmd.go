package main

import (
	"github.com/goliatone/go-credential-broker/adapters/gologger"
	"github.com/goliatone/go-credential-broker/config"
	"github.com/goliatone/go-credential-broker/core"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the broker configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := gologger.New(gologger.Options{Level: opts.logLevel, Format: opts.logFormat})
			file, err := config.Load(cmd.Context(), opts.configPath, logger)
			if err != nil {
				return err
			}
			loader := core.StaticConfigLoader(file.Broker)
			cfg, err := core.NewCfgxConfigProvider(loader).Load(cmd.Context(), core.DefaultConfig())
			if err != nil {
				return err
			}
			db := databaseConfig(file.Database, opts)
			file.Database.Driver = db.Driver
			file.Database.DSN = db.DSN
			return config.Render(cmd.OutOrStdout(), file, cfg)
		},
	})
	return cmd
}
