package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
	driver     string
	dsn        string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "credbroker",
		Short:         "Calendar and messaging credential broker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the broker TOML config")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading config")
	flags.StringVar(&opts.driver, "db-driver", "", "database driver: sqlite3 or postgres")
	flags.StringVar(&opts.dsn, "db-dsn", "", "database connection string")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	cmd.AddCommand(
		newServeCmd(opts),
		newCheckTenantsCmd(opts),
		newTenantCmd(opts),
		newMessagingCmd(opts),
		newSendMessageCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// loadEnvFile leaves variables already present in the environment untouched.
// A missing file is not an error.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
