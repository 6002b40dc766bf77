package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Default configuration file path. A missing file is not an error.
const defaultConfigPath = "configs/config.yaml"

// defaultEnvFile is loaded into the environment when present.
const defaultEnvFile = ".env"

// options holds command-line flags.
type options struct {
	configPath string
	envFile    string
	database   string
	broker     string
	topic      string
	username   string
	password   string
}

// newRootCmd builds the glowlogger command.
func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "glowlogger",
		Short: "Record Glowmarkt electricity meter readings from MQTT into SQLite",
		Long: `glowlogger subscribes to the electricity meter topic published by a
Glowmarkt CAD, decodes each reading and stores it exactly once in a local
SQLite database. The connection is retried until the process is stopped.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is $GLOWLOGGER_CONFIG or "+defaultConfigPath+")")
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile, ".env file loaded into the environment if present")
	flags.StringVar(&opts.database, "database", "", "SQLite database file")
	flags.StringVar(&opts.broker, "broker", "", "MQTT broker URL, e.g. tcp://glow.local:1883")
	flags.StringVar(&opts.topic, "topic", "", "MQTT topic carrying electricity meter readings")
	flags.StringVar(&opts.username, "username", "", "MQTT username")
	flags.StringVar(&opts.password, "password", "", "MQTT password")

	return cmd
}

// resolveConfigPath returns the configuration file path.
// The --config flag wins, then GLOWLOGGER_CONFIG, then the default.
func (o *options) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv("GLOWLOGGER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
