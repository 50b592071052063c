package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/logging"
)

var (
	cfgFile  string
	logLevel string
	userFlag string

	// loaded by the root command before any subcommand runs
	paths     config.Paths
	cfg       config.Config
	cfgErr    error
	log       *logging.Logger
	closeLogs = func() error { return nil }
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskweaver",
		Short: "Task Weaver: run prompt-templated AI agents and track their cost",
		Long: "Task Weaver executes tasks against user-defined AI agents, grounding them in\n" +
			"stored data sources and accounting for tokens, cost and plan limits.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			if err := config.LoadDotEnv(paths.EnvFile, ".env"); err != nil {
				return err
			}

			// A broken config must not block the commands that repair it.
			cfg, cfgErr = config.Load(paths.Config)

			opts := logging.Options{
				Level: cfg.Logging.Level,
				Style: cfg.Logging.Style,
				File:  cfg.Logging.File,
			}
			if logLevel != "" {
				opts.Level = logLevel
			}
			log, closeLogs, err = logging.Open(opts)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return closeLogs()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultUser := os.Getenv("TASKWEAVER_USER")
	if defaultUser == "" {
		defaultUser = "local"
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.taskweaver/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")
	cmd.PersistentFlags().StringVar(&userFlag, "user", defaultUser, "user ID that owns agents, sources and tasks")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newPlansCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newSourceCmd())
	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newEmbedCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		if log != nil {
			log.Error().Err(err).Msg("command failed")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}

// loadedConfig returns the config, or the error that loading it produced.
func loadedConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	return &cfg, nil
}
