// Package main contains the entrypoint for the trigger scheduler service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgard/shamebot/internal/config"
	"github.com/edgard/shamebot/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx, os.Args[1:])
	stop()
	os.Exit(exitCode)
}

// run executes the command line and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		return 1
	}
	return 0
}

// cli carries state shared by every subcommand once the root has loaded config.
type cli struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "shamebot-cron",
		Short:         "Schedules pester, reminder and overdue notifications for tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "./config.yaml", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Resume persisted triggers and serve the jobs API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.migrate(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "jobs <task-id>",
			Short: "Print the persisted trigger record of a task",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.jobs(cmd.Context(), cmd.OutOrStdout(), args[0])
			},
		},
	)

	return root
}

func (c *cli) init() error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", c.configPath, "error", err)
		return err
	}
	c.cfg = cfg

	c.log = logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(c.log)
	c.log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)
	return nil
}
