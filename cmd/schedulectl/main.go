package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
	"github.com/hackgods/appointment-admin-console/internal/bootstrap"
	"github.com/hackgods/appointment-admin-console/internal/config"
	"github.com/hackgods/appointment-admin-console/internal/logging"
	"github.com/hackgods/appointment-admin-console/internal/notify"
)

// console is the loaded service shared by the subcommands.
type console struct {
	svc    *appointment.Service
	deps   *bootstrap.Deps
	logger *zap.Logger
}

// openFunc builds a loaded console for one subcommand invocation.
type openFunc func(ctx context.Context, cmd *cobra.Command) (*console, error)

func openConsole(ctx context.Context, cmd *cobra.Command) (*console, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level, _ := cmd.Flags().GetString("log-level")
	logger, err := logging.New(cfg.Env, level)
	if err != nil {
		return nil, err
	}

	deps, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := appointment.NewService(deps.Repo, deps.ReminderGate(cfg.ReminderCooldown), notify.NewLogNotifier(logger), logger, cfg)
	c := &console{svc: svc, deps: deps, logger: logger}
	if err := c.load(ctx, cmd); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// load fills the snapshot using the --status flag.
func (c *console) load(ctx context.Context, cmd *cobra.Command) error {
	status, _ := cmd.Flags().GetString("status")
	_, err := c.svc.Load(ctx, appointment.ParseStatusFilter(status))
	return err
}

func (c *console) Close() {
	if c.deps != nil {
		c.deps.Close()
	}
	_ = c.logger.Sync()
}

// withConsole wraps a subcommand so it runs against a freshly loaded snapshot.
func withConsole(open openFunc, run func(ctx context.Context, c *console, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := open(ctx, cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return run(ctx, c, cmd, args)
	}
}

func newRootCmd(open openFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "schedulectl",
		Short:         "Operate on the clinic appointment schedule from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("status", "ALL", "Status filter applied to the loaded appointments")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Print JSON instead of a table")

	rootCmd.AddCommand(listCmd(open))
	rootCmd.AddCommand(conflictsCmd(open))
	rootCmd.AddCommand(revenueCmd(open))
	rootCmd.AddCommand(rescheduleCmd(open))
	rootCmd.AddCommand(deleteCmd(open))
	rootCmd.AddCommand(remindCmd(open))
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openConsole).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
