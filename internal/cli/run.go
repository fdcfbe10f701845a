package cli

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/engine"
	"github.com/driftsync/driftsync/internal/logging"
	"github.com/driftsync/driftsync/internal/scheduler"
	"github.com/driftsync/driftsync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	LogDir string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Start the reconciliation service",
		Long: `Start the incident mirror reconciliation service.

Loads the host configuration, opens the SQLite state database (creating it
if it doesn't exist), and starts one polling loop per polling-enabled host
feeding the reconciler until interrupted.

Example:
  driftsync run ./config.yaml --db ./driftsync.db
  driftsync run ./config.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.LogDir, "log-dir", "", "directory for rotating log files (empty: console only)")

	return cmd
}

func runService(opts *RunOptions, configPath string) error {
	// Secrets may live in a .env next to the config; best effort.
	_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))

	log := logging.Init(opts.Verbose, opts.LogDir)

	cfg, err := config.Load(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	log.Info().Int("hosts", len(cfg.Hosts)).Msg("config loaded")

	dbPath := opts.Database
	if cfg.Database != "" {
		dbPath = cfg.Database
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("error closing database")
		}
	}()
	log.Info().Str("path", dbPath).Msg("database ready")

	rec := engine.New(st, st, st, st, engine.WithLogger(log))
	queue := engine.NewQueue()
	runner := engine.NewRunner(queue, rec, log)
	sched := scheduler.New(cfg.Hosts, scheduler.SpoolSource{}, queue, scheduler.UUIDv7Generator{}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()

	log.Info().Msg("service started")
	sched.Run(ctx)

	// Scheduler stopped (ctx cancelled); close the queue so the runner
	// drains what's left and exits.
	queue.Close()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "runner stopped", err)
	}
	log.Info().Msg("service stopped")
	return nil
}
