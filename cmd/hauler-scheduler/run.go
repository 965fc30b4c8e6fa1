package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/maferick/hauler_scheduler/repository/dao"
	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler invocation",
	Long: `Acquire the process lock, enqueue every due task and run up to
scheduler.worker_limit queued jobs, then exit. An overlapping invocation
that finds the lock held exits successfully without doing anything.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, err := a.core.Scheduler(ctx)
		if err != nil {
			return err
		}
		if report.Locked {
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"queued=%d pending=%d disabled=%d not_due=%d reclaimed=%d errors=%d processed=%d duration=%s\n",
			report.Queued, report.Pending, report.Disabled, report.NotDue,
			report.Reclaimed, report.Errors, report.Processed, report.Duration)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler on serve.cron until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return a.core.Serve(ctx, a.cfg.Serve.Cron)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the scheduler tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.close()

		if err = dao.InitTables(a.db); err != nil {
			return err
		}
		a.logger.Info("tables migrated")
		return nil
	},
}
