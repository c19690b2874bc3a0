package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/blacklist"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the blacklist refresh worker and ensure its monthly schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, closeStore, err := openBlacklist(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		c, err := dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := blacklist.EnsureSchedule(ctx, c, blacklist.ScheduleConfig{
			ID:        cfg.Temporal.ScheduleID,
			Cron:      cfg.Blacklist.Cron,
			TaskQueue: cfg.Temporal.TaskQueue,
		}); err != nil {
			return err
		}

		m, _ := newMetrics()
		w := blacklist.NewWorker(c, cfg.Temporal.TaskQueue, &blacklist.Activities{
			Refresher: newRefresher(cfg, store, m),
		})

		zap.L().Info("starting blacklist worker",
			zap.String("task_queue", cfg.Temporal.TaskQueue),
			zap.String("schedule", cfg.Temporal.ScheduleID),
			zap.String("cron", cfg.Blacklist.Cron))
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "blacklist worker")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
