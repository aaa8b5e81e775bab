package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	diafano "github.com/eldiafano/diafano"
)

func daemonCmd() *cobra.Command {
	var schedule string
	var runNow bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Fetch outlet feeds on a cron schedule",
		Long: `Continuously fetch outlet feeds on a cron schedule (default from
feeds.schedule, e.g. "*/30 * * * *"). Designed for running inside a
container or as a background service. Handles SIGINT/SIGTERM for graceful
shutdown (waits for a running cycle to finish).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule == "" {
				schedule = cfg.Feeds.Schedule
			}
			if _, err := cron.ParseStandard(schedule); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			ctx := cmd.Context()
			engine, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			cycle := 0
			run := func() {
				cycle++
				fetchCycle(ctx, engine, cycle)
			}

			// A slow cycle skips the next tick instead of overlapping it.
			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
			if _, err := c.AddFunc(schedule, run); err != nil {
				return fmt.Errorf("schedule fetch: %w", err)
			}

			logger.Info("daemon starting", "schedule", schedule)
			if runNow {
				run()
			}
			c.Start()

			<-ctx.Done()
			logger.Info("received shutdown signal, waiting for running cycle")
			<-c.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", "cron schedule (default from config)")
	cmd.Flags().BoolVar(&runNow, "now", true, "run one cycle immediately on start")
	return cmd
}

func fetchCycle(ctx context.Context, engine *diafano.Engine, cycle int) {
	start := time.Now()
	logger.Info("fetch cycle starting", "cycle", cycle)

	stats, err := engine.FetchFeeds(ctx)
	if err != nil {
		logger.Error("fetch cycle failed", "cycle", cycle, "error", err)
		return
	}
	logger.Info("fetch cycle completed",
		"cycle", cycle,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"medios", stats.Outlets,
		"noticias", stats.Articles,
		"con_error", stats.Errored)
}
