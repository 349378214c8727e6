package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"PriceHistory/internal/common"
	"PriceHistory/internal/model"
	"PriceHistory/internal/scheduler"
	"PriceHistory/internal/updater"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run updates on the configured cron schedules",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("run-on-start", false, "run a full update immediately after start")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info().Str("version", common.Version).Msg("pricehist starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	u := updater.New(newFetcher(), store, logger)
	u.RoundDelay = cfg.Update.RoundDelay
	u.AttemptDelay = cfg.Update.AttemptDelay

	tn := newNotifier()
	var n scheduler.Notifier
	if tn != nil {
		n = tn
	}
	sched := scheduler.NewScheduler(ctx, u, n, logger, cfg.Update.Retry)
	if err := sched.RegisterAll(cfg.Schedule.DailyCron, cfg.Schedule.WeeklyCron, cfg.Schedule.MonthlyCron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info().Msg("telegram polling started")
	}

	if runNow, _ := cmd.Flags().GetBool("run-on-start"); runNow || os.Getenv("RUN_ON_START") == "true" {
		gs, err := model.ParseGranularities(cfg.Update.Periods)
		if err != nil {
			return err
		}
		logger.Info().Str("periods", cfg.Update.Periods).Msg("run on start enabled, updating now")
		sched.RunAsync(gs)
	}

	logger.Info().Msg("pricehist is running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutdown signal received, stopping")
	cancel()
	return nil
}
