package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"PriceHistory/internal/calendar"
	"PriceHistory/internal/config"
	"PriceHistory/internal/model"
	"PriceHistory/internal/notifier"
	"PriceHistory/internal/recorder"
	"PriceHistory/internal/updater"
)

var errUpdateFailed = errors.New("update finished with failed products")

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch missing bars for every stale product",
	Long: `Fetch missing bars for every product whose latest stored bar is older
than the period's boundary. Products that keep failing with network errors
are retried in rounds until the retry budget is spent.`,
	Example: "  pricehist update -p mwd --retry 6 -d TD",
	Args:    cobra.NoArgs,
	RunE:    runUpdate,
}

func init() {
	addUpdateFlags(updateCmd)
}

func addUpdateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("period", "p", "", "periods to update, any of d, w, m (default from config: mwd)")
	f.Int("retry", 0, "attempts per product before giving up (default from config: 6)")
	f.StringP("lastdate", "d", "", "reference date: TD, init or YYYY-MM-DD (default from config: TD)")
	f.Duration("round-delay", 0, "pause between retry rounds (default from config: 2m)")
	f.Duration("attempt-delay", 0, "pause after each network failure (default from config: 3s)")
	f.Bool("dry-run", false, "fetch and parse but do not store bars")
}

type updateSettings struct {
	Granularities []model.Granularity
	Retries       int
	AsOf          time.Time
	RoundDelay    time.Duration
	AttemptDelay  time.Duration
	DryRun        bool
}

// resolveUpdateSettings layers explicitly set flags over c. A flag set to
// zero is honoured.
func resolveUpdateSettings(cmd *cobra.Command, c *config.Config, today time.Time) (updateSettings, error) {
	flags := cmd.Flags()
	st := updateSettings{
		Retries:      c.Update.Retry,
		RoundDelay:   c.Update.RoundDelay,
		AttemptDelay: c.Update.AttemptDelay,
	}
	periods := c.Update.Periods
	if flags.Changed("period") {
		periods, _ = flags.GetString("period")
	}
	lastDate := c.Update.LastDate
	if flags.Changed("lastdate") {
		lastDate, _ = flags.GetString("lastdate")
	}
	if flags.Changed("retry") {
		st.Retries, _ = flags.GetInt("retry")
	}
	if flags.Changed("round-delay") {
		st.RoundDelay, _ = flags.GetDuration("round-delay")
	}
	if flags.Changed("attempt-delay") {
		st.AttemptDelay, _ = flags.GetDuration("attempt-delay")
	}
	st.DryRun, _ = flags.GetBool("dry-run")

	if st.Retries < 0 {
		return st, fmt.Errorf("retry must not be negative, got %d", st.Retries)
	}
	if st.RoundDelay < 0 || st.AttemptDelay < 0 {
		return st, errors.New("delays must not be negative")
	}
	var err error
	if st.Granularities, err = model.ParseGranularities(periods); err != nil {
		return st, fmt.Errorf("period value error, set any of d, w, m: %w", err)
	}
	if st.AsOf, err = calendar.ParseAsOf(lastDate, today); err != nil {
		return st, err
	}
	return st, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	st, err := resolveUpdateSettings(cmd, cfg, time.Now())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var target updater.Store = store
	if st.DryRun {
		target = recorder.NewDryRunStore(store)
		logger.Warn().Msg("dry run: bars will not be stored")
	}

	u := updater.New(newFetcher(), target, logger)
	u.RoundDelay = st.RoundDelay
	u.AttemptDelay = st.AttemptDelay

	report, runErr := u.Run(ctx, updater.Options{Granularities: st.Granularities, Retries: st.Retries, AsOf: st.AsOf})

	if tn := newNotifier(); tn != nil {
		if err := tn.SendWithRetry(context.Background(), notifier.FormatRunReport(report, runErr), 3); err != nil {
			logger.Error().Err(err).Msg("send notification")
		}
	}

	if runErr != nil {
		return runErr
	}
	if !report.OK() {
		return errUpdateFailed
	}
	return nil
}
