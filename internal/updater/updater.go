// Package updater refreshes stored price history for stale products.
//
// A batch is worked in rounds. Every pending product is attempted once per
// round; transient download failures and commit conflicts are carried into
// the next round until the retry budget runs out. Anything unclassified
// aborts the whole run.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceHistory/internal/collector"
	"PriceHistory/internal/common"
	"PriceHistory/internal/model"
	"PriceHistory/internal/recorder"
)

const (
	DefaultRetries      = 6
	DefaultAttemptDelay = 3 * time.Second
	DefaultRoundDelay   = 2 * time.Minute
)

// Store is what the updater needs from persistence.
type Store interface {
	recorder.Catalog
	recorder.BarStore
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Updater drives fetch → parse → commit for batches of stale products.
type Updater struct {
	Collector *collector.Collector
	Store     Store
	Logger    *common.Logger

	// AttemptDelay follows every transient download failure.
	AttemptDelay time.Duration
	// RoundDelay separates retry rounds.
	RoundDelay time.Duration

	Sleep SleepFunc
	Now   func() time.Time
}

// New creates an Updater with default delays.
func New(fetcher collector.Fetcher, store Store, logger *common.Logger) *Updater {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Updater{
		Collector:    collector.NewCollector(fetcher),
		Store:        store,
		Logger:       logger,
		AttemptDelay: DefaultAttemptDelay,
		RoundDelay:   DefaultRoundDelay,
		Sleep:        sleepContext,
		Now:          time.Now,
	}
}

// AbortError reports the product whose failure stopped a run.
type AbortError struct {
	Symbol      string
	Granularity model.Granularity
	Err         error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("update aborted at %s (%s): %v", e.Symbol, e.Granularity, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// RunBatch works products for granularity g with a budget of retries
// attempts per product. Exhausting the budget is reported in the returned
// BatchReport, not as an error; an error means the run was aborted.
func (u *Updater) RunBatch(ctx context.Context, g model.Granularity, products []model.ProductRef, retries int) (*BatchReport, error) {
	report := &BatchReport{Granularity: g, Stale: len(products)}
	pending := products
	retriesLeft := retries

	for {
		retriesLeft--
		if len(pending) == 0 {
			u.Logger.Info().Str("period", string(g)).Int("rounds", report.Rounds).
				Msg("finished update with no fails")
			return report, nil
		}
		if retriesLeft < 0 {
			report.Failed = symbols(pending)
			u.Logger.Warn().Str("period", string(g)).Int("fails", len(pending)).
				Msg("finished update with fails")
			u.Logger.Error().Str("period", string(g)).Strs("symbols", report.Failed).
				Msg("failed to insert symbols")
			return report, nil
		}

		report.Rounds++
		fails, err := u.runRound(ctx, g, pending, retriesLeft, report)
		if err != nil {
			return report, err
		}

		if len(fails) > 0 && retriesLeft > 0 {
			u.Logger.Info().Int("attempts_left", retriesLeft).Str("period", string(g)).
				Int("fails", len(fails)).Dur("retry_in", u.RoundDelay).
				Msg("current loop end")
			if err := u.sleep(ctx, u.RoundDelay); err != nil {
				return report, err
			}
		}
		pending = fails
	}
}

func (u *Updater) runRound(ctx context.Context, g model.Granularity, pending []model.ProductRef, retriesLeft int, report *BatchReport) ([]model.ProductRef, error) {
	var fails []model.ProductRef
	total := len(pending)

	for i, ref := range pending {
		progress := fmt.Sprintf("%d/%d", i+1, total)
		n, err := u.updateOne(ctx, g, ref)

		switch {
		case err == nil:
			report.Succeeded = append(report.Succeeded, Result{Symbol: ref.Symbol, Records: n})
			report.Records += n
			u.Logger.Info().Int("attempts_left", retriesLeft).Str("symbol", ref.Symbol).
				Int("records", n).Str("period", string(g)).Str("from", ref.StartDate().Format(model.DateLayout)).
				Str("progress", progress).Msg("records inserted")

		case ctx.Err() != nil:
			return nil, ctx.Err()

		case collector.IsTransient(err):
			fails = append(fails, ref)
			u.Logger.Warn().Int("attempts_left", retriesLeft).Str("symbol", ref.Symbol).
				Str("period", string(g)).Str("from", ref.StartDate().Format(model.DateLayout)).
				Str("progress", progress).Err(err).Msg("download failed")
			if err := u.sleep(ctx, u.AttemptDelay); err != nil {
				return nil, err
			}

		case errors.Is(err, recorder.ErrCommitConflict):
			refreshed, rerr := u.refresh(ctx, g, ref)
			if rerr != nil {
				u.Logger.Critical().Str("symbol", ref.Symbol).Err(rerr).Msg("refresh after conflict failed")
				return nil, &AbortError{Symbol: ref.Symbol, Granularity: g, Err: rerr}
			}
			fails = append(fails, refreshed)
			u.Logger.Warn().Int("attempts_left", retriesLeft).Str("symbol", ref.Symbol).
				Str("period", string(g)).Str("progress", progress).Err(err).
				Msg("commit conflict, requeued")

		case errors.Is(err, collector.ErrParse):
			u.Logger.Error().Str("symbol", ref.Symbol).Str("period", string(g)).Err(err).
				Msg("malformed price history")
			return nil, &AbortError{Symbol: ref.Symbol, Granularity: g, Err: err}

		default:
			u.Logger.Critical().Str("symbol", ref.Symbol).Str("period", string(g)).
				Str("error_type", fmt.Sprintf("%T", errors.Unwrap(err))).Err(err).
				Msg("unknown exception")
			return nil, &AbortError{Symbol: ref.Symbol, Granularity: g, Err: err}
		}
	}
	return fails, nil
}

// updateOne fetches, parses and commits the missing bars of one product.
func (u *Updater) updateOne(ctx context.Context, g model.Granularity, ref model.ProductRef) (int, error) {
	bars, err := u.Collector.Collect(ctx, ref, g)
	if err != nil {
		return 0, err
	}
	return u.Store.CommitBars(ctx, g, ref.ID, bars)
}

// refresh re-reads the product's latest stored date so the next attempt
// starts after whatever a conflicting commit already stored.
func (u *Updater) refresh(ctx context.Context, g model.Granularity, ref model.ProductRef) (model.ProductRef, error) {
	last, ok, err := u.Store.LatestDate(ctx, g, ref.ID)
	if err != nil {
		return ref, err
	}
	if ok {
		ref.LastDate = last
	} else {
		ref.LastDate = time.Time{}
	}
	return ref, nil
}

func (u *Updater) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if u.Sleep == nil {
		return sleepContext(ctx, d)
	}
	return u.Sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func symbols(refs []model.ProductRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Symbol
	}
	return out
}
