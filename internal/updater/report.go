package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"PriceHistory/internal/calendar"
	"PriceHistory/internal/model"
)

// Result is one product that was brought up to date.
type Result struct {
	Symbol  string
	Records int
}

// BatchReport summarises one granularity.
type BatchReport struct {
	Granularity model.Granularity
	Boundary    time.Time
	Stale       int
	Rounds      int
	Records     int
	Succeeded   []Result
	// Failed lists products still pending when the retry budget ran out.
	Failed []string
}

// OK reports whether every stale product was updated.
func (b *BatchReport) OK() bool { return len(b.Failed) == 0 }

// Options controls a full run.
type Options struct {
	Granularities []model.Granularity
	Retries       int
	// AsOf is the reference date for boundaries. Zero means today.
	AsOf time.Time
}

// RunReport collects the batches of one run in granularity order.
type RunReport struct {
	ID       string
	AsOf     time.Time
	Started  time.Time
	Finished time.Time
	Batches  []*BatchReport
}

// OK is false if any granularity ended with permanently failed products.
func (r *RunReport) OK() bool {
	for _, b := range r.Batches {
		if !b.OK() {
			return false
		}
	}
	return true
}

// Failed returns every permanently failed symbol keyed by granularity.
func (r *RunReport) Failed() map[model.Granularity][]string {
	out := make(map[model.Granularity][]string)
	for _, b := range r.Batches {
		if len(b.Failed) > 0 {
			out[b.Granularity] = b.Failed
		}
	}
	return out
}

func (r *RunReport) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Run updates each granularity in order. The stale set of a granularity is
// read once, before its first round. A returned error means the run was
// aborted; the report then holds the batches completed so far.
func (u *Updater) Run(ctx context.Context, opts Options) (*RunReport, error) {
	now := time.Now
	if u.Now != nil {
		now = u.Now
	}
	if len(opts.Granularities) == 0 {
		return nil, fmt.Errorf("run: %w", model.ErrInvalidGranularity)
	}
	retries := opts.Retries
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = calendar.Truncate(now())
	}

	report := &RunReport{ID: uuid.NewString(), AsOf: asOf, Started: now()}
	log := u.Logger.WithFields(map[string]any{"run_id": report.ID})
	log.Info().Str("as_of", asOf.Format(model.DateLayout)).Int("retries", retries).
		Str("fetcher", u.Collector.Fetcher.Name()).Msg("update started")

	batchUpdater := *u
	batchUpdater.Logger = log

	for _, g := range opts.Granularities {
		boundary, err := calendar.ResolveBoundary(asOf, g)
		if err != nil {
			report.Finished = now()
			return report, err
		}
		stale, err := u.Store.FindStale(ctx, g, boundary)
		if err != nil {
			report.Finished = now()
			return report, fmt.Errorf("find stale %s: %w", g, err)
		}
		log.Info().Str("period", string(g)).Str("boundary", boundary.Format(model.DateLayout)).
			Int("stale", len(stale)).Msg("stale products found")

		batch, err := batchUpdater.RunBatch(ctx, g, stale, retries)
		if batch != nil {
			batch.Boundary = boundary
			report.Batches = append(report.Batches, batch)
		}
		if err != nil {
			report.Finished = now()
			return report, err
		}
	}

	report.Finished = now()
	log.Info().Bool("ok", report.OK()).Dur("elapsed", report.Duration()).Msg("update finished")
	return report, nil
}
