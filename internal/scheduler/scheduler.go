package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"PriceHistory/internal/common"
	"PriceHistory/internal/model"
	"PriceHistory/internal/notifier"
	"PriceHistory/internal/updater"
)

// ErrBusy is returned when an update is requested while another is running.
var ErrBusy = errors.New("an update is already running")

// Notifier delivers run summaries.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs price updates on cron schedules, one at a time.
type Scheduler struct {
	Cron     *cron.Cron
	Updater  *updater.Updater
	Notifier Notifier // nil disables summaries
	Logger   *common.Logger
	Retries  int
	Ctx      context.Context

	runMu    sync.Mutex
	inflight sync.WaitGroup
	stateMu  sync.Mutex
	last    *updater.RunReport
	lastErr error
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, u *updater.Updater, n Notifier, logger *common.Logger, retries int) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		Updater:  u,
		Notifier: n,
		Logger:   logger,
		Retries:  retries,
		Ctx:      ctx,
	}
}

// RegisterAll registers one update job per granularity. An empty expression
// leaves that granularity unscheduled.
func (s *Scheduler) RegisterAll(dailyCron, weeklyCron, monthlyCron string) error {
	for _, job := range []struct {
		spec string
		g    model.Granularity
	}{
		{dailyCron, model.Day},
		{weeklyCron, model.Week},
		{monthlyCron, model.Month},
	} {
		if job.spec == "" {
			continue
		}
		g := job.g
		if _, err := s.Cron.AddFunc(job.spec, func() { s.scheduledRun(g) }); err != nil {
			return fmt.Errorf("register %s task: %w", g, err)
		}
		s.Logger.Info().Str("period", string(g)).Str("cron", job.spec).Msg("update task registered")
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running updates, scheduled or
// started with RunAsync, to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.inflight.Wait()
	s.Logger.Info().Msg("scheduler stopped")
}

// RunAsync starts RunNow in the background; Stop waits for it.
func (s *Scheduler) RunAsync(gs []model.Granularity) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if _, err := s.RunNow(s.Ctx, gs); errors.Is(err, ErrBusy) {
			s.Logger.Warn().Msg("previous update still running, skipped")
			s.trySend(s.Ctx, "An update is already running.")
		}
	}()
}

// RunNow runs an update immediately, notifies and remembers the result.
func (s *Scheduler) RunNow(ctx context.Context, gs []model.Granularity) (*updater.RunReport, error) {
	if !s.runMu.TryLock() {
		return nil, ErrBusy
	}
	defer s.runMu.Unlock()

	report, err := s.Updater.Run(ctx, updater.Options{Granularities: gs, Retries: s.Retries})
	if err != nil {
		s.Logger.Error().Err(err).Msg("update aborted")
	} else if !report.OK() {
		s.Logger.Warn().Interface("failed", report.Failed()).Msg("update finished with fails")
	}

	s.stateMu.Lock()
	s.last, s.lastErr = report, err
	s.stateMu.Unlock()

	s.trySend(ctx, notifier.FormatRunReport(report, err))
	return report, err
}

// Last returns the most recent report and its error.
func (s *Scheduler) Last() (*updater.RunReport, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.last, s.lastErr
}

func (s *Scheduler) scheduledRun(g model.Granularity) {
	s.Logger.Info().Str("period", string(g)).Msg("running scheduled update")
	if _, err := s.RunNow(s.Ctx, []model.Granularity{g}); errors.Is(err, ErrBusy) {
		s.Logger.Warn().Str("period", string(g)).Msg("previous update still running, skipped")
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.FormatHelp()
	}
	switch fields[0] {
	case "/status":
		report, err := s.Last()
		if report == nil && err == nil {
			return "No update has run yet."
		}
		return notifier.FormatRunReport(report, err)
	case "/update":
		periods := "mwd"
		if len(fields) > 1 {
			periods = fields[1]
		}
		gs, err := model.ParseGranularities(periods)
		if err != nil {
			return fmt.Sprintf("Invalid periods %q: use any of d, w, m.", periods)
		}
		if !s.runMu.TryLock() {
			return "An update is already running."
		}
		s.runMu.Unlock()
		s.RunAsync(gs)
		return fmt.Sprintf("Update started for %s.", periods)
	default:
		return notifier.FormatHelp()
	}
}

// trySend still delivers after ctx is cancelled, so a run interrupted by
// shutdown reports its summary.
func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := s.Notifier.SendWithRetry(sendCtx, text, 3); err != nil {
		s.Logger.Error().Err(err).Msg("send notification")
	}
}

// cronLogger adapts common.Logger to cron.Logger.
type cronLogger struct {
	*common.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
