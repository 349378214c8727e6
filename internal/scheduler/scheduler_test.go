package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceHistory/internal/collector"
	"PriceHistory/internal/common"
	"PriceHistory/internal/model"
	"PriceHistory/internal/recorder"
	"PriceHistory/internal/updater"
)

const csvBody = "Date,Open,High,Low,Close,Volume,Adj Close\n" +
	"2024-03-15,14.0,14.5,13.5,14.2,1500,14.2\n" +
	"2024-03-14,13.0,13.5,12.5,13.2,1300,13.1\n" +
	"2024-03-13,12.0,12.5,11.5,12.2,1200,12.1\n" +
	"2024-03-12,11.0,11.5,10.5,11.2,1100,11.1\n"

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeNotifier) {
	t.Helper()
	ctx := context.Background()
	store, err := recorder.NewSQLiteStore(filepath.Join(t.TempDir(), "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.AddProduct(ctx, model.Product{Symbol: "600000", Suffix: ".SS"})
	require.NoError(t, err)

	fetcher := &collector.MockFetcher{Responses: map[string]string{"600000.SS": csvBody}}
	logger := common.NewSilentLogger()
	u := updater.New(fetcher, store, logger)
	u.Sleep = func(context.Context, time.Duration) error { return nil }

	n := &fakeNotifier{}
	return NewScheduler(ctx, u, n, logger, 2), n
}

func TestRunNow_NotifiesAndRemembers(t *testing.T) {
	s, n := newTestScheduler(t)

	report, err := s.RunNow(context.Background(), []model.Granularity{model.Day})
	require.NoError(t, err)
	require.True(t, report.OK())

	last, lastErr := s.Last()
	assert.Same(t, report, last)
	assert.NoError(t, lastErr)

	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "update finished")
	assert.Contains(t, n.sent[0], "records: 2")
}

func TestRunNow_Busy(t *testing.T) {
	s, n := newTestScheduler(t)
	s.runMu.Lock()
	defer s.runMu.Unlock()

	_, err := s.RunNow(context.Background(), []model.Granularity{model.Day})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, n.sent)
	assert.Contains(t, s.HandleCommand(context.Background(), "/update d"), "already running")
}

func TestHandleCommand(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	assert.Equal(t, "No update has run yet.", s.HandleCommand(ctx, "/status"))
	assert.Contains(t, s.HandleCommand(ctx, "/update x"), "Invalid periods")
	assert.Contains(t, s.HandleCommand(ctx, "hello"), "Available commands")

	_, err := s.RunNow(ctx, []model.Granularity{model.Week})
	require.NoError(t, err)
	assert.Contains(t, s.HandleCommand(ctx, "/status"), "weekly")
}

func TestRegisterAll(t *testing.T) {
	s, _ := newTestScheduler(t)
	require.NoError(t, s.RegisterAll("0 0 22 * * 1-5", "", "0 0 9 1 * *"))
	assert.Len(t, s.Cron.Entries(), 2)

	assert.ErrorContains(t, s.RegisterAll("not a cron", "", ""), "register daily task")
}

type slowFetcher struct {
	delay time.Duration
}

func (f slowFetcher) Name() string { return "slow" }

func (f slowFetcher) FetchHistory(ctx context.Context, _ string, _ time.Time, _ model.Granularity) (string, error) {
	select {
	case <-time.After(f.delay):
		return csvBody, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestStop_WaitsForBackgroundRun(t *testing.T) {
	s, n := newTestScheduler(t)
	s.Updater.Collector.Fetcher = slowFetcher{delay: 100 * time.Millisecond}
	s.Start()

	s.RunAsync([]model.Granularity{model.Day})
	s.Stop()

	last, err := s.Last()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.OK())
	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "update finished")
}

func TestStop_SummarySentAfterCancel(t *testing.T) {
	s, n := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	s.Ctx = ctx
	s.Updater.Collector.Fetcher = slowFetcher{delay: time.Minute}

	s.RunAsync([]model.Granularity{model.Day})
	time.Sleep(20 * time.Millisecond)
	cancel()
	s.Stop()

	_, err := s.Last()
	assert.ErrorIs(t, err, context.Canceled)
	n.mu.Lock()
	defer n.mu.Unlock()
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "aborted")
}
