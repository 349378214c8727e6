package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceHistory/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(date time.Time, px float64) model.Bar {
	return model.Bar{Date: date, Open: px, High: px + 1, Low: px - 1, Close: px, AdjClose: px, Volume: 1_000_000_000_000}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addProduct(t *testing.T, s *SQLiteStore, symbol string) int64 {
	t.Helper()
	id, err := s.AddProduct(context.Background(), model.Product{Symbol: symbol, Suffix: ".SZ"})
	require.NoError(t, err)
	return id
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.db")
	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestSQLiteStore_CommitThenLatestDate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := addProduct(t, s, "000001")

	_, ok, err := s.LatestDate(ctx, model.Day, id)
	require.NoError(t, err)
	assert.False(t, ok)

	bars := []model.Bar{bar(day(2024, 3, 11), 10), bar(day(2024, 3, 13), 11), bar(day(2024, 3, 12), 12)}
	n, err := s.CommitBars(ctx, model.Day, id, bars)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	last, ok, err := s.LatestDate(ctx, model.Day, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(2024, 3, 13), last)

	// other granularities are separate stores
	_, ok, err = s.LatestDate(ctx, model.Week, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_DoubleCommitConflictsAtomically(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := addProduct(t, s, "000001")

	first := []model.Bar{bar(day(2024, 3, 11), 10), bar(day(2024, 3, 12), 11)}
	_, err := s.CommitBars(ctx, model.Day, id, first)
	require.NoError(t, err)

	n, err := s.CommitBars(ctx, model.Day, id, first)
	assert.ErrorIs(t, err, ErrCommitConflict)
	assert.Zero(t, n)

	// a batch that overlaps on its last row must not leave its new rows behind
	overlap := []model.Bar{bar(day(2024, 3, 13), 12), bar(day(2024, 3, 14), 13), bar(day(2024, 3, 12), 11)}
	_, err = s.CommitBars(ctx, model.Day, id, overlap)
	assert.ErrorIs(t, err, ErrCommitConflict)

	stored, err := s.ListBars(ctx, model.Day, "000001")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	last, _, err := s.LatestDate(ctx, model.Day, id)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 12), last)
}

func TestSQLiteStore_SameDateDifferentProducts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := addProduct(t, s, "000001")
	b := addProduct(t, s, "000002")

	_, err := s.CommitBars(ctx, model.Week, a, []model.Bar{bar(day(2024, 3, 11), 10)})
	require.NoError(t, err)
	_, err = s.CommitBars(ctx, model.Week, b, []model.Bar{bar(day(2024, 3, 11), 20)})
	require.NoError(t, err)
}

func TestSQLiteStore_FindStale(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	never := addProduct(t, s, "NEVER")
	old := addProduct(t, s, "OLD")
	current := addProduct(t, s, "CURRENT")
	edge := addProduct(t, s, "EDGE")

	_, err := s.CommitBars(ctx, model.Day, old, []model.Bar{bar(day(2024, 1, 2), 1)})
	require.NoError(t, err)
	_, err = s.CommitBars(ctx, model.Day, current, []model.Bar{bar(day(2024, 3, 1), 1), bar(day(2024, 3, 20), 1)})
	require.NoError(t, err)
	_, err = s.CommitBars(ctx, model.Day, edge, []model.Bar{bar(day(2024, 3, 15), 1)})
	require.NoError(t, err)

	refs, err := s.FindStale(ctx, model.Day, day(2024, 3, 15))
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, never, refs[0].ID)
	assert.False(t, refs[0].HasBars())
	assert.Equal(t, ".SZ", refs[0].Suffix)

	assert.Equal(t, old, refs[1].ID)
	assert.Equal(t, day(2024, 1, 2), refs[1].LastDate)

	// nothing stored weekly, so everything is stale there
	refs, err = s.FindStale(ctx, model.Week, day(2024, 3, 11))
	require.NoError(t, err)
	assert.Len(t, refs, 4)
}

func TestSQLiteStore_InvalidGranularity(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindStale(context.Background(), model.Granularity("x; DROP TABLE product"), day(2024, 1, 1))
	assert.ErrorIs(t, err, model.ErrInvalidGranularity)
	_, err = s.CommitBars(context.Background(), model.Granularity("q"), 1, []model.Bar{bar(day(2024, 1, 1), 1)})
	assert.ErrorIs(t, err, model.ErrInvalidGranularity)
}

func TestSQLiteStore_ExchangeHierarchy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	szse, err := s.AddExchange(ctx, model.Exchange{Symbol: "SZSE", Name: "Shenzhen Stock Exchange"})
	require.NoError(t, err)
	boardA, err := s.AddExchange(ctx, model.Exchange{Symbol: "A", Name: "A Share", ParentID: szse})
	require.NoError(t, err)
	_, err = s.AddExchange(ctx, model.Exchange{Symbol: "B", Name: "B Share", ParentID: szse})
	require.NoError(t, err)
	_, err = s.AddExchange(ctx, model.Exchange{Symbol: "NASDAQ", Name: "NASDAQ"})
	require.NoError(t, err)

	_, err = s.AddExchange(ctx, model.Exchange{Symbol: "X", ParentID: boardA})
	assert.Error(t, err, "boards cannot have children")
	_, err = s.AddExchange(ctx, model.Exchange{Symbol: "X", ParentID: 999})
	assert.ErrorIs(t, err, ErrNotFound)

	top, err := s.TopExchanges(ctx)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.True(t, top[0].IsTopLevel())

	boards, err := s.Boards(ctx, szse)
	require.NoError(t, err)
	require.Len(t, boards, 2)
	assert.Equal(t, "A", boards[0].Symbol)

	a, err := s.FindExchange(ctx, "A", szse)
	require.NoError(t, err)
	assert.Equal(t, boardA, a.ID)

	_, err = s.FindExchange(ctx, "A", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListBarsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := addProduct(t, s, "BBB")
	a := addProduct(t, s, "AAA")

	_, err := s.CommitBars(ctx, model.Month, b, []model.Bar{bar(day(2024, 2, 1), 2)})
	require.NoError(t, err)
	_, err = s.CommitBars(ctx, model.Month, a, []model.Bar{bar(day(2024, 2, 1), 1), bar(day(2024, 1, 1), 1)})
	require.NoError(t, err)

	all, err := s.ListBars(ctx, model.Month, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AAA", all[0].Symbol)
	assert.Equal(t, day(2024, 1, 1), all[0].Bar.Date)
	assert.Equal(t, int64(1_000_000_000_000), all[0].Bar.Volume)
	assert.Equal(t, "BBB", all[2].Symbol)
}

func TestDryRunStore_DiscardsCommits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := addProduct(t, s, "000001")

	d := NewDryRunStore(s)
	n, err := d.CommitBars(ctx, model.Day, id, []model.Bar{bar(day(2024, 3, 11), 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := d.LatestDate(ctx, model.Day, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle"})
	assert.Error(t, err)
}
