package recorder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"PriceHistory/internal/model"
)

// ErrCommitConflict is returned when a commit would store a (product, date)
// pair that already exists. Nothing from the rejected commit is persisted.
var ErrCommitConflict = errors.New("bar already stored")

// ErrNotFound is returned by catalog lookups with no match.
var ErrNotFound = errors.New("not found")

// Catalog is the read side the price updater consumes.
type Catalog interface {
	// FindStale lists, in catalog order, products with no bar of
	// granularity g or whose latest bar is dated before boundary.
	FindStale(ctx context.Context, g model.Granularity, boundary time.Time) ([]model.ProductRef, error)
	// LatestDate returns the date of the newest stored bar; ok is false
	// when the product has none.
	LatestDate(ctx context.Context, g model.Granularity, productID int64) (last time.Time, ok bool, err error)
}

// BarStore is the append-only write side.
type BarStore interface {
	// CommitBars stores bars for one product in a single transaction and
	// returns the number of rows written.
	CommitBars(ctx context.Context, g model.Granularity, productID int64, bars []model.Bar) (int, error)
}

// Store is a complete persistence backend.
type Store interface {
	Catalog
	BarStore

	AddExchange(ctx context.Context, e model.Exchange) (int64, error)
	FindExchange(ctx context.Context, symbol string, parentID int64) (model.Exchange, error)
	TopExchanges(ctx context.Context) ([]model.Exchange, error)
	Boards(ctx context.Context, parentID int64) ([]model.Exchange, error)
	AddProduct(ctx context.Context, p model.Product) (int64, error)

	// ListBars returns bars of granularity g ordered by symbol then date.
	// An empty symbol lists every product.
	ListBars(ctx context.Context, g model.Granularity, symbol string) ([]model.ProductBar, error)

	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver      string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresDSN string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "sqlite":
		s, err := NewSQLiteStore(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := NewPostgresStore(ctx, opts.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q (use sqlite or postgres)", opts.Driver)
	}
}

func checkGranularity(g model.Granularity) error {
	if _, err := model.ParseGranularity(string(g)); err != nil {
		return err
	}
	return nil
}

func conflictError(productID int64, err error) error {
	return fmt.Errorf("%w: product %d: %v", ErrCommitConflict, productID, err)
}
