package recorder

import (
	"context"

	"PriceHistory/internal/model"
)

// DryRunStore reads through to a real catalog but discards every commit.
// Used by `update --dry-run` to exercise fetch and parse without writes.
type DryRunStore struct {
	Catalog
}

func NewDryRunStore(c Catalog) *DryRunStore { return &DryRunStore{Catalog: c} }

func (d *DryRunStore) CommitBars(_ context.Context, g model.Granularity, _ int64, bars []model.Bar) (int, error) {
	if err := checkGranularity(g); err != nil {
		return 0, err
	}
	return len(bars), nil
}
