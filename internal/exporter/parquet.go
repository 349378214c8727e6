// Package exporter writes stored bars to columnar files.
package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"PriceHistory/internal/model"
)

// BarLister is the read side an export needs.
type BarLister interface {
	ListBars(ctx context.Context, g model.Granularity, symbol string) ([]model.ProductBar, error)
}

// Row is one bar as written to Parquet.
type Row struct {
	Symbol   string    `parquet:"symbol,dict"`
	Date     time.Time `parquet:"date,timestamp(millisecond)"`
	Open     float64   `parquet:"open"`
	High     float64   `parquet:"high"`
	Low      float64   `parquet:"low"`
	Close    float64   `parquet:"close"`
	AdjClose float64   `parquet:"adj_close"`
	Volume   int64     `parquet:"volume"`
}

func toRows(bars []model.ProductBar) []Row {
	rows := make([]Row, len(bars))
	for i, pb := range bars {
		b := pb.Bar
		rows[i] = Row{
			Symbol:   pb.Symbol,
			Date:     b.Date,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		}
	}
	return rows
}

// Export writes the g bars of symbol (all products when empty) to path and
// returns the row count.
func Export(ctx context.Context, store BarLister, g model.Granularity, symbol, path string) (int, error) {
	bars, err := store.ListBars(ctx, g, symbol)
	if err != nil {
		return 0, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := parquet.WriteFile(path, toRows(bars)); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(bars), nil
}
