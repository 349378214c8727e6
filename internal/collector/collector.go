package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceHistory/internal/model"
)

// MockFetcher returns controllable canned responses for development and
// testing. Errors are replayed in order per symbol and the last entry
// repeats; a nil entry falls through to Responses.
type MockFetcher struct {
	mu        sync.Mutex
	Responses map[string]string
	Errors    map[string][]error
	Calls     []string
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchHistory(_ context.Context, symbol string, _ time.Time, _ model.Granularity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, symbol)
	if errs := m.Errors[symbol]; len(errs) > 0 {
		err := errs[0]
		if len(errs) > 1 {
			m.Errors[symbol] = errs[1:]
		}
		if err != nil {
			return "", err
		}
	}
	return m.Responses[symbol], nil
}

// CallCount returns how many times symbol was requested.
func (m *MockFetcher) CallCount(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.Calls {
		if s == symbol {
			n++
		}
	}
	return n
}

// Collector fetches and decodes the missing history of one product.
type Collector struct {
	Fetcher Fetcher
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher) *Collector {
	return &Collector{Fetcher: fetcher}
}

// Collect downloads bars of granularity g newer than ref's last stored
// date. Fetch failures are returned unchanged; a malformed body yields an
// error wrapping ErrParse.
func (c *Collector) Collect(ctx context.Context, ref model.ProductRef, g model.Granularity) ([]model.Bar, error) {
	raw, err := c.Fetcher.FetchHistory(ctx, ref.ProviderSymbol(), ref.StartDate(), g)
	if err != nil {
		return nil, err
	}
	bars, _, err := ParseBars(raw)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", ref.Symbol, g, err)
	}
	return bars, nil
}
