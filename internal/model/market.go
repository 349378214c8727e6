package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidGranularity is returned for any period code other than d, w or m.
var ErrInvalidGranularity = errors.New("invalid granularity")

// Granularity is the bucketing period of a bar series.
type Granularity string

const (
	Day   Granularity = "d"
	Week  Granularity = "w"
	Month Granularity = "m"
)

// DateLayout is the on-wire and on-disk date format of a bar.
const DateLayout = "2006-01-02"

// FirstTradeDate is the fetch start for products that have no bars yet.
var FirstTradeDate = time.Date(1991, time.January, 1, 0, 0, 0, 0, time.UTC)

// ParseGranularity maps a single period code to a Granularity.
func ParseGranularity(code string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(code))); g {
	case Day, Week, Month:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, code)
	}
}

// ParseGranularities expands a code string like "mwd" in order.
// Repeated codes are kept once, at their first position.
func ParseGranularities(codes string) ([]Granularity, error) {
	var out []Granularity
	seen := make(map[Granularity]bool, 3)
	for _, c := range codes {
		g, err := ParseGranularity(string(c))
		if err != nil {
			return nil, err
		}
		if seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty period list", ErrInvalidGranularity)
	}
	return out, nil
}

// Table returns the bar store table holding this granularity.
func (g Granularity) Table() string {
	return "ohlc_" + string(g)
}

func (g Granularity) String() string {
	switch g {
	case Day:
		return "daily"
	case Week:
		return "weekly"
	case Month:
		return "monthly"
	default:
		return string(g)
	}
}

// Bar is one OHLCV record. For weekly and monthly series Date is the
// period's representative day as reported by the provider.
type Bar struct {
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64
}

// ProductBar pairs a bar with the symbol of the product it belongs to.
type ProductBar struct {
	Symbol string
	Bar    Bar
}
