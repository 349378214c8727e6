package collector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PriceHistory/internal/model"
)

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("malformed price history")

// Columns of one history row, in provider order.
const (
	colDate = iota
	colOpen
	colHigh
	colLow
	colClose
	colVolume
	colAdjClose
	numColumns
)

// ParseError reports the first row that could not be decoded.
type ParseError struct {
	Line   int // 1-based line in the raw response
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: line %d: %s: %q", ErrParse, e.Line, e.Reason, e.Text)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// ParseBars decodes a newest-first CSV history into bars ordered oldest
// first. The header, the newest row (often provisional) and the oldest row
// (the start date, already stored) are dropped. A response of fewer than
// three lines yields no bars. Any malformed row fails the whole parse.
func ParseBars(raw string) ([]model.Bar, int, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) < 3 {
		return nil, 0, nil
	}
	// lines[i] is at raw line i+1
	body := lines[2 : len(lines)-1]

	bars := make([]model.Bar, 0, len(body))
	for i := len(body) - 1; i >= 0; i-- {
		bar, err := parseRow(strings.TrimRight(body[i], "\r"))
		if err != nil {
			err.Line = i + 3
			return nil, 0, err
		}
		bars = append(bars, bar)
	}
	return bars, len(bars), nil
}

func parseRow(line string) (model.Bar, *ParseError) {
	fields := strings.Split(line, ",")
	if len(fields) != numColumns {
		return model.Bar{}, &ParseError{Text: line, Reason: fmt.Sprintf("want %d columns, got %d", numColumns, len(fields))}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	date, err := time.Parse(model.DateLayout, fields[colDate])
	if err != nil {
		return model.Bar{}, &ParseError{Text: line, Reason: "bad date"}
	}

	var prices [5]float64
	for i, col := range []int{colOpen, colHigh, colLow, colClose, colAdjClose} {
		v, err := strconv.ParseFloat(fields[col], 64)
		if err != nil {
			return model.Bar{}, &ParseError{Text: line, Reason: fmt.Sprintf("bad number in column %d", col+1)}
		}
		prices[i] = v
	}

	volume, err := strconv.ParseInt(fields[colVolume], 10, 64)
	if err != nil {
		return model.Bar{}, &ParseError{Text: line, Reason: "bad volume"}
	}

	return model.Bar{
		Date:     date,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		AdjClose: prices[4],
		Volume:   volume,
	}, nil
}
