package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceHistory/internal/model"
)

// Fetcher downloads raw price history for one symbol.
type Fetcher interface {
	// FetchHistory returns the provider's tabular response for every bar of
	// granularity g from start until now. Failures are *FetchError values.
	FetchHistory(ctx context.Context, symbol string, start time.Time, g model.Granularity) (string, error)
	Name() string
}

// FailureKind separates failures worth retrying from those that need an
// operator.
type FailureKind int

const (
	// Transient covers DNS failures, refused or reset connections, timeouts
	// and non-200 responses.
	Transient FailureKind = iota + 1
	// Fatal is anything the fetcher could not classify.
	Fatal
)

func (k FailureKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure returned by a Fetcher.
type FetchError struct {
	Kind   FailureKind
	Symbol string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a FetchError that may succeed on retry.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Transient
}

// IsFatal reports whether err is a FetchError that must not be retried.
func IsFatal(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Fatal
}
