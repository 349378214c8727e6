package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"PriceHistory/internal/model"
)

const (
	DefaultYahooURL     = "http://ichart.finance.yahoo.com/table.csv"
	DefaultFetchTimeout = 10 * time.Second
	defaultUserAgent    = "Mozilla/5.0"
)

// YahooFetcher implements Fetcher against the Yahoo table.csv export.
type YahooFetcher struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	limiter   *rate.Limiter
}

// YahooOption configures a YahooFetcher.
type YahooOption func(*YahooFetcher)

// WithBaseURL points the fetcher at another export endpoint.
func WithBaseURL(u string) YahooOption {
	return func(f *YahooFetcher) {
		if u != "" {
			f.BaseURL = u
		}
	}
}

// WithTimeout bounds connect plus read time of a single request.
func WithTimeout(d time.Duration) YahooOption {
	return func(f *YahooFetcher) {
		if d > 0 {
			f.Client.Timeout = d
		}
	}
}

// WithRateLimit caps requests per second. Zero disables the limiter.
func WithRateLimit(perSecond float64) YahooOption {
	return func(f *YahooFetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) YahooOption {
	return func(f *YahooFetcher) {
		if ua != "" {
			f.UserAgent = ua
		}
	}
}

// NewYahooFetcher creates a fetcher with optional proxy support.
func NewYahooFetcher(proxyURL string, opts ...YahooOption) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	f := &YahooFetcher{
		BaseURL:   DefaultYahooURL,
		UserAgent: defaultUserAgent,
		Client: &http.Client{
			Timeout:   DefaultFetchTimeout,
			Transport: transport,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// HistoryURL builds the export request for symbol from start onwards.
// The month parameter is zero-based.
func (f *YahooFetcher) HistoryURL(symbol string, start time.Time, g model.Granularity) string {
	q := url.Values{}
	q.Set("s", symbol)
	q.Set("a", strconv.Itoa(int(start.Month())-1))
	q.Set("b", strconv.Itoa(start.Day()))
	q.Set("c", strconv.Itoa(start.Year()))
	q.Set("g", string(g))
	q.Set("ignore", ".csv")
	return f.BaseURL + "?" + q.Encode()
}

func (f *YahooFetcher) FetchHistory(ctx context.Context, symbol string, start time.Time, g model.Granularity) (string, error) {
	u := f.HistoryURL(symbol, start, g)
	fail := func(kind FailureKind, err error) error {
		return &FetchError{Kind: kind, Symbol: symbol, URL: u, Err: err}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fail(Fatal, err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if isTransportError(err) {
			return "", fail(Transient, err)
		}
		return "", fail(Fatal, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if isTransportError(err) {
			return "", fail(Transient, fmt.Errorf("read body: %w", err))
		}
		return "", fail(Fatal, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fail(Transient, fmt.Errorf("status %d", resp.StatusCode))
	}
	return string(body), nil
}

// isTransportError reports DNS, connection and timeout failures.
func isTransportError(err error) bool {
	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, os.ErrDeadlineExceeded):
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
