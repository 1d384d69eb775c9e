// Package source acquires the raw OWID COVID-19 dataset: HTTP download
// with retries, falling back to a local CSV copy when the network is out.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jonnathanguaman/covidpipeline/internal/domain/table"
)

// RawTableName identifies the raw dataset as a check target.
const RawTableName = "datos_owid"

const (
	defaultURL          = "https://covid.ourworldindata.org/data/owid-covid-data.csv"
	defaultFallbackFile = "covid.csv"
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryWait    = 2 * time.Second
	defaultUserAgent    = "covidpipeline/0.1"
)

// Fetcher produces the raw dataset table. Implementations outside this
// package (tests, alternative sources) only need this contract.
type Fetcher interface {
	Fetch(ctx context.Context) (*table.Table, error)
}

// OWID fetches the Our World in Data CSV over HTTP.
type OWID struct {
	url          string
	fallbackFile string
	client       *http.Client
	maxRetries   int
	retryWait    time.Duration
	userAgent    string
}

// Option applies a configuration option to the OWID fetcher.
type Option func(*OWID)

// WithURL overrides the dataset URL.
func WithURL(url string) Option {
	return func(o *OWID) {
		if url != "" {
			o.url = url
		}
	}
}

// WithFallbackFile sets the local CSV used when every download attempt fails.
func WithFallbackFile(path string) Option {
	return func(o *OWID) {
		if path != "" {
			o.fallbackFile = path
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *OWID) {
		if d > 0 {
			o.client.Timeout = d
		}
	}
}

// WithMaxRetries sets how many download attempts are made.
func WithMaxRetries(n int) Option {
	return func(o *OWID) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryWait sets the base wait between attempts.
func WithRetryWait(d time.Duration) Option {
	return func(o *OWID) {
		if d > 0 {
			o.retryWait = d
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *OWID) {
		if c != nil {
			o.client = c
		}
	}
}

// NewOWID builds a fetcher with default configuration.
func NewOWID(opts ...Option) *OWID {
	o := &OWID{
		url:          defaultURL,
		fallbackFile: defaultFallbackFile,
		client:       &http.Client{Timeout: defaultTimeout},
		maxRetries:   defaultMaxRetries,
		retryWait:    defaultRetryWait,
		userAgent:    defaultUserAgent,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fetch downloads the dataset, retrying with linear backoff, and decodes it
// into the raw table. When every attempt fails it reads the local fallback
// file; ErrNoData wraps the last download error when both paths fail.
func (o *OWID) Fetch(ctx context.Context) (*table.Table, error) {
	var lastErr error
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		t, err := o.download(ctx)
		if err == nil {
			return t, nil
		}
		lastErr = err
		if attempt < o.maxRetries {
			wait := time.Duration(attempt) * o.retryWait
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	t, err := o.readFallback()
	if err != nil {
		return nil, fmt.Errorf("%w: download failed (%v) and fallback failed (%v)",
			ErrNoData, lastErr, err)
	}
	return t, nil
}

func (o *OWID) download(ctx context.Context) (*table.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", o.userAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", o.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d from %s", ErrBadStatus, resp.StatusCode, o.url)
	}
	return DecodeCSV(RawTableName, resp.Body)
}

func (o *OWID) readFallback() (*table.Table, error) {
	f, err := os.Open(o.fallbackFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCSV(RawTableName, f)
}
