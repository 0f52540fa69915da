package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "pingmon/pkg/errors"
)

// FetcherConfig tunes downloads of remote device lists.
type FetcherConfig struct {
	UserAgent  string
	Timeout    time.Duration // per attempt
	MaxRetries int
	RetryDelay time.Duration // grows linearly with the attempt number
	MaxBytes   int64         // larger bodies are rejected; 0 means no limit
}

// DefaultFetcherConfig suits an inventory export served by an intranet host.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:  "pingmon/1.0",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		MaxBytes:   32 << 20,
	}
}

// Fetcher downloads remote import sources.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

// Fetch returns the body of url. Transport failures and 5xx answers are
// retried; 4xx answers are not.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var err error
	for attempt := 0; ; attempt++ {
		var body []byte
		body, err = f.get(ctx, url)
		if err == nil {
			return body, nil
		}
		if attempt >= f.cfg.MaxRetries || ctx.Err() != nil || !retryable(err) {
			break
		}

		wait := time.NewTimer(f.cfg.RetryDelay * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, ctx.Err()
		case <-wait.C:
		}
	}
	return nil, fmt.Errorf("%w: %w", pkgerrors.ErrImportFetch, err)
}

func retryable(err error) bool {
	var statusErr *HTTPError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	r := io.Reader(resp.Body)
	if f.cfg.MaxBytes > 0 {
		r = io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.cfg.MaxBytes > 0 && int64(len(body)) > f.cfg.MaxBytes {
		return nil, fmt.Errorf("response larger than %d bytes", f.cfg.MaxBytes)
	}
	return body, nil
}

// HTTPError is a non-200 answer from the import host.
type HTTPError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}
