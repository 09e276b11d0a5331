// internal/feed/fetcher.go
package feed

import (
	"context"
	"fmt"
	"io"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-catalog/internal/apperr"
	"github.com/javajoker/partner-catalog/internal/config"
)

// Fetcher retrieves the raw bytes of a remote feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type HTTPFetcher struct {
	client   *resty.Client
	maxBytes int64
}

// NewHTTPFetcher builds a fetcher with a bounded timeout. It never retries;
// resubmitting is the caller's decision.
func NewHTTPFetcher(cfg config.FeedConfig) *HTTPFetcher {
	client := resty.New().
		SetTimeout(cfg.FetchTimeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/x-yaml, text/yaml, text/plain, */*").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetRetryCount(0).
		SetLogger(logrus.StandardLogger())

	return &HTTPFetcher{
		client:   client,
		maxBytes: cfg.MaxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, apperr.Fetch("failed to fetch feed", err)
	}

	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return nil, apperr.Fetch(fmt.Sprintf("unexpected status %d", resp.StatusCode()), nil)
	}

	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, apperr.Fetch("failed to read feed body", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, apperr.Fetch(fmt.Sprintf("feed exceeds %d bytes", f.maxBytes), nil)
	}

	return data, nil
}
