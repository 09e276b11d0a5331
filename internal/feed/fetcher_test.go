package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-catalog/internal/apperr"
	"github.com/javajoker/partner-catalog/internal/config"
)

func testFeedConfig() config.FeedConfig {
	return config.FeedConfig{
		FetchTimeout: 2 * time.Second,
		MaxBytes:     1 << 20,
		UserAgent:    "partner-catalog-test",
	}
}

func TestHTTPFetcherReturnsBody(t *testing.T) {
	uaCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uaCh <- r.Header.Get("User-Agent")
		w.Write([]byte(acmeFeed))
	}))
	defer srv.Close()

	body, err := NewHTTPFetcher(testFeedConfig()).Fetch(context.Background(), srv.URL+"/feed.yaml")
	require.NoError(t, err)
	assert.Equal(t, acmeFeed, string(body))
	assert.Equal(t, "partner-catalog-test", <-uaCh)
}

func TestHTTPFetcherNon2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(testFeedConfig()).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFetch, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPFetcherTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cfg := testFeedConfig()
	cfg.FetchTimeout = 100 * time.Millisecond

	_, err := NewHTTPFetcher(cfg).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFetch, apperr.KindOf(err))
}

func TestHTTPFetcherUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPFetcher(testFeedConfig()).Fetch(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFetch, apperr.KindOf(err))
}

func TestHTTPFetcherRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	cfg := testFeedConfig()
	cfg.MaxBytes = 1024

	_, err := NewHTTPFetcher(cfg).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindFetch, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "exceeds")
}
