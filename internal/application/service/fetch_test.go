package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchServiceForTest(maxBytes int64) *FetchService {
	cfg := &config.Config{}
	cfg.Fetch = config.FetchConfig{
		Enabled:        true,
		ConnectTimeout: 2 * time.Second,
		TotalTimeout:   5 * time.Second,
		MaxBytes:       maxBytes,
		UserAgent:      "test-agent",
	}
	return NewFetchService(cfg)
}

func TestFetchHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	result, err := fetchServiceForTest(1 << 20).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, result.HTML, "hello")
	assert.Equal(t, "text/html; charset=utf-8", result.ContentType)
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := fetchServiceForTest(1 << 20).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FetchErrBadStatus, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetchNotHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := fetchServiceForTest(1 << 20).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FetchErrNotHTML, fe.Kind)
}

func TestFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	_, err := fetchServiceForTest(1024).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FetchErrTooLarge, fe.Kind)
}

func TestFetchUnreachable(t *testing.T) {
	_, err := fetchServiceForTest(1 << 20).Fetch(context.Background(), "http://127.0.0.1:1")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, []FetchErrorKind{FetchErrUnreachable, FetchErrTimeout}, fe.Kind)
}

func TestFetchFollowsRedirectsUpToCap(t *testing.T) {
	hops := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hops < 3 {
			hops++
			http.Redirect(w, r, srv.URL, http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>final</html>"))
	}))
	defer srv.Close()

	result, err := fetchServiceForTest(1 << 20).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, result.HTML, "final")
}

func TestIsTextContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"", true},
		{"application/pdf", false},
		{"image/png", false},
		{"application/octet-stream", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, isTextContentType(tt.contentType))
		})
	}
}
