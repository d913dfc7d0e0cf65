package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/marginalia-labs/marginalia/internal/common"
	"github.com/marginalia-labs/marginalia/internal/config"
)

// FetchErrorKind buckets fetch failures; all are non-fatal to the
// ingestion orchestrator.
type FetchErrorKind string

const (
	FetchErrUnreachable FetchErrorKind = "Unreachable"
	FetchErrTimeout     FetchErrorKind = "Timeout"
	FetchErrTooLarge    FetchErrorKind = "TooLarge"
	FetchErrBadStatus   FetchErrorKind = "BadStatus"
	FetchErrNotHTML     FetchErrorKind = "NotHtml"
)

// FetchError is the typed failure returned by the fetcher.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	cause      error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchErrBadStatus {
		return fmt.Sprintf("fetch: bad status %d", e.StatusCode)
	}
	if e.cause != nil {
		return fmt.Sprintf("fetch: %s: %v", e.Kind, e.cause)
	}
	return fmt.Sprintf("fetch: %s", e.Kind)
}

func (e *FetchError) Unwrap() error { return e.cause }

// FetchResult is the successful output of a page fetch.
type FetchResult struct {
	HTML        string
	FinalURL    string
	ContentType string
}

const maxRedirects = 5

// FetchService retrieves HTML for a URL with bounded time and size,
// with an optional headless-render fallback for JS-gated pages.
type FetchService struct {
	cfg    config.FetchConfig
	client *http.Client
}

// NewFetchService builds the fetcher from config.
func NewFetchService(cfg *config.Config) *FetchService {
	fc := cfg.Fetch
	dialer := &net.Dialer{Timeout: fc.ConnectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: fc.ConnectTimeout,
		// Cookies are deliberately not persisted: each fetch is stateless.
		DisableKeepAlives: false,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   fc.TotalTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &FetchService{cfg: fc, client: client}
}

// Fetch performs a plain GET of url, enforcing the redirect cap, timeouts,
// size ceiling and a text content type.
func (s *FetchService) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TotalTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrUnreachable, cause: err}
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,zh-CN;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &FetchError{Kind: FetchErrTimeout, cause: err}
		}
		return nil, &FetchError{Kind: FetchErrUnreachable, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{Kind: FetchErrBadStatus, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextContentType(contentType) {
		return nil, &FetchError{Kind: FetchErrNotHTML}
	}
	if resp.ContentLength > s.cfg.MaxBytes {
		return nil, &FetchError{Kind: FetchErrTooLarge}
	}

	// Read one byte past the ceiling so truncated-at-exactly-limit bodies
	// are distinguishable from oversize ones.
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &FetchError{Kind: FetchErrTimeout, cause: err}
		}
		return nil, &FetchError{Kind: FetchErrUnreachable, cause: err}
	}
	if int64(len(body)) > s.cfg.MaxBytes {
		return nil, &FetchError{Kind: FetchErrTooLarge}
	}

	return &FetchResult{
		HTML:        string(body),
		FinalURL:    resp.Request.URL.String(),
		ContentType: contentType,
	}, nil
}

// renderThresholdChars is the extracted-text floor below which a page is
// treated as JS-gated and retried through the headless renderer.
const renderThresholdChars = 200

// FetchRendered retrieves url through headless Chrome, used as a fallback
// when the plain fetch produced implausibly little extractable text
// Bounded by the same total timeout budget as the plain fetch.
func (s *FetchService) FetchRendered(ctx context.Context, url string) (*FetchResult, error) {
	if !s.cfg.RenderFallback {
		return nil, &FetchError{Kind: FetchErrUnreachable, cause: errors.New("render fallback disabled")}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TotalTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(s.cfg.UserAgent),
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &FetchError{Kind: FetchErrTimeout, cause: err}
		}
		return nil, &FetchError{Kind: FetchErrUnreachable, cause: err}
	}
	if int64(len(html)) > s.cfg.MaxBytes {
		return nil, &FetchError{Kind: FetchErrTooLarge}
	}
	common.PipelineInfo(ctx, "Fetch", "render_fallback", map[string]interface{}{
		"url": url, "html_len": len(html),
	})
	return &FetchResult{HTML: html, FinalURL: url, ContentType: "text/html"}, nil
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isTextContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch ct {
	case "", "text/html", "application/xhtml+xml", "text/plain", "application/xml", "text/xml":
		return true
	}
	return strings.HasPrefix(ct, "text/")
}
