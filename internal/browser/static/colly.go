// Package static implements monitor.Browser with plain HTTP fetches through
// colly. It does not execute JavaScript and cannot take screenshots; it is
// the probe mode for hosts without Chrome.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
}

// Browser hands out colly-backed sessions sharing one pooled transport.
type Browser struct {
	cfg       Config
	transport http.RoundTripper
}

// New builds a Browser.
func New(cfg Config) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Browser{cfg: cfg, transport: newHTTPTransport()}
}

// Launch returns a session carrying the profile's user agent. Viewport
// dimensions have no meaning without rendering.
func (b *Browser) Launch(ctx context.Context, profile monitor.DeviceProfile) (monitor.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch static session: %w", err)
	}
	return &Session{browser: b, userAgent: profile.UserAgent}, nil
}

// Session holds the last fetched document.
type Session struct {
	browser   *Browser
	userAgent string

	mu   sync.Mutex
	body string
}

func (s *Session) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(s.browser.transport)
	c.SetRequestTimeout(s.browser.cfg.Timeout)
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	if s.userAgent != "" {
		c.UserAgent = s.userAgent
	}
	return c
}

// Navigate performs a GET of url. Transport failures, where no response was
// received at all, surface as *monitor.NavigationError.
func (s *Session) Navigate(ctx context.Context, url string) (monitor.Response, error) {
	var (
		resp     monitor.Response
		body     []byte
		fetchErr error
	)
	c := s.newCollector()
	c.OnResponse(func(r *colly.Response) {
		resp = monitor.Response{URL: r.Request.URL.String(), StatusCode: r.StatusCode}
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			resp = monitor.Response{URL: r.Request.URL.String(), StatusCode: r.StatusCode}
			body = append([]byte(nil), r.Body...)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return monitor.Response{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr == nil && err != nil && resp.StatusCode == 0 {
			fetchErr = err
		}
		if fetchErr != nil {
			return monitor.Response{}, &monitor.NavigationError{URL: url, Reason: fetchErr.Error()}
		}
	}

	s.mu.Lock()
	s.body = string(body)
	s.mu.Unlock()
	return resp, nil
}

// Content returns the raw body of the last navigation.
func (s *Session) Content(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body, nil
}

// Screenshot is not supported without a renderer.
func (s *Session) Screenshot(context.Context) ([]byte, error) {
	return nil, monitor.ErrScreenshotUnsupported
}

// Close is a no-op; the transport is shared.
func (s *Session) Close() error {
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
