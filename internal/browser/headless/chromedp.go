// Package headless drives headless Chrome through chromedp. Every Launch
// starts its own browser process so probes never share cookies, cache or
// storage.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	screenshotQuality        = 100
	lifecycleNetworkIdle     = "networkIdle"

	// errHTTPResponseCode is what Chrome reports for a 4xx/5xx document with
	// an empty body. A response exists, so the page is still classified.
	errHTTPResponseCode = "net::ERR_HTTP_RESPONSE_CODE_FAILURE"
)

// Config controls the behavior of the headless browser.
type Config struct {
	// MaxParallel caps concurrently open sessions. Zero means unbounded.
	MaxParallel int
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// NavigationTimeout bounds navigation plus the network idle wait.
	NavigationTimeout time.Duration
}

// Browser implements monitor.Browser using chromedp.
type Browser struct {
	cfg     Config
	limiter chan struct{}
	logger  *zap.Logger
}

// New creates a headless browser launcher.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Browser{cfg: cfg, limiter: limiter, logger: logger.Named("headless")}, nil
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	return opts
}

// Launch starts an isolated browser configured for profile. The returned
// session holds a parallelism slot until Close.
func (b *Browser) Launch(ctx context.Context, profile monitor.DeviceProfile) (monitor.Session, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:     taskCtx,
		timeout: b.cfg.NavigationTimeout,
		events:  newPageEvents(),
		logger:  b.logger.With(zap.String("device", string(profile.Device))),
		closeFn: func() {
			taskCancel()
			allocCancel()
			b.release()
		},
	}
	chromedp.ListenTarget(taskCtx, s.events.handle)

	// The first Run allocates the browser, so it must use the session
	// context itself. The caller's context aborts it through AfterFunc.
	stop := context.AfterFunc(ctx, taskCancel)
	err := chromedp.Run(taskCtx, setupAction(profile))
	stop()
	if err != nil {
		_ = s.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("launch browser: %w", ctx.Err())
		}
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return s, nil
}

func setupAction(profile monitor.DeviceProfile) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable page domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		var viewportOpts []chromedp.EmulateViewportOption
		if profile.Mobile {
			viewportOpts = append(viewportOpts, chromedp.EmulateMobile)
		}
		if err := chromedp.EmulateViewport(profile.Width, profile.Height, viewportOpts...).Do(ctx); err != nil {
			return fmt.Errorf("emulate viewport: %w", err)
		}
		if profile.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(profile.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// Session is one browser process with a single tab.
type Session struct {
	ctx     context.Context
	timeout time.Duration
	events  *pageEvents
	logger  *zap.Logger

	closeOnce sync.Once
	closeFn   func()
}

// Navigate loads url and waits until the network has been idle. Navigation
// errors reported by the browser come back as *monitor.NavigationError.
func (s *Session) Navigate(ctx context.Context, url string) (monitor.Response, error) {
	var (
		loaderID    cdp.LoaderID
		codeFailure bool
	)
	err := s.run(ctx, s.timeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		loaderID = res.LoaderID
		codeFailure = res.ErrorText == errHTTPResponseCode
		if err := navigationFailure(url, res.ErrorText); err != nil {
			return err
		}
		if codeFailure {
			return s.events.waitResponse(ctx, loaderID)
		}
		return s.events.waitIdle(ctx, loaderID)
	}))
	if err != nil {
		return monitor.Response{}, err
	}

	if codeFailure {
		resp, ok := s.events.response(loaderID)
		if !ok {
			return monitor.Response{}, &monitor.NavigationError{URL: url, Reason: errHTTPResponseCode}
		}
		s.logger.Debug("navigation returned an empty error document",
			zap.String("url", resp.URL),
			zap.Int("status", resp.StatusCode),
		)
		return resp, nil
	}

	resp := s.events.document(loaderID, url)
	s.logger.Debug("navigation settled",
		zap.String("url", resp.URL),
		zap.Int("status", resp.StatusCode),
	)
	return resp, nil
}

// Content returns the rendered DOM.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return html, nil
}

// Screenshot captures the full scrollable page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, 0, chromedp.FullScreenshot(&buf, screenshotQuality)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close terminates the browser process and frees the parallelism slot.
func (s *Session) Close() error {
	s.closeOnce.Do(s.closeFn)
	return nil
}

// run executes actions on the session tab bounded by the caller's context
// and an optional timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// navigationFailure maps the browser's navigation error text to an error.
// Empty text and the HTTP status failure both mean a document was received.
func navigationFailure(url, errorText string) error {
	if errorText == "" || errorText == errHTTPResponseCode {
		return nil
	}
	return &monitor.NavigationError{URL: url, Reason: errorText}
}

// pageEvents tracks lifecycle and document responses per loader.
type pageEvents struct {
	mu      sync.Mutex
	idle    map[cdp.LoaderID]bool
	docs    map[cdp.LoaderID]monitor.Response
	changed chan struct{}
}

func newPageEvents() *pageEvents {
	return &pageEvents{
		idle:    make(map[cdp.LoaderID]bool),
		docs:    make(map[cdp.LoaderID]monitor.Response),
		changed: make(chan struct{}),
	}
}

// handle runs on the chromedp event goroutine and must not block.
func (p *pageEvents) handle(ev any) {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		if e.Name != lifecycleNetworkIdle {
			return
		}
		p.mu.Lock()
		p.idle[e.LoaderID] = true
		p.signalLocked()
		p.mu.Unlock()
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		p.mu.Lock()
		p.docs[e.LoaderID] = monitor.Response{URL: e.Response.URL, StatusCode: int(e.Response.Status)}
		p.signalLocked()
		p.mu.Unlock()
	}
}

func (p *pageEvents) signalLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *pageEvents) waitIdle(ctx context.Context, loaderID cdp.LoaderID) error {
	return p.wait(ctx, "network idle", func() bool { return p.idle[loaderID] })
}

// waitResponse returns once the document response for loaderID is known or
// the loader went idle without one.
func (p *pageEvents) waitResponse(ctx context.Context, loaderID cdp.LoaderID) error {
	return p.wait(ctx, "document response", func() bool {
		_, ok := p.docs[loaderID]
		return ok || p.idle[loaderID]
	})
}

// wait blocks until done, evaluated under p.mu, reports true.
func (p *pageEvents) wait(ctx context.Context, what string, done func() bool) error {
	for {
		p.mu.Lock()
		if done() {
			p.mu.Unlock()
			return nil
		}
		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", what, ctx.Err())
		}
	}
}

// response returns the recorded document response for loaderID.
func (p *pageEvents) response(loaderID cdp.LoaderID) (monitor.Response, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	resp, ok := p.docs[loaderID]
	return resp, ok
}

// document returns the main document response for loaderID, falling back to
// the requested URL and 200 when the browser never reported one.
func (p *pageEvents) document(loaderID cdp.LoaderID, requestURL string) monitor.Response {
	p.mu.Lock()
	resp, ok := p.docs[loaderID]
	p.mu.Unlock()
	if !ok {
		resp = monitor.Response{}
	}
	if resp.URL == "" {
		resp.URL = requestURL
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	return resp
}
