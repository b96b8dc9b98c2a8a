package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitewatch/internal/monitor"
)

func TestNewLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{MaxParallel: -1}, nil); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	b, err := New(Config{MaxParallel: 2}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, cap(b.limiter))
	require.Equal(t, defaultNavigationTimeout, b.cfg.NavigationTimeout)
}

func TestAllocatorOptionsExecPath(t *testing.T) {
	t.Parallel()

	plain, err := New(Config{}, nil)
	require.NoError(t, err)
	custom, err := New(Config{ExecPath: "/usr/bin/chromium"}, nil)
	require.NoError(t, err)
	require.Len(t, custom.allocatorOptions(), len(plain.allocatorOptions())+1)
}

func TestLaunchHonorsCanceledSlotWait(t *testing.T) {
	t.Parallel()

	b, err := New(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	b.limiter <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Launch(ctx, monitor.ProfileFor(monitor.DeviceDesktop))
	require.ErrorIs(t, err, context.Canceled)
}

func TestPageEventsWaitIdle(t *testing.T) {
	t.Parallel()

	events := newPageEvents()
	loader := cdp.LoaderID("loader-1")

	done := make(chan error, 1)
	go func() {
		done <- events.waitIdle(context.Background(), loader)
	}()

	events.handle(&page.EventLifecycleEvent{Name: "load", LoaderID: loader})
	events.handle(&page.EventLifecycleEvent{Name: lifecycleNetworkIdle, LoaderID: "other"})
	select {
	case err := <-done:
		t.Fatalf("waitIdle returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	events.handle(&page.EventLifecycleEvent{Name: lifecycleNetworkIdle, LoaderID: loader})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitIdle did not observe networkIdle")
	}
}

func TestPageEventsWaitIdleTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := newPageEvents().waitIdle(ctx, "never")
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPageEventsDocument(t *testing.T) {
	t.Parallel()

	events := newPageEvents()
	events.handle(&network.EventResponseReceived{
		LoaderID: "main",
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 503, URL: "https://example.com/final"},
	})
	events.handle(&network.EventResponseReceived{
		LoaderID: "main",
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.com/logo.png"},
	})

	got := events.document("main", "https://example.com")
	require.Equal(t, monitor.Response{URL: "https://example.com/final", StatusCode: 503}, got)

	fallback := events.document("missing", "https://example.com")
	require.Equal(t, monitor.Response{URL: "https://example.com", StatusCode: http.StatusOK}, fallback)
}

func TestNavigationFailureMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		errorText string
		wantNav   bool
	}{
		{name: "no error", errorText: ""},
		{name: "empty error document", errorText: errHTTPResponseCode},
		{name: "dns failure", errorText: "net::ERR_NAME_NOT_RESOLVED", wantNav: true},
		{name: "refused", errorText: "net::ERR_CONNECTION_REFUSED", wantNav: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := navigationFailure("https://example.com", tc.errorText)
			if !tc.wantNav {
				require.NoError(t, err)
				return
			}
			var navErr *monitor.NavigationError
			require.ErrorAs(t, err, &navErr)
			require.Equal(t, tc.errorText, navErr.Reason)
		})
	}
}

func TestPageEventsWaitResponseForEmptyErrorDocument(t *testing.T) {
	t.Parallel()

	events := newPageEvents()
	loader := cdp.LoaderID("loader-500")

	done := make(chan error, 1)
	go func() {
		done <- events.waitResponse(context.Background(), loader)
	}()

	events.handle(&network.EventResponseReceived{
		LoaderID: loader,
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 500, URL: "https://example.com/"},
	})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waitResponse did not observe the document response")
	}

	resp, ok := events.response(loader)
	require.True(t, ok)
	require.Equal(t, monitor.Response{URL: "https://example.com/", StatusCode: 500}, resp)
	require.Equal(t, monitor.DownStatus("500"), monitor.Classify(resp.StatusCode, "", "Welcome"))

	_, ok = events.response("missing")
	require.False(t, ok)
}
