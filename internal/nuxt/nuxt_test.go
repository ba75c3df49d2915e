package nuxt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamatt/go-nuxt/internal/config"
	"github.com/yamatt/go-nuxt/internal/testutil"
	"github.com/yamatt/go-nuxt/internal/webhook"
)

func newListenOptions(t *testing.T) *config.Options {
	t.Helper()
	opts := config.NewDefault(t.TempDir())
	opts.Server.Host = "127.0.0.1"
	opts.Server.Port = "0"
	testutil.WriteBuild(t, opts.RootDir, testutil.Build{ServerDir: true, SSRBundle: true})
	return opts
}

func TestListenServesAndCloses(t *testing.T) {
	app := New(newListenOptions(t), nil, WithOutput(io.Discard))

	var events []string
	for _, name := range []string{HookReady, HookListen, HookClose} {
		name := name
		app.Hook(name, func(ctx context.Context, args ...any) error {
			events = append(events, name)
			return nil
		})
	}

	require.NoError(t, app.Listen(context.Background()))
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NotNil(t, app.Addr())
	assert.True(t, strings.HasPrefix(app.URL(), "http://127.0.0.1:"), app.URL())

	url := app.URL()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), testutil.HomeMarkup)

	assert.ErrorIs(t, app.Listen(context.Background()), ErrAlreadyListening)

	require.NoError(t, app.Close(context.Background()))
	assert.Equal(t, []string{HookReady, HookListen, HookClose}, events)

	_, err = (&http.Client{Transport: &http.Transport{}}).Get(url)
	assert.Error(t, err, "server should be closed")
}

func TestListenUnixSocket(t *testing.T) {
	opts := newListenOptions(t)
	opts.Server.Socket = filepath.Join(t.TempDir(), "nuxt.sock")

	app := New(opts, nil, WithOutput(io.Discard))
	require.NoError(t, app.Listen(context.Background()))
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	assert.Equal(t, "unix:"+opts.Server.Socket, app.URL())

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", opts.Server.Socket)
		},
	}}
	resp, err := client.Get("http://unix/about")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "<h1>About</h1>")
}

func TestListenFailsWithoutBuild(t *testing.T) {
	opts := config.NewDefault(t.TempDir())
	opts.Server.Port = "0"

	app := New(opts, nil)
	err := app.Listen(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load build resources")
	assert.Nil(t, app.Addr())
}

func TestListenFailsOnInvalidRouteRule(t *testing.T) {
	opts := newListenOptions(t)
	opts.RouteRules = []config.RouteRule{{Name: "broken", Selector: "request.path ==="}}

	err := New(opts, nil).Listen(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route rules")
}

func TestListenHookErrorStopsServer(t *testing.T) {
	app := New(newListenOptions(t), nil)
	var url string
	app.Hook(HookListen, func(ctx context.Context, args ...any) error {
		url = args[1].(string)
		return errors.New("boom")
	})

	err := app.Listen(context.Background())
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Nil(t, app.Addr())
	assert.Empty(t, app.URL())
	require.NotEmpty(t, url)
	_, err = (&http.Client{Transport: &http.Transport{}}).Get(url)
	assert.Error(t, err, "server should not keep serving after the listen hook failed")
}

func TestCallHookRunsInOrderAndStopsAtError(t *testing.T) {
	app := New(config.NewDefault(t.TempDir()), nil)

	var calls []string
	app.Hook("custom", func(ctx context.Context, args ...any) error {
		calls = append(calls, "first:"+args[0].(string))
		return nil
	})
	app.Hook("custom", func(ctx context.Context, args ...any) error {
		calls = append(calls, "second")
		return errors.New("stop")
	})
	app.Hook("custom", func(ctx context.Context, args ...any) error {
		calls = append(calls, "third")
		return nil
	})

	err := app.CallHook(context.Background(), "custom", "arg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook custom: stop")
	assert.Equal(t, []string{"first:arg", "second"}, calls)

	assert.NoError(t, app.CallHook(context.Background(), "unregistered"))
}

func TestNewForcesProduction(t *testing.T) {
	opts := config.NewDefault(t.TempDir())
	opts.Dev = true

	app := New(opts, nil)
	assert.False(t, app.Options().Dev)
}

func TestShowReady(t *testing.T) {
	events := make(chan webhook.ReadyEvent, 1)
	hookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var received webhook.ReadyEvent
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		events <- received
	}))
	defer hookServer.Close()

	opts := newListenOptions(t)
	opts.ReadyWebhook = config.WebhookOptions{URL: hookServer.URL, Method: "POST"}

	var out bytes.Buffer
	var opened []string
	app := New(opts, nil, WithOutput(&out), WithBrowserOpener(func(url string) error {
		opened = append(opened, url)
		return nil
	}))
	require.NoError(t, app.Listen(context.Background()))
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	app.ShowReady(false)

	assert.Contains(t, out.String(), "Listening on")
	assert.Contains(t, out.String(), app.URL())
	assert.Empty(t, opened, "browser must not open when openBrowser is false")

	select {
	case received := <-events:
		assert.Equal(t, "ready", received.Event)
		assert.Equal(t, app.URL(), received.URL)
		assert.True(t, received.SSR)
	case <-time.After(5 * time.Second):
		t.Fatal("ready webhook was not sent")
	}

	app.ShowReady(true)
	assert.Equal(t, []string{app.URL()}, opened)
}

func TestShowReadyDoesNotWaitForWebhook(t *testing.T) {
	cancelled := make(chan struct{})
	hookServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		<-r.Context().Done()
		close(cancelled)
	}))
	defer hookServer.Close()

	opts := newListenOptions(t)
	opts.ReadyWebhook = config.WebhookOptions{URL: hookServer.URL, Method: "POST"}

	app := New(opts, nil, WithOutput(io.Discard))
	require.NoError(t, app.Listen(context.Background()))

	returned := make(chan struct{})
	go func() {
		app.ShowReady(false)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("ShowReady blocked on a hung webhook endpoint")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Close(closeCtx))

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not cancel the pending webhook")
	}
}

func TestListenURL(t *testing.T) {
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: 8080}
	assert.Equal(t, "http://localhost:8080/", listenURL(addr, config.ServerOptions{Host: "0.0.0.0", Port: "0"}, "/"))
	assert.Equal(t, "http://example.local:8080/app/", listenURL(addr, config.ServerOptions{Host: "example.local"}, "/app"))
	assert.Equal(t, "unix:/run/app.sock", listenURL(nil, config.ServerOptions{Socket: "/run/app.sock"}, "/"))
}
