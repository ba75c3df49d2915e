// Package nuxt is the production application server: it loads the build
// output, exposes lifecycle hooks and serves pages over HTTP.
package nuxt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/config"
	"github.com/yamatt/go-nuxt/internal/renderer"
	"github.com/yamatt/go-nuxt/internal/router"
	"github.com/yamatt/go-nuxt/internal/webhook"
)

// ErrAlreadyListening is returned when Listen is called twice.
var ErrAlreadyListening = errors.New("nuxt: already listening")

// Nuxt is a configured application instance.
type Nuxt struct {
	options  *config.Options
	logger   *zap.Logger
	hooks    *hookable
	renderer *renderer.Renderer
	resolver *router.Resolver
	notifier *webhook.Sender

	out         io.Writer
	openBrowser func(url string) error

	readyOnce sync.Once
	readyErr  error

	// bgCtx scopes background work such as the ready webhook; Close cancels it.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	url      string
}

// Option customizes a Nuxt instance.
type Option func(*Nuxt)

// WithOutput sets where the ready banner is printed (default: stdout).
func WithOutput(w io.Writer) Option {
	return func(n *Nuxt) { n.out = w }
}

// WithBrowserOpener replaces the function used by ShowReady to open a browser.
func WithBrowserOpener(fn func(url string) error) Option {
	return func(n *Nuxt) { n.openBrowser = fn }
}

// New creates an application instance. It does not touch the disk or the
// network until Ready or Listen is called.
func New(opts *config.Options, logger *zap.Logger, options ...Option) *Nuxt {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nuxt")
	if opts.Dev {
		logger.Warn("Dev mode is not supported by this server, running in production mode")
		opts.Dev = false
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	n := &Nuxt{
		bgCtx:       bgCtx,
		bgCancel:    bgCancel,
		options:     opts,
		logger:      logger,
		hooks:       newHookable(),
		renderer:    renderer.New(opts, logger),
		notifier:    webhook.NewSender(10*time.Second, logger),
		out:         os.Stdout,
		openBrowser: openBrowser,
	}
	for _, o := range options {
		o(n)
	}
	return n
}

// Options returns the configuration the instance was created with.
func (n *Nuxt) Options() *config.Options {
	return n.options
}

// Hook registers fn to run when the named event fires.
func (n *Nuxt) Hook(name string, fn HookFunc) {
	n.hooks.add(name, fn)
}

// CallHook runs the handlers registered for name.
func (n *Nuxt) CallHook(ctx context.Context, name string, args ...any) error {
	return n.hooks.call(ctx, name, args...)
}

// Ready loads the renderer resources and compiles the route rules. It runs
// once; later calls return the first result.
func (n *Nuxt) Ready(ctx context.Context) error {
	n.readyOnce.Do(func() {
		resolver, err := router.NewResolver(n.options.RouteRules, n.logger)
		if err != nil {
			n.readyErr = fmt.Errorf("failed to compile route rules: %w", err)
			return
		}
		n.resolver = resolver

		if err := n.renderer.Load(); err != nil {
			n.readyErr = fmt.Errorf("failed to load build resources: %w", err)
			return
		}

		n.readyErr = n.CallHook(ctx, HookReady)
	})
	return n.readyErr
}

// Listen binds the configured address and starts serving in the background.
// It returns once the listener is bound. A later serve failure is reported
// through the error hook.
func (n *Nuxt) Listen(ctx context.Context) error {
	if err := n.Ready(ctx); err != nil {
		return err
	}

	n.mu.Lock()
	if n.server != nil {
		n.mu.Unlock()
		return ErrAlreadyListening
	}

	ln, err := listen(n.options.Server)
	if err != nil {
		n.mu.Unlock()
		return err
	}

	srv := &http.Server{
		Handler:           n.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	n.server = srv
	n.listener = ln
	n.url = listenURL(ln.Addr(), n.options.Server, n.options.Router.Base)
	url := n.url
	n.mu.Unlock()

	go func() {
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Error("Server failed unexpectedly", zap.Error(err))
			if hookErr := n.CallHook(context.Background(), HookError, err); hookErr != nil {
				n.logger.Error("Error hook failed", zap.Error(hookErr))
			}
		}
	}()

	n.logger.Debug("Listening", zap.String("url", url), zap.String("addr", ln.Addr().String()))
	if err := n.CallHook(ctx, HookListen, srv, url); err != nil {
		n.mu.Lock()
		n.server = nil
		n.listener = nil
		n.url = ""
		n.mu.Unlock()
		if closeErr := srv.Close(); closeErr != nil {
			n.logger.Warn("Failed to close server after listen hook error", zap.Error(closeErr))
		}
		// Serve may not have taken ownership of the listener yet.
		_ = ln.Close()
		_ = n.removeSocket()
		return err
	}
	return nil
}

// URL returns the address the server listens on, or "" before Listen.
func (n *Nuxt) URL() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url
}

// Addr returns the bound network address, or nil before Listen.
func (n *Nuxt) Addr() net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Close shuts the server down gracefully and runs the close hook.
func (n *Nuxt) Close(ctx context.Context) error {
	n.mu.Lock()
	srv := n.server
	n.server = nil
	n.listener = nil
	n.mu.Unlock()

	n.bgCancel()
	n.bg.Wait()

	var errs []error
	if srv != nil {
		n.logger.Info("Shutting down server")
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown failed: %w", err))
		}
		if err := n.removeSocket(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.CallHook(ctx, HookClose); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (n *Nuxt) removeSocket() error {
	if n.options.Server.Socket == "" {
		return nil
	}
	if err := os.Remove(n.options.Server.Socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
