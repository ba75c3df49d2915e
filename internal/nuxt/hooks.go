package nuxt

import (
	"context"
	"fmt"
	"sync"
)

// Hook names called by the framework.
const (
	HookReady       = "ready"
	HookListen      = "listen"
	HookRenderRoute = "render:route"
	HookClose       = "close"
	HookError       = "error"
)

// HookFunc handles a named lifecycle event. The arguments depend on the hook:
//
//	ready         (none)
//	listen        *http.Server, url string
//	render:route  url string, renderer.Result
//	close         (none)
//	error         error
type HookFunc func(ctx context.Context, args ...any) error

type hookable struct {
	mu    sync.RWMutex
	hooks map[string][]HookFunc
}

func newHookable() *hookable {
	return &hookable{hooks: make(map[string][]HookFunc)}
}

func (h *hookable) add(name string, fn HookFunc) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[name] = append(h.hooks[name], fn)
}

// call runs the handlers for name in registration order, stopping at the
// first error.
func (h *hookable) call(ctx context.Context, name string, args ...any) error {
	h.mu.RLock()
	fns := append([]HookFunc(nil), h.hooks[name]...)
	h.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, args...); err != nil {
			return fmt.Errorf("hook %s: %w", name, err)
		}
	}
	return nil
}
