// Package renderer turns build output into HTML pages. Universal mode serves
// the pre-rendered markup from the server bundle; every other request gets
// the client-only shell.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/config"
)

// ErrNotReady is returned by Render before resources have been loaded.
var ErrNotReady = errors.New("renderer: resources not loaded")

const spaRoot = `<div id="__nuxt"></div>`

// RenderContext describes a single page render.
type RenderContext struct {
	// Route is the request path with the router base stripped.
	Route string
	// SSR asks for server-side markup when the bundle has it.
	SSR bool
}

// Result is a rendered page.
type Result struct {
	HTML   string
	Status int
	// Rendered reports whether the page came from the server bundle.
	Rendered bool
}

// Renderer renders pages from loaded build resources.
type Renderer struct {
	distDir       string
	ssr           bool
	resourceHints bool
	publicPath    string
	logger        *zap.Logger

	mu        sync.RWMutex
	resources *Resources
}

// New creates a renderer for the build described by opts.
func New(opts *config.Options, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		distDir:       config.DistDir(opts),
		ssr:           config.SSREnabled(opts),
		resourceHints: opts.Render.ResourceHints,
		publicPath:    PublicPath(opts.Router.Base, opts.Build.PublicPath),
		logger:        logger.Named("renderer"),
	}
}

// PublicPath joins the router base and the build public path unless the
// latter is already a full URL.
func PublicPath(base, publicPath string) string {
	if strings.HasPrefix(publicPath, "http://") || strings.HasPrefix(publicPath, "https://") || strings.HasPrefix(publicPath, "//") {
		return publicPath
	}
	joined := path.Join("/", base, publicPath)
	if !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

// Load reads the build resources from disk.
func (r *Renderer) Load() error {
	res, err := LoadResources(r.distDir, r.ssr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.resources = res
	r.mu.Unlock()

	routes := 0
	if res.Bundle != nil {
		routes = len(res.Bundle.Routes)
	}
	r.logger.Debug("Resources loaded", zap.String("dist_dir", r.distDir), zap.Bool("ssr", r.ssr), zap.Int("routes", routes))
	return nil
}

// SSR reports whether a server bundle is available for rendering.
func (r *Renderer) SSR() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resources != nil && r.resources.Bundle != nil
}

// Render produces the page for rc.
func (r *Renderer) Render(ctx context.Context, rc RenderContext) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	r.mu.RLock()
	res := r.resources
	r.mu.RUnlock()
	if res == nil {
		return Result{}, ErrNotReady
	}

	if rc.SSR && res.Bundle != nil {
		if markup, ok := res.Bundle.Routes[normalizeRoute(rc.Route)]; ok {
			return Result{
				HTML:     r.fill(res.SSRTemplate, res.ClientManifest, markup, `data-n-head-ssr`),
				Status:   http.StatusOK,
				Rendered: true,
			}, nil
		}
		r.logger.Debug("Route not in server bundle, falling back to SPA", zap.String("route", rc.Route))
	}

	return Result{
		HTML:   r.fill(res.SPATemplate, res.ClientManifest, spaRoot, ""),
		Status: http.StatusOK,
	}, nil
}

// fill replaces the template placeholders.
func (r *Renderer) fill(tmpl string, manifest *ClientManifest, app, htmlAttrs string) string {
	publicPath := r.publicPath
	if manifest.PublicPath != "" {
		publicPath = manifest.PublicPath
	}

	var head, scripts strings.Builder
	for _, file := range manifest.Initial {
		href := html.EscapeString(publicPath + file)
		switch path.Ext(file) {
		case ".css":
			fmt.Fprintf(&head, `<link rel="stylesheet" href="%s">`, href)
		case ".js":
			fmt.Fprintf(&head, `<link rel="preload" href="%s" as="script">`, href)
			fmt.Fprintf(&scripts, `<script src="%s" defer></script>`, href)
		}
	}
	if r.resourceHints {
		for _, file := range manifest.Async {
			fmt.Fprintf(&head, `<link rel="prefetch" href="%s">`, html.EscapeString(publicPath+file))
		}
	}

	return strings.NewReplacer(
		"{{ HTML_ATTRS }}", htmlAttrs,
		"{{ HEAD_ATTRS }}", "",
		"{{ BODY_ATTRS }}", "",
		"{{ HEAD }}", head.String(),
		"{{ APP }}", app+scripts.String(),
	).Replace(tmpl)
}

func normalizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if len(route) > 1 {
		route = strings.TrimSuffix(route, "/")
	}
	return route
}
