package nuxt

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/config"
	"github.com/yamatt/go-nuxt/internal/renderer"
	"github.com/yamatt/go-nuxt/internal/router"
)

const distCacheControl = "public, max-age=31536000, immutable"

// Handler sets up the HTTP routes for the application.
func (n *Nuxt) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(n.logRequests)
	if n.options.Server.Timing {
		r.Use(serverTiming)
	}

	base := routerBase(n.options.Router.Base)

	// Client build output, fingerprinted and cached for a year.
	publicPath := renderer.PublicPath(n.options.Router.Base, n.options.Build.PublicPath)
	if strings.HasPrefix(publicPath, "/") && !strings.HasPrefix(publicPath, "//") {
		clientDir := config.ClientDir(n.options)
		dist := http.StripPrefix(publicPath, http.FileServer(http.Dir(clientDir)))
		r.PathPrefix(publicPath).
			Methods(http.MethodGet, http.MethodHead).
			MatcherFunc(regularFileMatcher(clientDir, publicPath)).
			Handler(immutable(dist))
		// No directory listings and no page fallback for missing assets.
		r.PathPrefix(publicPath).Handler(http.NotFoundHandler())
	}

	// Files from the static dir are served as-is at the router base.
	staticDir := config.StaticDir(n.options)
	r.PathPrefix(base + "/").
		Methods(http.MethodGet, http.MethodHead).
		MatcherFunc(regularFileMatcher(staticDir, base)).
		Handler(http.StripPrefix(base, http.FileServer(http.Dir(staticDir))))

	// Everything else is a page.
	r.PathPrefix(base + "/").Methods(http.MethodGet, http.MethodHead).HandlerFunc(n.handleRender)

	var h http.Handler = r
	if config.CompressorEnabled(n.options) {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

func (n *Nuxt) handleRender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	base := routerBase(n.options.Router.Base)
	route := strings.TrimPrefix(r.URL.Path, base)

	rules := n.resolver.Resolve(r)
	ssr := router.SSR(rules, config.SSREnabled(n.options))
	router.ApplyHeaders(w.Header(), rules)

	res, err := n.renderer.Render(ctx, renderer.RenderContext{Route: route, SSR: ssr})
	if err != nil {
		n.logger.Error("Render failed", zap.String("url", r.URL.Path), zap.Error(err))
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	if err := n.CallHook(ctx, HookRenderRoute, r.URL.Path, res); err != nil {
		n.logger.Error("Render hook failed", zap.String("url", r.URL.Path), zap.Error(err))
		http.Error(w, "Server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(res.Status)
	if r.Method != http.MethodHead {
		_, _ = io.WriteString(w, res.HTML)
	}
}

// logRequests is middleware that logs every matched request at debug level.
func (n *Nuxt) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.logger.Debug("Request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("remote_addr", r.RemoteAddr))
		next.ServeHTTP(w, r)
	})
}

func immutable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", distCacheControl)
		next.ServeHTTP(w, r)
	})
}

// regularFileMatcher matches requests naming a regular file inside dir once
// prefix is stripped from the path.
func regularFileMatcher(dir, prefix string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		rel := strings.TrimPrefix(r.URL.Path, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			return false
		}
		// http.Dir rejects paths escaping dir; Clean keeps Stat in step with it.
		p := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+rel)))
		info, err := os.Stat(p)
		return err == nil && info.Mode().IsRegular()
	}
}

// routerBase returns the base path without its trailing slash ("" for "/").
func routerBase(base string) string {
	base = strings.TrimSuffix(base, "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return base
}

// timingWriter adds the Server-Timing header right before the status is written.
type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.wroteHeader {
		tw.wroteHeader = true
		dur := float64(time.Since(tw.start).Microseconds()) / 1000
		tw.Header().Set("Server-Timing", fmt.Sprintf("total;dur=%.3f", dur))
	}
	tw.ResponseWriter.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

func serverTiming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&timingWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}
