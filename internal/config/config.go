package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yamatt/go-nuxt/internal/args"
)

const (
	ModeUniversal = "universal"
	ModeSPA       = "spa"

	defaultBuildDir   = ".nuxt"
	defaultHost       = "localhost"
	defaultPort       = "3000"
	defaultRouterBase = "/"
	defaultPublicPath = "/_nuxt/"
	defaultStaticDir  = "static"
)

// Options represents the framework configuration.
type Options struct {
	RootDir  string `toml:"root_dir" yaml:"root_dir" json:"rootDir"`
	SrcDir   string `toml:"src_dir" yaml:"src_dir" json:"srcDir"`
	BuildDir string `toml:"build_dir" yaml:"build_dir" json:"buildDir"`
	Mode     string `toml:"mode" yaml:"mode" json:"mode"`
	Dev      bool   `toml:"dev" yaml:"dev" json:"dev"`

	Render RenderOptions `toml:"render" yaml:"render" json:"render"`
	Server ServerOptions `toml:"server" yaml:"server" json:"server"`
	Router RouterOptions `toml:"router" yaml:"router" json:"router"`
	Build  BuildOptions  `toml:"build" yaml:"build" json:"build"`
	Static StaticOptions `toml:"static" yaml:"static" json:"static"`

	RouteRules   []RouteRule    `toml:"route_rules" yaml:"route_rules" json:"routeRules"`
	ReadyWebhook WebhookOptions `toml:"ready_webhook" yaml:"ready_webhook" json:"readyWebhook"`
}

// RenderOptions controls page rendering.
type RenderOptions struct {
	// SSR enables server-side rendering. When unset the mode preset decides.
	SSR *bool `toml:"ssr" yaml:"ssr" json:"ssr"`
	// Compressor gzips responses (default: true).
	Compressor *bool `toml:"compressor" yaml:"compressor" json:"compressor"`
	// ResourceHints adds prefetch links for async chunks.
	ResourceHints bool `toml:"resource_hints" yaml:"resource_hints" json:"resourceHints"`
}

// ServerOptions controls where the server listens.
type ServerOptions struct {
	Host   string `toml:"host" yaml:"host" json:"host"`
	Port   Port   `toml:"port" yaml:"port" json:"port"`
	Socket string `toml:"socket" yaml:"socket" json:"socket"`
	// Timing adds a Server-Timing header to every response.
	Timing bool `toml:"timing" yaml:"timing" json:"timing"`
}

type RouterOptions struct {
	Base string `toml:"base" yaml:"base" json:"base"`
}

type BuildOptions struct {
	PublicPath string `toml:"public_path" yaml:"public_path" json:"publicPath"`
}

type StaticOptions struct {
	Dir string `toml:"dir" yaml:"dir" json:"dir"`
}

// RouteRule applies per-request overrides when its CEL selector matches.
type RouteRule struct {
	// Optional human-friendly rule name.
	Name string `toml:"name" yaml:"name" json:"name"`
	// Selector is a CEL expression evaluated against the request as `request`.
	Selector string `toml:"selector" yaml:"selector" json:"selector"`
	// SSR overrides render.ssr for matching requests.
	SSR *bool `toml:"ssr,omitempty" yaml:"ssr,omitempty" json:"ssr,omitempty"`
	// Headers are set on the response of matching requests.
	Headers map[string]string `toml:"headers,omitempty" yaml:"headers,omitempty" json:"headers,omitempty"`
	// StopOnMatch prevents further rules from being evaluated if this rule matches.
	StopOnMatch bool `toml:"stop_on_match,omitempty" yaml:"stop_on_match,omitempty" json:"stopOnMatch,omitempty"`
}

// WebhookOptions configures the notification sent once the server is ready.
type WebhookOptions struct {
	URL          string `toml:"url" yaml:"url" json:"url"`
	Method       string `toml:"method" yaml:"method" json:"method"`
	SharedSecret string `toml:"shared_secret" yaml:"shared_secret" json:"sharedSecret"`
}

// Port accepts either a number or a string in configuration files.
type Port string

func (p *Port) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case string:
		*p = Port(x)
	case int64:
		*p = Port(strconv.FormatInt(x, 10))
	default:
		return fmt.Errorf("port must be a string or an integer, got %T", v)
	}
	return nil
}

func (p *Port) UnmarshalJSON(b []byte) error {
	s := string(b)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*p = Port(strconv.FormatInt(n, 10))
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("port must be a string or an integer, got %s", s)
	}
	*p = Port(unquoted)
	return nil
}

// Load resolves the root directory from the parsed arguments, reads the
// configuration file (if any) and applies CLI and environment overrides.
func Load(a args.Args, env Env) (*Options, error) {
	rootDir := a.RootDir
	if rootDir == "" {
		rootDir = "."
	}
	rootDir, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root dir: %w", err)
	}

	configFile := a.ConfigFile
	if configFile == "" {
		configFile = args.DefaultConfigFile
	}
	if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(rootDir, configFile)
	}

	if err := env.MergeDotenv(filepath.Join(rootDir, ".env")); err != nil {
		return nil, err
	}

	opts := &Options{}
	if _, err := os.Stat(configFile); err == nil {
		if err := decodeFile(configFile, env, opts); err != nil {
			return nil, fmt.Errorf("could not load config file %s: %w", a.ConfigFile, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not load config file %s: %w", a.ConfigFile, err)
	} else if a.ConfigFileSet() {
		return nil, fmt.Errorf("could not load config file %s: %w", a.ConfigFile, err)
	}

	if opts.RootDir == "" {
		opts.RootDir = rootDir
	} else if !filepath.IsAbs(opts.RootDir) {
		opts.RootDir = filepath.Join(rootDir, opts.RootDir)
	}

	switch {
	case a.SPA:
		opts.Mode = ModeSPA
	case a.Universal:
		opts.Mode = ModeUniversal
	}

	if port := firstNonEmpty(a.Port, env.Get("NUXT_PORT"), env.Get("PORT")); port != "" {
		opts.Server.Port = Port(port)
	}
	if host := firstNonEmpty(a.Hostname, env.Get("NUXT_HOST"), env.Get("HOST")); host != "" {
		opts.Server.Host = host
	}
	if socket := firstNonEmpty(a.UnixSocket, env.Get("UNIX_SOCKET")); socket != "" {
		opts.Server.Socket = socket
	}

	ApplyDefaults(opts)

	if err := Validate(opts); err != nil {
		return nil, err
	}

	return opts, nil
}

// ApplyDefaults ensures missing values are populated with sensible defaults.
func ApplyDefaults(opts *Options) {
	if opts == nil {
		return
	}

	if opts.Mode == "" {
		opts.Mode = ModeUniversal
	}
	// The mode preset only fills render.ssr when the config left it unset.
	if opts.Render.SSR == nil {
		ssr := opts.Mode != ModeSPA
		opts.Render.SSR = &ssr
	}
	if opts.Render.Compressor == nil {
		v := true
		opts.Render.Compressor = &v
	}
	if opts.SrcDir == "" {
		opts.SrcDir = opts.RootDir
	} else if !filepath.IsAbs(opts.SrcDir) {
		opts.SrcDir = filepath.Join(opts.RootDir, opts.SrcDir)
	}
	if opts.BuildDir == "" {
		opts.BuildDir = defaultBuildDir
	}
	if opts.Server.Host == "" {
		opts.Server.Host = defaultHost
	}
	if opts.Server.Port == "" {
		opts.Server.Port = defaultPort
	}
	if opts.Router.Base == "" {
		opts.Router.Base = defaultRouterBase
	}
	if opts.Build.PublicPath == "" {
		opts.Build.PublicPath = defaultPublicPath
	}
	if opts.Static.Dir == "" {
		opts.Static.Dir = defaultStaticDir
	}
	for i := range opts.RouteRules {
		r := &opts.RouteRules[i]
		if r.Selector == "" {
			r.Selector = "true" // default catch-all
		}
		if r.Name == "" {
			r.Name = r.Selector
		}
	}
	if opts.ReadyWebhook.URL != "" && opts.ReadyWebhook.Method == "" {
		opts.ReadyWebhook.Method = "POST"
	}
}

// Validate rejects option values the server cannot run with.
func Validate(opts *Options) error {
	if opts.Mode != ModeUniversal && opts.Mode != ModeSPA {
		return fmt.Errorf("invalid mode %q: must be %q or %q", opts.Mode, ModeUniversal, ModeSPA)
	}
	if opts.Server.Socket == "" {
		if _, err := strconv.ParseUint(string(opts.Server.Port), 10, 16); err != nil {
			return fmt.Errorf("invalid port %q: %w", opts.Server.Port, err)
		}
	}
	return nil
}

// NewDefault creates a default configuration rooted at rootDir with defaults applied.
func NewDefault(rootDir string) *Options {
	opts := &Options{RootDir: rootDir, RouteRules: []RouteRule{}}
	ApplyDefaults(opts)
	return opts
}

// DistDir returns the directory holding the server build output.
func DistDir(opts *Options) string {
	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = defaultBuildDir
	}
	return resolve(opts.RootDir, buildDir, "dist", "server")
}

// ClientDir returns the directory holding the client build output.
func ClientDir(opts *Options) string {
	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = defaultBuildDir
	}
	return resolve(opts.RootDir, buildDir, "dist", "client")
}

// StaticDir returns the directory of files served verbatim at the router base.
func StaticDir(opts *Options) string {
	return resolve(opts.SrcDir, opts.Static.Dir)
}

// SSREnabled reports whether server-side rendering is switched on.
func SSREnabled(opts *Options) bool {
	return opts.Render.SSR != nil && *opts.Render.SSR
}

// CompressorEnabled reports whether responses should be compressed.
func CompressorEnabled(opts *Options) bool {
	return opts.Render.Compressor == nil || *opts.Render.Compressor
}

// resolve joins the elements onto base unless one of them is already absolute.
func resolve(base string, elems ...string) string {
	out := base
	for _, e := range elems {
		if filepath.IsAbs(e) {
			out = e
			continue
		}
		out = filepath.Join(out, e)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
