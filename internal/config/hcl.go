package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclRoot mirrors Options with the block layout used in .hcl config files.
type hclRoot struct {
	RootDir  string `hcl:"root_dir,optional"`
	SrcDir   string `hcl:"src_dir,optional"`
	BuildDir string `hcl:"build_dir,optional"`
	Mode     string `hcl:"mode,optional"`
	Dev      bool   `hcl:"dev,optional"`

	Render       *hclRender     `hcl:"render,block"`
	Server       *hclServer     `hcl:"server,block"`
	Router       *hclRouter     `hcl:"router,block"`
	Build        *hclBuild      `hcl:"build,block"`
	Static       *hclStatic     `hcl:"static,block"`
	RouteRules   []hclRouteRule `hcl:"route_rule,block"`
	ReadyWebhook *hclWebhook    `hcl:"ready_webhook,block"`
}

type hclRender struct {
	SSR           *bool `hcl:"ssr,optional"`
	Compressor    *bool `hcl:"compressor,optional"`
	ResourceHints bool  `hcl:"resource_hints,optional"`
}

type hclServer struct {
	Host   string `hcl:"host,optional"`
	Port   string `hcl:"port,optional"`
	Socket string `hcl:"socket,optional"`
	Timing bool   `hcl:"timing,optional"`
}

type hclRouter struct {
	Base string `hcl:"base,optional"`
}

type hclBuild struct {
	PublicPath string `hcl:"public_path,optional"`
}

type hclStatic struct {
	Dir string `hcl:"dir,optional"`
}

type hclRouteRule struct {
	Name        string            `hcl:"name,label"`
	Selector    string            `hcl:"selector,optional"`
	SSR         *bool             `hcl:"ssr,optional"`
	Headers     map[string]string `hcl:"headers,optional"`
	StopOnMatch bool              `hcl:"stop_on_match,optional"`
}

type hclWebhook struct {
	URL          string `hcl:"url"`
	Method       string `hcl:"method,optional"`
	SharedSecret string `hcl:"shared_secret,optional"`
}

// decodeHCL parses an .hcl config file. Expressions may reference
// environment variables as env.NAME.
func decodeHCL(path string, env Env, opts *Options) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var root hclRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(env), &root)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	root.apply(opts)
	return nil
}

// evalContext exposes the environment to HCL expressions as an object.
func evalContext(env Env) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func (r *hclRoot) apply(opts *Options) {
	opts.RootDir = r.RootDir
	opts.SrcDir = r.SrcDir
	opts.BuildDir = r.BuildDir
	opts.Mode = r.Mode
	opts.Dev = r.Dev

	if r.Render != nil {
		opts.Render = RenderOptions{
			SSR:           r.Render.SSR,
			Compressor:    r.Render.Compressor,
			ResourceHints: r.Render.ResourceHints,
		}
	}
	if r.Server != nil {
		opts.Server = ServerOptions{
			Host:   r.Server.Host,
			Port:   Port(r.Server.Port),
			Socket: r.Server.Socket,
			Timing: r.Server.Timing,
		}
	}
	if r.Router != nil {
		opts.Router.Base = r.Router.Base
	}
	if r.Build != nil {
		opts.Build.PublicPath = r.Build.PublicPath
	}
	if r.Static != nil {
		opts.Static.Dir = r.Static.Dir
	}
	for _, rule := range r.RouteRules {
		opts.RouteRules = append(opts.RouteRules, RouteRule{
			Name:        rule.Name,
			Selector:    rule.Selector,
			SSR:         rule.SSR,
			Headers:     rule.Headers,
			StopOnMatch: rule.StopOnMatch,
		})
	}
	if r.ReadyWebhook != nil {
		opts.ReadyWebhook = WebhookOptions{
			URL:          r.ReadyWebhook.URL,
			Method:       r.ReadyWebhook.Method,
			SharedSecret: r.ReadyWebhook.SharedSecret,
		}
	}
}
