// Package router evaluates configured route rules against incoming requests.
package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/yamatt/go-nuxt/internal/config"
)

// Rule is a matched route rule, ready to apply to a response.
type Rule struct {
	Name        string
	SSR         *bool
	Headers     map[string]string
	StopOnMatch bool
}

type compiledRule struct {
	conf config.RouteRule
	prog cel.Program
}

// Resolver evaluates CEL selectors to pick the rules for a request.
type Resolver struct {
	rules  []compiledRule
	logger *zap.Logger
}

// NewResolver compiles every rule selector. A selector that does not compile
// is reported with the rule name.
func NewResolver(rules []config.RouteRule, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	env, err := cel.NewEnv(
		cel.Variable("request", cel.DynType),
	)
	if err != nil {
		return nil, err
	}

	crs := make([]compiledRule, 0, len(rules))
	for _, rc := range rules {
		selector := rc.Selector
		if selector == "" {
			selector = "true"
		}
		ast, issues := env.Compile(selector)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("route rule %q: %w", rc.Name, issues.Err())
		}
		prog, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("route rule %q: %w", rc.Name, err)
		}
		crs = append(crs, compiledRule{conf: rc, prog: prog})
	}
	return &Resolver{rules: crs, logger: logger.Named("router")}, nil
}

// Len returns the number of compiled rules.
func (r *Resolver) Len() int {
	return len(r.rules)
}

// Resolve returns the rules matching the request, in configuration order.
// Evaluation stops after the first matching rule marked StopOnMatch.
func (r *Resolver) Resolve(req *http.Request) []Rule {
	if len(r.rules) == 0 {
		return nil
	}
	input := RequestInput(req)

	var out []Rule
	for _, rt := range r.rules {
		val, _, err := rt.prog.Eval(map[string]any{"request": input})
		if err != nil {
			r.logger.Debug("Selector eval error", zap.String("rule", rt.conf.Name), zap.Error(err))
			continue
		}
		matched, _ := val.Value().(bool)
		if !matched {
			continue
		}
		r.logger.Debug("Selector matched", zap.String("rule", rt.conf.Name), zap.String("path", req.URL.Path))
		out = append(out, Rule{
			Name:        rt.conf.Name,
			SSR:         rt.conf.SSR,
			Headers:     rt.conf.Headers,
			StopOnMatch: rt.conf.StopOnMatch,
		})
		if rt.conf.StopOnMatch {
			break
		}
	}
	return out
}

// RequestInput converts a request into the `request` object seen by selectors.
// Header names are lower-cased; only the first value of each header and
// query parameter is kept.
func RequestInput(req *http.Request) map[string]any {
	headers := make(map[string]any, len(req.Header))
	for k, v := range req.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}
	query := make(map[string]any)
	for k, v := range req.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return map[string]any{
		"method":  req.Method,
		"path":    req.URL.Path,
		"host":    req.Host,
		"query":   query,
		"headers": headers,
	}
}

// SSR folds the SSR overrides of the matched rules over the default. Later
// rules win.
func SSR(rules []Rule, def bool) bool {
	ssr := def
	for _, rule := range rules {
		if rule.SSR != nil {
			ssr = *rule.SSR
		}
	}
	return ssr
}

// ApplyHeaders sets the headers of every matched rule on h.
func ApplyHeaders(h http.Header, rules []Rule) {
	for _, rule := range rules {
		for k, v := range rule.Headers {
			h.Set(k, v)
		}
	}
}
