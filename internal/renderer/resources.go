package renderer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ClientManifestFile = "client.manifest.json"
	ServerBundleFile   = "server-bundle.json"
	SPATemplateFile    = "index.spa.html"
	SSRTemplateFile    = "index.ssr.html"
)

// ClientManifest lists the client build assets.
type ClientManifest struct {
	PublicPath string   `json:"publicPath"`
	All        []string `json:"all"`
	Initial    []string `json:"initial"`
	Async      []string `json:"async"`
}

// Bundle is the server build. Routes maps a route path to its pre-rendered
// application markup.
type Bundle struct {
	Entry  string            `json:"entry"`
	Files  map[string]string `json:"files"`
	Maps   map[string]any    `json:"maps"`
	Routes map[string]string `json:"routes"`
}

// Resources holds everything loaded from the server dist directory.
type Resources struct {
	ClientManifest *ClientManifest
	SPATemplate    string
	SSRTemplate    string
	Bundle         *Bundle
}

// LoadResources reads the build output from distDir. The SSR template and
// bundle are only required when ssr is true.
func LoadResources(distDir string, ssr bool) (*Resources, error) {
	res := &Resources{}

	manifest := &ClientManifest{}
	if err := readJSON(filepath.Join(distDir, ClientManifestFile), manifest); err != nil {
		return nil, err
	}
	res.ClientManifest = manifest

	spa, err := os.ReadFile(filepath.Join(distDir, SPATemplateFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read SPA template: %w", err)
	}
	res.SPATemplate = string(spa)

	if !ssr {
		return res, nil
	}

	ssrTemplate, err := os.ReadFile(filepath.Join(distDir, SSRTemplateFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read SSR template: %w", err)
	}
	res.SSRTemplate = string(ssrTemplate)

	bundle := &Bundle{}
	if err := readJSON(filepath.Join(distDir, ServerBundleFile), bundle); err != nil {
		return nil, err
	}
	if err := bundle.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ServerBundleFile, err)
	}
	res.Bundle = bundle

	return res, nil
}

func (b *Bundle) validate() error {
	if b.Entry == "" {
		return errors.New("missing entry")
	}
	if _, ok := b.Files[b.Entry]; !ok {
		return fmt.Errorf("entry %q not found in files", b.Entry)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
