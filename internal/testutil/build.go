// Package testutil writes fake build output for tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const (
	SPATemplate = `<!DOCTYPE html><html {{ HTML_ATTRS }}><head {{ HEAD_ATTRS }}>{{ HEAD }}</head><body {{ BODY_ATTRS }}>{{ APP }}</body></html>`
	SSRTemplate = `<!DOCTYPE html><html {{ HTML_ATTRS }}><head {{ HEAD_ATTRS }}>{{ HEAD }}</head><body {{ BODY_ATTRS }} class="ssr">{{ APP }}</body></html>`

	// HomeMarkup is the pre-rendered markup for "/" in the fake server bundle.
	HomeMarkup = `<div id="__nuxt"><h1>Home</h1></div>`
	// ClientScript is the single initial script in the fake client build.
	ClientScript = "app.3f2a.js"
)

// Build describes the fake build output to write.
type Build struct {
	// BuildDir is relative to the root dir. Defaults to ".nuxt".
	BuildDir string
	// ServerDir creates <BuildDir>/dist/server and its SPA resources.
	ServerDir bool
	// SSRBundle adds server-bundle.json and the SSR template.
	SSRBundle bool
}

// WriteBuild writes the fake build into rootDir and returns the server dist dir.
func WriteBuild(t *testing.T, rootDir string, b Build) string {
	t.Helper()

	buildDir := b.BuildDir
	if buildDir == "" {
		buildDir = ".nuxt"
	}
	distDir := filepath.Join(rootDir, buildDir, "dist", "server")
	clientDir := filepath.Join(rootDir, buildDir, "dist", "client")
	if !b.ServerDir {
		return distDir
	}

	mkdir(t, distDir)
	mkdir(t, clientDir)

	writeJSON(t, filepath.Join(distDir, "client.manifest.json"), map[string]any{
		"all":     []string{ClientScript, "app.css", "pages/about.js"},
		"initial": []string{ClientScript, "app.css"},
		"async":   []string{"pages/about.js"},
	})
	writeFile(t, filepath.Join(distDir, "index.spa.html"), SPATemplate)
	writeFile(t, filepath.Join(clientDir, ClientScript), "console.log('client')")
	writeFile(t, filepath.Join(clientDir, "app.css"), "body{margin:0}")

	if b.SSRBundle {
		writeFile(t, filepath.Join(distDir, "index.ssr.html"), SSRTemplate)
		writeJSON(t, filepath.Join(distDir, "server-bundle.json"), map[string]any{
			"entry": "server.js",
			"files": map[string]string{"server.js": "module.exports = {}"},
			"maps":  map[string]any{},
			"routes": map[string]string{
				"/":      HomeMarkup,
				"/about": `<div id="__nuxt"><h1>About</h1></div>`,
			},
		})
	}
	return distDir
}

func mkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", path, err)
	}
	writeFile(t, path, string(data))
}
