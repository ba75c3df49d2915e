package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// decodeFile reads the configuration file into opts, picking the decoder from
// the file extension.
func decodeFile(path string, env Env, opts *Options) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".hcl" {
		return decodeHCL(path, env, opts)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	switch ext {
	case ".toml":
		_, err = toml.NewDecoder(file).Decode(opts)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		err = dec.Decode(opts)
	case ".json":
		dec := json.NewDecoder(file)
		dec.DisallowUnknownFields()
		err = dec.Decode(opts)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	// An empty file decodes to the defaults.
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
