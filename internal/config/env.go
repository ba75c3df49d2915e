package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env is the set of environment variables visible to configuration loading.
type Env map[string]string

// EnvFromOS snapshots the process environment.
func EnvFromOS() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Get returns the value for key, or "" when unset.
func (e Env) Get(key string) string {
	return e[key]
}

// MergeDotenv reads a .env file and adds its values for keys that are not
// already set. A missing file is not an error.
func (e Env) MergeDotenv(path string) error {
	if e == nil {
		return errors.New("env: nil environment")
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for k, v := range values {
		if _, exists := e[k]; !exists {
			e[k] = v
		}
	}
	return nil
}
