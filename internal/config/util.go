package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	defaultPath = "./config/config.yaml"
	pathEnv     = "COURIER_CONFIG"
	envPrefix   = "COURIER_"
)

func configPath() string {
	if p := os.Getenv(pathEnv); p != "" {
		return p
	}
	return defaultPath
}

// loadYAML overlays the file onto c. A missing file leaves c untouched.
func loadYAML(path string, c *Config) error {
	filename, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	yamlFile, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(yamlFile, c); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}

func loadEnv(c *Config) error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
