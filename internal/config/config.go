// Package config loads jdiff tool settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "jdiff.yaml"
	DefaultFilename   = "object_diff.html"
	DefaultLogLevel   = "warning"

	EnvOutputDir    = "JDIFF_OUTPUT_DIR"
	EnvFilename     = "JDIFF_FILENAME"
	EnvLogLevel     = "JDIFF_LOG_LEVEL"
	EnvDetectCycles = "JDIFF_DETECT_CYCLES"
)

// Config holds the settings of the jdiff tool. Zero numeric values select the
// library defaults.
type Config struct {
	OutputDir    string `yaml:"output_dir"`
	Filename     string `yaml:"filename"`
	TabSize      int    `yaml:"tab_size"`
	WrapColumn   int    `yaml:"wrap_column"`
	LogLevel     string `yaml:"log_level"`
	DetectCycles bool   `yaml:"detect_cycles"`
}

// Default returns the built-in configuration. OutputDir is left empty so the
// library picks its temp-dir based default.
func Default() Config {
	return Config{
		Filename: DefaultFilename,
		LogLevel: DefaultLogLevel,
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error when path is the default path; any other missing path is.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		c.OutputDir = v
	}
	if v, ok := lookup(EnvFilename); ok && v != "" {
		c.Filename = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvDetectCycles); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDetectCycles, err)
		}
		c.DetectCycles = b
	}
	return nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if c.TabSize < 0 {
		return fmt.Errorf("tab_size must not be negative (got %d)", c.TabSize)
	}
	if strings.ContainsAny(c.Filename, `/\`) {
		return fmt.Errorf("filename must not contain a path separator (got %q)", c.Filename)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means DefaultLogLevel.
func (c Config) Level() (logrus.Level, error) {
	lvl := c.LogLevel
	if lvl == "" {
		lvl = DefaultLogLevel
	}
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
