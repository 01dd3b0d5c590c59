package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/maruel/subcommands"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/calumari/jdiff"
	"github.com/calumari/jdiff/internal/config"
)

const (
	ecOK      = 0
	ecFailed  = 1
	ecBadArgs = 2
)

// baseRun holds the flags and setup shared by all subcommands.
type baseRun struct {
	subcommands.CommandRunBase

	configPath string
	log        *logrus.Logger
}

func (r *baseRun) registerBaseFlags() {
	r.Flags.StringVar(&r.configPath, "config", "", "path to a YAML config file (default: "+config.DefaultConfigPath+" when present)")
}

// setup loads .env, the config file and env overrides, and configures the
// logger. It must run before anything logs.
func (r *baseRun) setup(a subcommands.Application) (config.Config, error) {
	r.log = logrus.New()
	r.log.SetOutput(a.GetErr())

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	lvl, _ := cfg.Level()
	r.log.SetLevel(lvl)
	return cfg, nil
}

func (r *baseRun) emitter(a subcommands.Application, cfg config.Config) (*jdiff.Emitter, error) {
	opts := []jdiff.Option{jdiff.WithRegistrations(jdiff.Stdlib())}
	if cfg.DetectCycles {
		opts = append(opts, jdiff.WithCycleDetection())
	}
	c, err := jdiff.New(opts...)
	if err != nil {
		return nil, err
	}
	return &jdiff.Emitter{
		Canonicalizer: c,
		Logger:        r.log,
		Stdout:        a.GetOut(),
		OutputDir:     cfg.OutputDir,
		TabSize:       cfg.TabSize,
		WrapColumn:    cfg.WrapColumn,
	}, nil
}

func (r *baseRun) argErr(a subcommands.Application, usage, format string, args ...any) int {
	fmt.Fprintf(a.GetErr(), "jdiff: %s\n\nusage: jdiff %s", fmt.Sprintf(format, args...), usage)
	return ecBadArgs
}

func (r *baseRun) done(err error) int {
	if err != nil {
		if r.log == nil {
			r.log = logrus.New()
		}
		r.log.Error(err)
		return ecFailed
	}
	return ecOK
}

// readInput decodes a JSON or YAML document. "-" reads stdin. YAML is
// chosen by the .yaml or .yml extension; anything else is parsed as JSON
// with member order preserved.
func readInput(path string, stdin io.Reader) (any, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return v, nil
	default:
		v, err := jdiff.Unmarshal(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return v, nil
	}
}
