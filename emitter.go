package jdiff

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/calumari/jdiff/internal/htmldiff"
)

const (
	// DefaultFilename is the report file name used when none is given.
	DefaultFilename = "object_diff.html"
	// DefaultTabSize is the tab width of the diff report.
	DefaultTabSize = 2
	// DefaultWrapColumn is the column at which diff report lines wrap.
	DefaultWrapColumn = 80

	jsonIndent = "    "
	diffIndent = "  "

	fromDesc = "Object 1"
	toDesc   = "Object 2"
)

// DefaultOutputDir is where diff reports go when neither the Emitter nor the
// call names a directory.
func DefaultOutputDir() string {
	return filepath.Join(os.TempDir(), "jdiff")
}

// Emitter writes canonical JSON files and HTML diff reports. The zero value
// is ready to use: it canonicalizes with Default, logs to the logrus
// standard logger and prints confirmations to os.Stdout.
type Emitter struct {
	Canonicalizer *Canonicalizer
	Logger        logrus.FieldLogger
	Stdout        io.Writer

	// OutputDir is the report directory used when WriteDiffReport gets no
	// WithOutputDir option. Empty means DefaultOutputDir().
	OutputDir string
	// TempDir is where WriteJSON creates files when no path is given. Empty
	// means os.TempDir().
	TempDir string

	TabSize    int // 0 means DefaultTabSize
	WrapColumn int // 0 means DefaultWrapColumn, negative disables wrapping
}

var defaultEmitter = &Emitter{}

// WriteJSON canonicalizes v and writes it with the default Emitter.
func WriteJSON(v any, path string) (string, error) {
	return defaultEmitter.WriteJSON(v, path)
}

// WriteDiffReport writes an HTML diff of v1 and v2 with the default Emitter.
func WriteDiffReport(v1, v2 any, opts ...DiffOption) (string, error) {
	return defaultEmitter.WriteDiffReport(v1, v2, opts...)
}

func (e *Emitter) canonicalizer() *Canonicalizer {
	if e.Canonicalizer == nil {
		return defaultCanonicalizer
	}
	return e.Canonicalizer
}

func (e *Emitter) logger() logrus.FieldLogger {
	if e.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.Logger
}

func (e *Emitter) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

func (e *Emitter) renderer() htmldiff.Renderer {
	r := htmldiff.Renderer{
		TabSize:    e.TabSize,
		WrapColumn: e.WrapColumn,
		Title:      "Object diff",
	}
	if r.TabSize == 0 {
		r.TabSize = DefaultTabSize
	}
	if r.WrapColumn == 0 {
		r.WrapColumn = DefaultWrapColumn
	}
	return r
}

// WriteJSON canonicalizes v and writes it as JSON indented by four spaces.
// When path is empty a new file with a .json suffix is created in TempDir.
// It returns the path written to.
func (e *Emitter) WriteJSON(v any, path string) (string, error) {
	cv, err := e.canonicalizer().Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	b, err := Marshal(cv, WithIndent(jsonIndent))
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}

	if path == "" {
		if path, err = writeTemp(e.TempDir, b); err != nil {
			return "", err
		}
	} else if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("write json: %w", err)
	}

	e.logger().WithField("path", path).Infof("JSON data saved to %s", path)
	return path, nil
}

func writeTemp(dir string, b []byte) (string, error) {
	f, err := os.CreateTemp(dir, "jdiff-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	_, werr := f.Write(b)
	if err := errors.Join(werr, f.Close()); err != nil {
		return "", fmt.Errorf("write json: %w", err)
	}
	return f.Name(), nil
}

type diffConfig struct {
	canonicalize func(any) any
	dir          string
	filename     string
}

// DiffOption configures a single WriteDiffReport call.
type DiffOption func(*diffConfig)

// WithCanonicalizeFunc replaces the Emitter's canonicalizer for one report.
// fn's results are encoded as they are, so they should be canonical values
// or plain JSON-encodable data.
func WithCanonicalizeFunc(fn func(any) any) DiffOption {
	return func(c *diffConfig) { c.canonicalize = fn }
}

// WithOutputDir sets the report directory. It is created, with any missing
// parents, when it does not exist.
func WithOutputDir(dir string) DiffOption {
	return func(c *diffConfig) { c.dir = dir }
}

// WithFilename sets the report file name inside the output directory.
func WithFilename(name string) DiffOption {
	return func(c *diffConfig) { c.filename = name }
}

// WriteDiffReport canonicalizes v1 and v2, encodes each with sorted keys and
// writes a side-by-side HTML diff of the two texts to
// <output dir>/<filename>. Each report gets a fresh id, embedded in the page
// and logged with the write. It prints a confirmation line to Stdout and
// returns the report path.
func (e *Emitter) WriteDiffReport(v1, v2 any, opts ...DiffOption) (string, error) {
	cfg := diffConfig{dir: e.OutputDir, filename: DefaultFilename}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.dir == "" {
		cfg.dir = DefaultOutputDir()
	}
	if cfg.filename == "" {
		cfg.filename = DefaultFilename
	}

	left, err := e.diffLines(v1, cfg.canonicalize)
	if err != nil {
		return "", fmt.Errorf("object 1: %w", err)
	}
	right, err := e.diffLines(v2, cfg.canonicalize)
	if err != nil {
		return "", fmt.Errorf("object 2: %w", err)
	}

	id := uuid.NewString()
	r := e.renderer()
	r.ID = id

	var buf bytes.Buffer
	if err := r.Render(&buf, left, right, fromDesc, toDesc); err != nil {
		return "", err
	}

	if err := os.MkdirAll(cfg.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(cfg.dir, cfg.filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write diff report: %w", err)
	}

	fmt.Fprintf(e.stdout(), "Diff report saved at: %s\n", path)
	e.logger().WithFields(logrus.Fields{
		"path":        path,
		"report_id":   id,
		"lines_left":  len(left),
		"lines_right": len(right),
	}).Info("diff report written")
	return path, nil
}

// diffLines canonicalizes v and returns its sorted-key JSON text split into
// lines.
func (e *Emitter) diffLines(v any, canonicalize func(any) any) ([]string, error) {
	var cv any
	if canonicalize != nil {
		cv = canonicalize(v)
	} else {
		var err error
		if cv, err = e.canonicalizer().Canonicalize(v); err != nil {
			return nil, fmt.Errorf("canonicalize: %w", err)
		}
	}
	b, err := Marshal(cv, WithIndent(diffIndent), WithSortedKeys())
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return htmldiff.SplitLines(string(b)), nil
}
