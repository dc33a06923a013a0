// Package config loads the engine configuration.
//
// A configuration file is CUE (or JSON, which is valid CUE) unified with the
// embedded #Config schema. The schema supplies every default, so an absent
// file yields a complete configuration:
//
//	database: "tasks.db"
//	max_steps: 200
//	ceilings: messages: 5
//	duration: {type: "Custom", conversions: d: 21600000}
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/script"
)

//go:embed schema.cue
var schemaSource []byte

// Config is the engine configuration.
type Config struct {
	// Database is the SQLite file path.
	Database string `json:"database"`
	// Workers is the size of the invocation worker pool.
	Workers int `json:"workers"`
	// MaxSteps bounds the invocations of one root flow.
	MaxSteps int      `json:"max_steps"`
	Ceilings Ceilings `json:"ceilings"`
	// Duration is the schema used for Duration attributes that carry none.
	Duration Duration `json:"duration"`
	LogLevel string   `json:"log_level"`
}

// Ceilings are the per-invocation limits of the scripting bridge.
type Ceilings struct {
	CreatedOrDeleted int `json:"created_or_deleted"`
	Messages         int `json:"messages"`
}

// Duration is a duration schema: Work, Classic or Custom with per-unit
// lengths in milliseconds.
type Duration struct {
	Type        string           `json:"type"`
	Conversions map[string]int64 `json:"conversions,omitempty"`
}

// Default returns the configuration of an empty file.
func Default() *Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: default configuration: %v", err))
	}
	return cfg
}

// Load reads the configuration at path. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse unifies src with #Config and decodes the result. filename is only
// used in error messages.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	v = v.Unify(schema.LookupPath(cue.ParsePath("#Config")))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	return &cfg, nil
}

// Limits returns the scripting ceilings.
func (c *Config) Limits() script.Limits {
	return script.Limits{
		CreatedOrDeleted: c.Ceilings.CreatedOrDeleted,
		Messages:         c.Ceilings.Messages,
	}
}

// DurationConstraint returns a Duration constraint carrying the configured
// schema.
func (c *Config) DurationConstraint() *ir.Constraint {
	cfg := ir.IRObject{"type": ir.IRString(c.Duration.Type)}
	if len(c.Duration.Conversions) > 0 {
		conv := make(ir.IRObject, len(c.Duration.Conversions))
		for unit, ms := range c.Duration.Conversions {
			conv[unit] = ir.IRInt(ms)
		}
		cfg["conversions"] = conv
	}
	return &ir.Constraint{Type: ir.ConstraintDuration, Config: cfg}
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
