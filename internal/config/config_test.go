package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/constraint"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/script"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "automaton.db", cfg.Database)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 1000, cfg.MaxSteps)
	assert.Equal(t, 1000, cfg.Ceilings.CreatedOrDeleted)
	assert.Equal(t, 20, cfg.Ceilings.Messages)
	assert.Equal(t, "Work", cfg.Duration.Type)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, script.DefaultLimits, cfg.Limits())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automaton.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
database: "tasks.db"
max_steps: 50
ceilings: messages: 5
log_level: "debug"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tasks.db", cfg.Database)
	assert.Equal(t, 50, cfg.MaxSteps)
	assert.Equal(t, 5, cfg.Ceilings.Messages)
	assert.Equal(t, 1000, cfg.Ceilings.CreatedOrDeleted, "unset ceilings keep their default")
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse("automaton.json", []byte(`{"workers": 2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"zero workers", `workers: 0`},
		{"negative ceiling", `ceilings: created_or_deleted: -1`},
		{"unknown log level", `log_level: "loud"`},
		{"unknown duration type", `duration: type: "Lunar"`},
		{"unknown unit", `duration: {type: "Custom", conversions: y: 1}`},
		{"unknown field", `threads: 8`},
		{"syntax", `workers: `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestDurationConstraint(t *testing.T) {
	cfg, err := Parse("d.cue", []byte(`duration: {type: "Custom", conversions: d: 21600000}`))
	require.NoError(t, err)

	c := cfg.DurationConstraint()
	assert.Equal(t, ir.ConstraintDuration, c.Type)

	conv := constraint.DurationConversions(c)
	assert.Equal(t, int64(21600000), conv["d"], "custom day length")
	assert.Equal(t, constraint.ClassicConversions()["w"], conv["w"], "other units keep classic lengths")
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for level, want := range tests {
		assert.Equal(t, want, (&Config{LogLevel: level}).SlogLevel(), level)
	}
}
