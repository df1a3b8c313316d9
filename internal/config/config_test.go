package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/pksim/internal/engine"
	"github.com/rcliao/pksim/internal/solver"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, solver.MethodRosenbrock23, cfg.Solver.Method)
	assert.Equal(t, 0.95, cfg.Fit.ConfidenceLevel)
}

func TestLoad_OverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
[Solver]
Method = "dopri5"
RelTol = 1e-8

[Fit]
Parallel = true
Workers = 4
Timeout = "1m30s"

[Simulate]
TEnd = 24.0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, solver.MethodDopri5, cfg.Solver.Method)
	assert.Equal(t, 1e-8, cfg.Solver.RelTol)
	assert.Equal(t, Defaults().Solver.AbsTol, cfg.Solver.AbsTol)
	assert.True(t, cfg.Fit.Parallel)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Fit.Timeout))
	assert.Equal(t, 24.0, cfg.Simulate.TEnd)
	assert.Equal(t, engine.DefaultSteps, cfg.Simulate.Steps)

	opts := cfg.EngineOptions(nil)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, solver.MethodDopri5, opts.Solver.Method)
	_, err = engine.New(opts)
	assert.NoError(t, err)
}

func TestLoad_UnknownKey(t *testing.T) {
	path := writeConfig(t, "[Solver]\nTolerance = 1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tolerance")
	assert.True(t, strings.HasPrefix(err.Error(), path), err.Error())
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"confidence": "[Fit]\nConfidenceLevel = 1.5\n",
		"tolerance":  "[Fit]\nFTol = 0.0\n",
		"method":     "[Solver]\nMethod = \"euler\"\n",
		"span":       "[Simulate]\nTStart = 10.0\nTEnd = 5.0\n",
		"duration":   "[Fit]\nTimeout = \"soon\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	cfg := Defaults()
	cfg.Fit.Timeout = Duration(45 * time.Second)
	cfg.Cache.Size = 7

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, cfg))
	assert.Contains(t, buf.String(), "[Solver]")

	var got Config
	require.NoError(t, Decode(&buf, &got))
	assert.Equal(t, cfg, got)
}

func TestPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvVar, "")

	assert.Equal(t, "flag.toml", Path("flag.toml"))
	assert.Equal(t, "", Path(""), "no file under home")

	def := filepath.Join(home, ".pksim", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(def), 0o755))
	require.NoError(t, os.WriteFile(def, nil, 0o644))
	assert.Equal(t, def, Path(""))

	t.Setenv(EnvVar, "/etc/pksim.toml")
	assert.Equal(t, "/etc/pksim.toml", Path(""))
	assert.Equal(t, "flag.toml", Path("flag.toml"))
}
