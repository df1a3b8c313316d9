// Package config loads pksim settings from a TOML file.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/naoina/toml"

	"github.com/rcliao/pksim/internal/engine"
	"github.com/rcliao/pksim/internal/fit"
	"github.com/rcliao/pksim/internal/model"
	"github.com/rcliao/pksim/internal/solver"
)

// EnvVar names the environment variable holding a config file path.
const EnvVar = "PKSIM_CONFIG"

// Keys in the file are the Go field names. Unknown keys are errors.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// SolverConfig selects the ODE method and its step control.
type SolverConfig struct {
	Method    string
	RelTol    float64
	AbsTol    float64
	FirstStep float64
	MaxStep   float64
	MaxSteps  int
}

// FitConfig holds the least-squares tolerances, budget and concurrency.
type FitConfig struct {
	MaxEvaluations  int // 0 means 100 per fitted parameter
	FTol            float64
	XTol            float64
	GTol            float64
	ConfidenceLevel float64
	Parallel        bool
	Workers         int
	Timeout         Duration // 0 means no limit
}

// CacheConfig sizes the compiled-model cache.
type CacheConfig struct {
	Size int
}

// SimulateConfig is the default output grid of a simulation.
type SimulateConfig struct {
	TStart float64
	TEnd   float64
	Steps  int
}

// Config is the whole configuration file.
type Config struct {
	Solver   SolverConfig
	Fit      FitConfig
	Cache    CacheConfig
	Simulate SimulateConfig
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	so := solver.DefaultOptions()
	fs := fit.DefaultSettings()
	return Config{
		Solver: SolverConfig{
			Method:   so.Method,
			RelTol:   so.RelTol,
			AbsTol:   so.AbsTol,
			MaxSteps: so.MaxSteps,
		},
		Fit: FitConfig{
			FTol:            fs.FTol,
			XTol:            fs.XTol,
			GTol:            fs.GTol,
			ConfidenceLevel: model.DefaultConfidence,
		},
		Cache:    CacheConfig{Size: engine.DefaultCacheSize},
		Simulate: SimulateConfig{TStart: engine.DefaultTStart, TEnd: engine.DefaultTEnd, Steps: engine.DefaultSteps},
	}
}

// Path resolves the config file: the flag value, then $PKSIM_CONFIG, then
// ~/.pksim/config.toml when it exists. An empty result means defaults only.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvVar); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(home, ".pksim", "config.toml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := Decode(f, &cfg); err != nil {
		// Add file name to errors that have a line number.
		var le *toml.LineError
		if errors.As(err, &le) {
			return cfg, errors.New(path + ", " + err.Error())
		}
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode reads TOML from r into cfg.
func Decode(r io.Reader, cfg *Config) error {
	return tomlSettings.NewDecoder(bufio.NewReader(r)).Decode(cfg)
}

// Write encodes cfg as TOML.
func Write(w io.Writer, cfg Config) error {
	return tomlSettings.NewEncoder(w).Encode(cfg)
}

// Validate rejects settings the solver or fitter cannot run with.
func (c Config) Validate() error {
	if err := c.solverOptions().Validate(); err != nil {
		return fmt.Errorf("Solver: %w", err)
	}
	for name, v := range map[string]float64{"FTol": c.Fit.FTol, "XTol": c.Fit.XTol, "GTol": c.Fit.GTol} {
		if !(v > 0) {
			return fmt.Errorf("Fit.%s must be positive, got %g", name, v)
		}
	}
	if !(c.Fit.ConfidenceLevel > 0 && c.Fit.ConfidenceLevel < 1) {
		return fmt.Errorf("Fit.ConfidenceLevel must be in (0, 1), got %g", c.Fit.ConfidenceLevel)
	}
	if c.Fit.MaxEvaluations < 0 || c.Fit.Workers < 0 || c.Fit.Timeout < 0 {
		return errors.New("Fit.MaxEvaluations, Fit.Workers and Fit.Timeout must not be negative")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("Cache.Size must not be negative, got %d", c.Cache.Size)
	}
	if c.Simulate.TEnd < c.Simulate.TStart {
		return fmt.Errorf("Simulate.TEnd %g before Simulate.TStart %g", c.Simulate.TEnd, c.Simulate.TStart)
	}
	if c.Simulate.Steps < 1 {
		return fmt.Errorf("Simulate.Steps must be positive, got %d", c.Simulate.Steps)
	}
	return nil
}

func (c Config) solverOptions() solver.Options {
	return solver.Options{
		Method:    c.Solver.Method,
		RelTol:    c.Solver.RelTol,
		AbsTol:    c.Solver.AbsTol,
		FirstStep: c.Solver.FirstStep,
		MaxStep:   c.Solver.MaxStep,
		MaxSteps:  c.Solver.MaxSteps,
	}
}

// EngineOptions converts the configuration for engine.New.
func (c Config) EngineOptions(logger *slog.Logger) engine.Options {
	return engine.Options{
		Solver: c.solverOptions(),
		Fit: fit.Settings{
			GTol:           c.Fit.GTol,
			FTol:           c.Fit.FTol,
			XTol:           c.Fit.XTol,
			MaxEvaluations: c.Fit.MaxEvaluations,
		},
		Confidence: c.Fit.ConfidenceLevel,
		Parallel:   c.Fit.Parallel,
		Workers:    c.Fit.Workers,
		CacheSize:  c.Cache.Size,
		TStart:     c.Simulate.TStart,
		TEnd:       c.Simulate.TEnd,
		Steps:      c.Simulate.Steps,
		Logger:     logger,
	}
}
