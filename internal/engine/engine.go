// Package engine is the entry point used by the CLI: it owns the compiled
// model cache and runs inspection, simulation, scheduling and fitting
// requests.
package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/pksim/internal/fit"
	"github.com/rcliao/pksim/internal/model"
	"github.com/rcliao/pksim/internal/solver"
)

// Simulation defaults applied when a request leaves them out.
const (
	DefaultTStart = 0.0
	DefaultTEnd   = 48.0
	DefaultSteps  = 200
)

// Options configures an Engine.
type Options struct {
	Solver     solver.Options
	Fit        fit.Settings
	Confidence float64
	Parallel   bool
	Workers    int
	CacheSize  int

	TStart float64
	TEnd   float64
	Steps  int

	Logger *slog.Logger
}

// DefaultOptions returns the built-in configuration.
func DefaultOptions() Options {
	return Options{
		Solver:     solver.DefaultOptions(),
		Fit:        fit.DefaultSettings(),
		Confidence: model.DefaultConfidence,
		CacheSize:  DefaultCacheSize,
		TStart:     DefaultTStart,
		TEnd:       DefaultTEnd,
		Steps:      DefaultSteps,
	}
}

// Engine runs requests against cached compiled models. It is safe for
// concurrent use.
type Engine struct {
	opts  Options
	log   *slog.Logger
	cache *ModelCache

	mu      sync.Mutex
	entropy *rand.Rand
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if err := opts.Solver.Validate(); err != nil {
		return nil, fmt.Errorf("solver options: %w", err)
	}
	cache, err := NewModelCache(opts.CacheSize)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		opts:    opts,
		log:     logger,
		cache:   cache,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// CacheStats reports the model cache counters.
func (e *Engine) CacheStats() CacheStats { return e.cache.Stats() }

func (e *Engine) newID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), e.entropy).String()
}

// model compiles text through the cache.
func (e *Engine) model(text string) (*Compiled, error) {
	m, hit, err := e.cache.Get(text)
	if err != nil {
		return nil, err
	}
	if hit {
		e.log.Debug("model cache hit", "compartments", len(m.System.Compartments))
	} else {
		e.log.Debug("model cache miss", "compartments", len(m.System.Compartments), "derived", len(m.System.Derived))
	}
	return m, nil
}

// ValidationError reports a request that cannot be run.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches model.ErrInvalidInput.
func (e *ValidationError) Is(target error) bool { return target == model.ErrInvalidInput }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}
