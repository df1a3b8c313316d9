package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/rcliao/pksim/internal/dsl"
	"github.com/rcliao/pksim/internal/eval"
)

// DefaultCacheSize is the number of compiled models kept when no size is
// configured.
const DefaultCacheSize = 128

// Compiled is a parsed and compiled model. It is immutable and shared by
// concurrent callers.
type Compiled struct {
	Text    string
	System  *dsl.System
	Program *eval.Program
}

// ModelCache keeps recently compiled models keyed by a hash of their text.
// It is safe for concurrent use.
type ModelCache struct {
	entries *lru.Cache
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// NewModelCache creates a cache holding up to size models.
func NewModelCache(size int) (*ModelCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	return &ModelCache{entries: entries}, nil
}

// Get returns the compiled model for text, compiling it on a miss. Parse
// errors are not cached. When two callers compile the same text
// concurrently the first insert wins.
func (c *ModelCache) Get(text string) (*Compiled, bool, error) {
	key := xxhash.Sum64String(text)
	if v, ok := c.entries.Get(key); ok {
		if m := v.(*Compiled); m.Text == text {
			c.hits.Add(1)
			return m, true, nil
		}
	}
	c.misses.Add(1)

	m, err := compile(text)
	if err != nil {
		return nil, false, err
	}
	if found, _ := c.entries.ContainsOrAdd(key, m); found {
		if v, ok := c.entries.Get(key); ok {
			if prev := v.(*Compiled); prev.Text == text {
				return prev, false, nil
			}
		}
	}
	return m, false, nil
}

// Stats returns the current counters.
func (c *ModelCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.entries.Len()}
}

func compile(text string) (*Compiled, error) {
	sys, err := dsl.Parse(text)
	if err != nil {
		return nil, err
	}
	prog, err := eval.Compile(sys)
	if err != nil {
		return nil, err
	}
	return &Compiled{Text: text, System: sys, Program: prog}, nil
}
