package gaudit

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Latch reports true until it is written once. Any write, whatever the value,
// closes it for good: read it, do the one-time work, then Set it.
type Latch struct {
	closed atomic.Bool
}

func (l *Latch) Get() bool { return !l.closed.Load() }

func (l *Latch) Set(bool) { l.closed.Store(true) }

// CacheEntry is the per-context-type state shared by every Context of that type.
type CacheEntry struct {
	Options            Options
	Naming             NamingPolicy
	Definitions        Definitions
	Synthesizer        Synthesizer
	FirstInstantiation Latch
}

// Cache memoizes one CacheEntry per context key for the process lifetime.
type Cache struct {
	entries sync.Map // string -> *CacheEntry
	group   singleflight.Group
}

// DefaultCache is the process-wide cache used unless WithCache is given.
var DefaultCache = &Cache{}

// NewCache returns an empty cache, for isolating tests from DefaultCache.
func NewCache() *Cache { return &Cache{} }

// GetOrCreate returns the entry for key, creating it on first use. initialize runs at
// most once per key while the entry's latch is open; callers racing on the same key all
// observe the single entry that was stored. A failed initialization stores nothing.
func (c *Cache) GetOrCreate(key string, opts Options, naming NamingPolicy, initialize func(*CacheEntry) error) (*CacheEntry, error) {
	if v, ok := c.entries.Load(key); ok {
		return v.(*CacheEntry), nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.entries.Load(key); ok {
			return v, nil
		}
		e := &CacheEntry{Options: opts, Naming: naming}
		if e.FirstInstantiation.Get() {
			if err := initialize(e); err != nil {
				return nil, err
			}
			e.FirstInstantiation.Set(false)
		}
		c.entries.Store(key, e)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("gaudit: initialize context %q: %w", key, err)
	}
	return v.(*CacheEntry), nil
}

// Lookup returns the entry for key without creating it.
func (c *Cache) Lookup(key string) (*CacheEntry, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*CacheEntry), true
}
