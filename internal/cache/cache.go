package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fc-gallery/nft-aggregator/internal/adapter"
	"github.com/fc-gallery/nft-aggregator/internal/logger"
)

// Options configures a Cache
type Options struct {
	// Version is the schema version tag; entries written under a different
	// version are unreadable
	Version int
	// LoaderTimeout bounds a single loader invocation. Loaders run on a
	// context detached from the caller so a canceled request still
	// populates the cache.
	LoaderTimeout time.Duration
	// SweepInterval is how often expired entries are reclaimed; zero
	// disables the background sweep (expiry is still enforced lazily on
	// read)
	SweepInterval time.Duration
	// Mirror is an optional persistent tier consulted on memory miss and
	// written through on loader success
	Mirror Mirror
	// Clock defaults to the real clock
	Clock adapter.Clock
}

// Mirror is a persistent second tier sharing the in-memory keys and TTLs.
// Implementations must honor the version tag: a stored entry with a
// different version is a miss.
type Mirror interface {
	Get(ctx context.Context, key string, version int, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, version int, value interface{}, ttl time.Duration) error
}

type entry struct {
	value      interface{}
	insertedAt time.Time
	ttl        time.Duration
	version    int
}

// Cache is an in-memory TTL store with a version tag and per-key
// single-flight loading. It is the only mutable state shared between
// requests.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	version int

	group         singleflight.Group
	loaderTimeout time.Duration
	mirror        Mirror
	clock         adapter.Clock

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache and starts its sweep goroutine when configured
func New(opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = adapter.NewClock()
	}
	if opts.LoaderTimeout <= 0 {
		opts.LoaderTimeout = 15 * time.Second
	}
	c := &Cache{
		entries:       make(map[string]entry),
		version:       opts.Version,
		loaderTimeout: opts.LoaderTimeout,
		mirror:        opts.Mirror,
		clock:         opts.Clock,
		stop:          make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go c.sweepLoop(opts.SweepInterval)
	}
	return c
}

// Get returns the stored value when present, unexpired, and written under
// the current version
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	version := c.version
	c.mu.RUnlock()

	if !ok || e.version != version || c.clock.Since(e.insertedAt) > e.ttl {
		return nil, false
	}
	return e.value, true
}

// Set replaces any prior entry under the key
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{
		value:      value,
		insertedAt: c.clock.Now(),
		ttl:        ttl,
		version:    c.version,
	}
	c.mu.Unlock()
}

// Delete removes an entry
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Version returns the current schema version tag
func (c *Cache) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// BumpVersion invalidates the entire store
func (c *Cache) BumpVersion() {
	c.mu.Lock()
	c.version++
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of resident entries, expired or not
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the sweep goroutine
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if e.version != c.version || c.clock.Since(e.insertedAt) > e.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		logger.Debug("cache sweep reclaimed entries", zap.Int("removed", removed))
	}
}

type flightResult struct {
	value interface{}
}

// GetOrCompute returns the cached value under key, or invokes loader exactly
// once across concurrent callers and caches its result. Loader failures
// propagate to every waiter and nothing is cached (no negative caching);
// the next caller triggers a fresh load.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	var zero T

	if value, ok := c.Get(key); ok {
		if typed, ok := value.(T); ok {
			return typed, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// A concurrent flight may have populated the entry between our
		// miss and this call
		if value, ok := c.Get(key); ok {
			return flightResult{value: value}, nil
		}

		// The loader outlives the requesting context so its result is
		// cached even when the caller disconnects mid-flight
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loaderTimeout)
		defer cancel()

		if c.mirror != nil {
			var mirrored T
			ok, err := c.mirror.Get(loadCtx, key, c.Version(), &mirrored)
			if err != nil {
				logger.Warn("cache mirror read failed", zap.String("key", key), zap.Error(err))
			} else if ok {
				c.Set(key, mirrored, ttl)
				return flightResult{value: mirrored}, nil
			}
		}

		value, err := loader(loadCtx)
		if err != nil {
			return flightResult{}, err
		}
		c.Set(key, value, ttl)

		if c.mirror != nil {
			if err := c.mirror.Set(loadCtx, key, c.Version(), value, ttl); err != nil {
				// persistence degrades silently to miss
				logger.Warn("cache mirror write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return flightResult{value: value}, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		fr := res.Val.(flightResult)
		typed, ok := fr.value.(T)
		if !ok {
			// key collision across value types; drop the stale entry and
			// reload through the same single-flight path so the result is
			// cached like any other load
			c.Delete(key)
			return GetOrCompute(ctx, c, key, ttl, loader)
		}
		return typed, nil
	}
}
