package weather

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxAge is how long a snapshot is served without refetching.
const DefaultMaxAge = 10 * time.Minute

// CacheStats counts cache outcomes since construction.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Fetches uint64 `json:"fetches"`
	Errors  uint64 `json:"errors"`
}

// Cache holds the latest snapshot per location key and refreshes it through
// the Fetcher when it is missing or older than the caller's maxAge.
type Cache struct {
	fetcher   Fetcher
	publisher Publisher
	now       Clock

	mu      sync.RWMutex
	entries map[LocationKey]*WeatherSnapshot

	inflight singleflight.Group

	hits, misses, fetches, errs atomic.Uint64
}

// NewCache creates a Cache. publisher may be nil.
func NewCache(fetcher Fetcher, publisher Publisher) *Cache {
	return &Cache{
		fetcher:   fetcher,
		publisher: publisher,
		now:       time.Now,
		entries:   make(map[LocationKey]*WeatherSnapshot),
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *Cache) WithClock(now Clock) *Cache {
	c.now = now
	return c
}

// Get returns the snapshot for coords, fetching when there is none or it is
// older than maxAge; maxAge <= 0 always fetches. Concurrent Gets for the same
// key share one fetch. If the caller's ctx ends first Get returns ctx.Err(),
// but the fetch still completes and populates the cache. On fetch failure the previous snapshot is kept and
// the error is returned without notifying subscribers.
func (c *Cache) Get(ctx context.Context, coords Coordinates, maxAge time.Duration) (WeatherSnapshot, error) {
	if err := coords.Validate(); err != nil {
		return WeatherSnapshot{}, err
	}
	key := KeyFor(coords)

	if snap, ok := c.fresh(key, maxAge); ok {
		c.hits.Add(1)
		return snap.Clone(), nil
	}
	c.misses.Add(1)

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(string(key), func() (_ interface{}, err error) {
		// DoChan re-panics on its own goroutine, where nothing can recover.
		defer func() {
			if r := recover(); r != nil {
				c.errs.Add(1)
				log.Printf("ERROR: cache: fetch from %s panicked for %s: %v", c.fetcher.Name(), key, r)
				err = &ProviderError{Provider: c.fetcher.Name(), Reason: "fetch panicked", Err: fmt.Errorf("%v", r)}
			}
		}()

		// A fetch for this key may have finished between our lookup and joining the group.
		if snap, ok := c.fresh(key, maxAge); ok {
			return snap, nil
		}
		return c.refresh(fetchCtx, key, coords)
	})

	select {
	case <-ctx.Done():
		return WeatherSnapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return WeatherSnapshot{}, res.Err
		}
		return res.Val.(*WeatherSnapshot).Clone(), nil
	}
}

// Peek returns the stored snapshot regardless of age.
func (c *Cache) Peek(coords Coordinates) (WeatherSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.entries[KeyFor(coords)]
	if !ok {
		return WeatherSnapshot{}, false
	}
	return snap.Clone(), true
}

// Len returns the number of cached locations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Fetches: c.fetches.Load(),
		Errors:  c.errs.Load(),
	}
}

func (c *Cache) fresh(key LocationKey, maxAge time.Duration) (*WeatherSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.entries[key]
	if !ok || maxAge <= 0 || snap.Age(c.now()) > maxAge {
		return nil, false
	}
	return snap, true
}

func (c *Cache) refresh(ctx context.Context, key LocationKey, coords Coordinates) (*WeatherSnapshot, error) {
	c.fetches.Add(1)

	forecast, err := c.fetcher.Fetch(ctx, coords)
	if err != nil {
		c.errs.Add(1)
		log.Printf("cache: fetch from %s failed for %s: %v", c.fetcher.Name(), key, err)
		return nil, err
	}
	if forecast.ProviderName == "" {
		forecast.ProviderName = c.fetcher.Name()
	}

	snap, err := BuildSnapshot(coords, forecast, c.now())
	if err != nil {
		c.errs.Add(1)
		log.Printf("cache: unusable response from %s for %s: %v", c.fetcher.Name(), key, err)
		return nil, err
	}

	stored := &snap
	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()

	if c.publisher != nil {
		c.publisher.Publish(key, stored.Clone())
	}
	return stored, nil
}
