package enrichment

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a surface temperature stays fresh.
const DefaultCacheTTL = 30 * time.Minute

// Cache is a coordinate-keyed temperature store with expiry.
type Cache interface {
	Get(ctx context.Context, c Coordinate) (float64, bool)
	Set(ctx context.Context, c Coordinate, tempC float64, ttl time.Duration)
}

// CachedSource serves cached readings and forwards only misses to Source.
// Nil temperatures are never cached, so failed lookups are retried next time.
type CachedSource struct {
	Source   TemperatureSource
	Cache    Cache
	TTL      time.Duration
	Recorder Recorder
}

// NewCachedSource decorates source with cache. A zero ttl takes DefaultCacheTTL.
func NewCachedSource(source TemperatureSource, cache Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{Source: source, Cache: cache, TTL: ttl, Recorder: nopRecorder{}}
}

// Temperatures implements TemperatureSource. Readings are in input order.
func (s *CachedSource) Temperatures(ctx context.Context, coords []Coordinate) ([]Reading, error) {
	recorder := s.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	readings := make([]Reading, len(coords))
	var misses []Coordinate
	missIdx := make(map[Coordinate][]int)

	for i, c := range coords {
		readings[i] = Reading{Lat: c.Lat, Lon: c.Lon}
		if v, ok := s.Cache.Get(ctx, c); ok {
			recorder.CacheLookup(true)
			temp := v
			readings[i].TemperatureC = &temp
			continue
		}
		recorder.CacheLookup(false)
		if _, pending := missIdx[c]; !pending {
			misses = append(misses, c)
		}
		missIdx[c] = append(missIdx[c], i)
	}

	if len(misses) == 0 {
		return readings, nil
	}

	fetched, err := s.Source.Temperatures(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("temperature lookup: %w", err)
	}

	for _, r := range fetched {
		if r.TemperatureC == nil {
			continue
		}
		c := Coordinate{Lat: r.Lat, Lon: r.Lon}
		idx, ok := missIdx[c]
		if !ok {
			continue
		}
		s.Cache.Set(ctx, c, *r.TemperatureC, s.TTL)
		for _, i := range idx {
			temp := *r.TemperatureC
			readings[i].TemperatureC = &temp
		}
	}

	return readings, nil
}

type memoryEntry struct {
	value   float64
	expires time.Time
}

// MemoryCache is an in-process Cache guarded by a mutex.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[Coordinate]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[Coordinate]memoryEntry),
		now:     time.Now,
	}
}

// Get returns a fresh value. Expired entries are removed on access.
func (m *MemoryCache) Get(_ context.Context, c Coordinate) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[c]
	if !ok {
		return 0, false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, c)
		return 0, false
	}
	return e.value, true
}

// Set stores a value for ttl.
func (m *MemoryCache) Set(_ context.Context, c Coordinate, tempC float64, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[c] = memoryEntry{value: tempC, expires: m.now().Add(ttl)}
}

// Prune drops every expired entry and returns how many were removed.
func (m *MemoryCache) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for c, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, c)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet pruned.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
