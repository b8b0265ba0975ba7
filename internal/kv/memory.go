package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryGeoCache is a process-local GeoCache.
type MemoryGeoCache struct {
	mu sync.RWMutex
	m  map[string]Location
}

func NewMemoryGeoCache() *MemoryGeoCache {
	return &MemoryGeoCache{m: make(map[string]Location)}
}

func (c *MemoryGeoCache) Get(_ context.Context, ip string) (Location, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.m[ip]
	return loc, ok, nil
}

func (c *MemoryGeoCache) Set(_ context.Context, ip string, loc Location) error {
	if !loc.Complete() {
		return nil
	}
	c.mu.Lock()
	c.m[ip] = loc
	c.mu.Unlock()
	return nil
}

// Len returns the number of cached IPs.
func (c *MemoryGeoCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

type dayEntry struct {
	day     string
	expires time.Time
}

// MemoryFirstVisitStore is a process-local first-visit store honouring
// FirstVisitTTL against its clock.
type MemoryFirstVisitStore struct {
	mu  sync.Mutex
	m   map[string]dayEntry
	now func() time.Time
}

// NewMemoryFirstVisitStore returns an empty store. now defaults to time.Now.
func NewMemoryFirstVisitStore(now func() time.Time) *MemoryFirstVisitStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryFirstVisitStore{m: make(map[string]dayEntry), now: now}
}

func (f *MemoryFirstVisitStore) FirstVisitDay(_ context.Context, visitorID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.m[visitorID]
	if !ok {
		return "", false, nil
	}
	if !f.now().Before(e.expires) {
		delete(f.m, visitorID)
		return "", false, nil
	}
	return e.day, true, nil
}

func (f *MemoryFirstVisitStore) SetFirstVisitDay(_ context.Context, visitorID, day string) error {
	f.mu.Lock()
	f.m[visitorID] = dayEntry{day: day, expires: f.now().Add(FirstVisitTTL)}
	f.mu.Unlock()
	return nil
}
