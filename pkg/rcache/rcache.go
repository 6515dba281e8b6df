// Package rcache implements the engine's client-side read optimizations:
// a TTL-bounded cache for small files, and a sliding
// read-ahead window for large files, per spec §4.6. Both are keyed by
// file path and invalidated wholesale whenever the corresponding file is
// written or deleted.
package rcache

import (
	"sync"
	"time"
)

// SmallFileThreshold is the largest file size the whole-file cache will
// hold; anything bigger is served through the read-ahead Window instead.
const SmallFileThreshold = 3 << 20 // 3 MiB

// DefaultTTL bounds how long a cached small file is considered fresh
// without a write or explicit invalidation.
const DefaultTTL = 5 * time.Second

// DefaultWindowSize is the reference read-ahead span pulled per window
// miss for large files.
const DefaultWindowSize = 16 << 20 // 16 MiB

// DefaultWindowTTL bounds how long a filled read-ahead window is served
// without a write or explicit invalidation, mirroring DefaultTTL's role
// for the small-file cache (spec §4.6: "non-expired").
const DefaultWindowTTL = 5 * time.Second

// Cache holds whole-file contents for files at or below SmallFileThreshold,
// one slot per path, expiring entries after a fixed TTL.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
}

type entry struct {
	data    []byte
	expires time.Time
}

// New creates a Cache with the given TTL. A zero TTL uses DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: make(map[string]entry)}
}

// Get returns the cached contents for path, if present and unexpired.
func (c *Cache) Get(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, path)
		return nil, false
	}
	return e.data, true
}

// Put stores data for path, resetting its TTL.
func (c *Cache) Put(path string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = entry{data: data, expires: time.Now().Add(c.ttl)}
}

// Invalidate drops any cached entry for path; call it on any write or
// delete so a stale whole-file read is never served.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Window holds one contiguous, TTL-bounded read-ahead span per path for
// large files. It is stale-checked both against the current request range
// and against age, and is dropped on any write.
type Window struct {
	mu      sync.Mutex
	size    int64
	ttl     time.Duration
	windows map[string]span
}

type span struct {
	offset  int64
	data    []byte
	expires time.Time
}

// NewWindow creates a Window that fetches size bytes per miss, held for
// ttl before it must be refilled even if the requested range would
// otherwise hit. A zero or negative size uses DefaultWindowSize; a zero or
// negative ttl uses DefaultWindowTTL.
func NewWindow(size int64, ttl time.Duration) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	if ttl <= 0 {
		ttl = DefaultWindowTTL
	}
	return &Window{size: size, ttl: ttl, windows: make(map[string]span)}
}

// Size returns the configured read-ahead span length.
func (w *Window) Size() int64 { return w.size }

// Lookup reports whether [offset, offset+length) is fully covered by the
// currently held, unexpired window for path, returning the matching slice
// if so.
func (w *Window) Lookup(path string, offset, length int64) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.windows[path]
	if !ok {
		return nil, false
	}
	if time.Now().After(s.expires) {
		delete(w.windows, path)
		return nil, false
	}
	start := offset - s.offset
	end := start + length
	if start < 0 || end > int64(len(s.data)) {
		return nil, false
	}
	return s.data[start:end], true
}

// Fill installs a new window for path covering [offset, offset+len(data)),
// resetting its TTL.
func (w *Window) Fill(path string, offset int64, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.windows[path] = span{offset: offset, data: data, expires: time.Now().Add(w.ttl)}
}

// Invalidate drops the held window for path; call it on any write or
// delete.
func (w *Window) Invalidate(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.windows, path)
}
