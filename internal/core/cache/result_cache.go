// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache provides the bounded, time-expiring store of completed
// artifacts, keyed by request fingerprint.
//
// Logic Flow:
//  1. Entries live in a map for O(1) lookup and in a doubly linked list
//     ordered by recency (front = most recently used).
//  2. Get returns an entry only while now < expiresAt. An expired entry found
//     on access is removed and reported as absent. A hit moves the entry to
//     the front.
//  3. Put stores the entry with an absolute expiry of now + ttl and moves it
//     to the front. When a new key arrives at capacity, expired entries are
//     purged first, then the least recently used entry is evicted.
//  4. Sweep (and the optional janitor goroutine) remove expired entries with
//     the same rule as Get.
//
// All operations run under a single mutex, so recency order and size are
// always consistent. Time comes from an injected clock.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/Akash-916024/ai-note-taker/internal/core/clock"
	"github.com/Akash-916024/ai-note-taker/internal/core/model"
)

// Defaults used when the configuration does not override them.
const (
	DefaultCapacity = 100
	DefaultTTL      = time.Hour
)

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Puts        int64 `json:"puts"`
	Evictions   int64 `json:"evictions"`   // Live entries removed to make room.
	Expirations int64 `json:"expirations"` // Expired entries removed on access, put or sweep.
	Size        int   `json:"size"`
	Capacity    int   `json:"capacity"`
}

// Entry is a cached artifact and its lifetime.
type Entry struct {
	Fingerprint model.Fingerprint
	Artifact    *model.Artifact
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// ResultCache is an LRU cache with per-entry absolute expiry.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	clock    clock.Clock
	entries  map[model.Fingerprint]*list.Element
	order    *list.List
	stats    Stats

	hitCounter      metric.Int64Counter
	missCounter     metric.Int64Counter
	evictionCounter metric.Int64Counter
}

// Option customizes a ResultCache.
type Option func(*ResultCache)

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *ResultCache) { c.clock = clk }
}

// New creates a cache holding at most capacity entries, whose default TTL is
// ttl. Non-positive values fall back to the defaults.
func New(capacity int, ttl time.Duration, opts ...Option) *ResultCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &ResultCache{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock.Real{},
		entries:  make(map[model.Fingerprint]*list.Element, capacity),
		order:    list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("github.com/Akash-916024/ai-note-taker")
	c.hitCounter, _ = meter.Int64Counter("result_cache.counter.hit")
	c.missCounter, _ = meter.Int64Counter("result_cache.counter.miss")
	c.evictionCounter, _ = meter.Int64Counter("result_cache.counter.eviction")
	return c
}

// TTL returns the default time-to-live.
func (c *ResultCache) TTL() time.Duration { return c.ttl }

// Capacity returns the maximum number of entries.
func (c *ResultCache) Capacity() int { return c.capacity }

// Get returns the artifact cached for fp if it has not expired.
func (c *ResultCache) Get(fp model.Fingerprint) (*model.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fp]
	if !ok {
		c.stats.Misses++
		c.missCounter.Add(context.Background(), 1)
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.expired(c.clock.Now()) {
		c.removeElement(el)
		c.stats.Expirations++
		c.stats.Misses++
		c.missCounter.Add(context.Background(), 1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	c.hitCounter.Add(context.Background(), 1)
	return entry.Artifact, true
}

// Put stores artifact under fp, expiring ttl from now. A non-positive ttl
// uses the cache default.
func (c *ResultCache) Put(fp model.Fingerprint, artifact *model.Artifact, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.stats.Puts++
	if el, ok := c.entries[fp]; ok {
		entry := el.Value.(*Entry)
		entry.Artifact = artifact
		entry.CreatedAt = now
		entry.ExpiresAt = now.Add(ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.stats.Expirations += int64(c.purgeExpired(now))
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		evicted := oldest.Value.(*Entry)
		c.removeElement(oldest)
		c.stats.Evictions++
		c.evictionCounter.Add(context.Background(), 1)
		slog.Debug("evicted cache entry", "fingerprint", evicted.Fingerprint.String())
	}

	entry := &Entry{Fingerprint: fp, Artifact: artifact, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	c.entries[fp] = c.order.PushFront(entry)
}

// Invalidate removes the entry for fp, reporting whether one was present.
func (c *ResultCache) Invalidate(fp model.Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[fp]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Sweep removes every expired entry and returns how many were removed.
func (c *ResultCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.purgeExpired(c.clock.Now())
	c.stats.Expirations += int64(n)
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the stored fingerprints from most to least recently used.
func (c *ResultCache) Keys() []model.Fingerprint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Fingerprint, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*Entry).Fingerprint)
	}
	return out
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Size = c.order.Len()
	out.Capacity = c.capacity
	return out
}

// StartJanitor sweeps expired entries every interval until ctx ends. The
// returned channel is closed once the janitor goroutine has exited.
func (c *ResultCache) StartJanitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					slog.Debug("swept expired cache entries", "count", n)
				}
			}
		}
	}()
	return done
}

// purgeExpired must be called with the lock held.
func (c *ResultCache) purgeExpired(now time.Time) int {
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*Entry).expired(now) {
			c.removeElement(el)
			n++
		}
		el = prev
	}
	return n
}

func (c *ResultCache) removeElement(el *list.Element) {
	entry := c.order.Remove(el).(*Entry)
	delete(c.entries, entry.Fingerprint)
}
