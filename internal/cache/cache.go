// Package cache holds a periodically refreshed in-memory snapshot of the
// document store so query handlers never touch the database directly.
package cache

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loginsight/loginsight/internal/model"
)

const (
	// DefaultTTL is how long a snapshot is considered fresh.
	DefaultTTL = 10 * time.Second

	// DefaultMaxLogs bounds the cached log window.
	DefaultMaxLogs = 2000

	// DefaultMaxInsights bounds the cached insight window.
	DefaultMaxInsights = 500
)

// Snapshot is one immutable view of the store, newest-first.
type Snapshot struct {
	Logs        []*model.LogRecord
	Insights    []*model.InsightSnapshot
	RefreshedAt time.Time
}

// Config holds tunable cache parameters.
type Config struct {
	TTL         time.Duration
	MaxLogs     int
	MaxInsights int
}

// Cache is a read-through snapshot cache. Readers always get a usable
// snapshot: a failed refresh degrades to empty data rather than an error,
// so the query surface stays up when the store is down.
type Cache struct {
	reader model.DocumentReader
	conf   Config

	snap atomic.Pointer[Snapshot]
	mu   sync.Mutex // serializes refreshes
	now  func() time.Time
}

// New creates a cache over reader. The initial snapshot is empty and stale,
// so the first access triggers a refresh.
func New(reader model.DocumentReader, conf ...Config) *Cache {
	c := Config{TTL: DefaultTTL, MaxLogs: DefaultMaxLogs, MaxInsights: DefaultMaxInsights}
	if len(conf) > 0 {
		if conf[0].TTL > 0 {
			c.TTL = conf[0].TTL
		}
		if conf[0].MaxLogs > 0 {
			c.MaxLogs = conf[0].MaxLogs
		}
		if conf[0].MaxInsights > 0 {
			c.MaxInsights = conf[0].MaxInsights
		}
	}
	cache := &Cache{reader: reader, conf: c, now: time.Now}
	cache.snap.Store(&Snapshot{})
	return cache
}

// Get returns the current snapshot, refreshing first when it has gone stale.
func (c *Cache) Get(ctx context.Context) *Snapshot {
	c.Refresh(ctx, false)
	return c.snap.Load()
}

// Current returns the snapshot as-is without checking freshness.
func (c *Cache) Current() *Snapshot {
	return c.snap.Load()
}

// Refresh reloads the snapshot from the store. When force is false the
// reload is skipped while the current snapshot is still fresh. Concurrent
// callers coalesce onto one reload.
func (c *Cache) Refresh(ctx context.Context, force bool) {
	if !force && c.fresh() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	if !force && c.fresh() {
		return
	}

	next := &Snapshot{RefreshedAt: c.now()}

	logs, err := c.reader.RecentLogs(ctx, c.conf.MaxLogs)
	if err != nil {
		log.Printf("cache: log refresh failed, serving empty window: %v", err)
	} else {
		next.Logs = logs
	}

	insights, err := c.reader.RecentInsights(ctx, c.conf.MaxInsights)
	if err != nil {
		log.Printf("cache: insight refresh failed, serving empty window: %v", err)
	} else {
		next.Insights = insights
	}

	c.snap.Store(next)
}

func (c *Cache) fresh() bool {
	snap := c.snap.Load()
	return !snap.RefreshedAt.IsZero() && c.now().Sub(snap.RefreshedAt) < c.conf.TTL
}
