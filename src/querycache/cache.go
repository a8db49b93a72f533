// Package querycache keeps the latest REST answers per query key and knows when they went stale.
package querycache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trading-console/src/helpers"
	"trading-console/src/logger"
	"trading-console/src/metrics"
	"trading-console/src/models"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads the value of one query key from the backend
type Fetcher func(ctx context.Context) (interface{}, error)

// fetchTimeout bounds one shared fetch
const fetchTimeout = 30 * time.Second

// Entry is a cached answer as seen by readers
type Entry struct {
	Value     interface{} `json:"value"`
	FetchedAt time.Time   `json:"fetched_at"`
	Stale     bool        `json:"stale"`
	Err       string      `json:"error,omitempty"`
}

type entry struct {
	value     interface{}
	fetchedAt time.Time
	stale     bool
	err       error
}

// Cache is a key-based fetch-and-cache. It implements interfaces.IInvalidator.
type Cache struct {
	Logger *logger.Logger

	staleTime    time.Duration
	pollInterval time.Duration
	refetch      bool

	group singleflight.Group

	mu        sync.RWMutex
	fetchers  map[string]Fetcher
	entries   map[string]*entry
	versions  map[string]uint64
	listeners []func(key string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pollMu   sync.Mutex
	pollStop chan struct{}

	now func() time.Time
}

// -----------------------------------------------------------------------------

func NewCache(cfg *models.MConfig, log *logger.Logger) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		Logger:       log,
		staleTime:    time.Duration(cfg.Cache.StaleTimeMs) * time.Millisecond,
		pollInterval: time.Duration(cfg.Cache.PollIntervalMs) * time.Millisecond,
		refetch:      cfg.Cache.RefetchOnInvalidate,
		fetchers:     make(map[string]Fetcher),
		entries:      make(map[string]*entry),
		versions:     make(map[string]uint64),
		ctx:          ctx,
		cancel:       cancel,
		now:          time.Now,
	}
}

// Register binds a fetcher to key, replacing any previous one
func (c *Cache) Register(key string, fetch Fetcher) {
	if fetch == nil {
		panic("querycache: nil fetcher for " + key)
	}
	c.mu.Lock()
	c.fetchers[key] = fetch
	c.mu.Unlock()
}

// OnUpdate registers fn to be told whenever key changes (refreshed or invalidated)
func (c *Cache) OnUpdate(fn func(key string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Keys returns the registered keys, sorted
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.fetchers))
	for k := range c.fetchers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// Get returns the cached value of key, fetching it when missing, stale or older than the stale time.
// Concurrent fetches of one key are collapsed into one request.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.RLock()
	e := c.entries[key]
	fetch := c.fetchers[key]
	c.mu.RUnlock()

	if fetch == nil {
		return nil, helpers.NewValidationError(fmt.Sprintf("unknown query key %q", key), nil)
	}
	if e != nil && e.err == nil && !e.stale && c.fresh(e) {
		return e.value, nil
	}
	return c.fetch(ctx, key, fetch)
}

// Peek returns what is cached for key without fetching
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	out := Entry{Value: e.value, FetchedAt: e.fetchedAt, Stale: e.stale || !c.fresh(e)}
	if e.err != nil {
		out.Err = e.err.Error()
	}
	return out, true
}

func (c *Cache) fresh(e *entry) bool {
	return c.staleTime <= 0 || c.now().Sub(e.fetchedAt) < c.staleTime
}

// -----------------------------------------------------------------------------

// fetch joins or starts the shared fetch of key. The shared fetch runs under the
// cache's own context, so one caller giving up only ends that caller's wait.
func (c *Cache) fetch(ctx context.Context, key string, fetch Fetcher) (interface{}, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.mu.RLock()
		version := c.versions[key]
		c.mu.RUnlock()

		fetchCtx, cancel := context.WithTimeout(c.ctx, fetchTimeout)
		defer cancel()

		value, err := fetch(fetchCtx)
		c.store(key, version, value, err)
		return value, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// store records a fetch result. An invalidation that arrived while the fetch was in flight
// keeps the entry stale.
func (c *Cache) store(key string, version uint64, value interface{}, err error) {
	c.mu.Lock()
	e := c.entries[key]
	if e == nil {
		e = &entry{}
		c.entries[key] = e
	}
	if err != nil {
		e.err = err
		metrics.QueryFetches.WithLabelValues(key, "error").Inc()
	} else {
		e.value = value
		e.err = nil
		e.fetchedAt = c.now()
		e.stale = c.versions[key] != version
		metrics.QueryFetches.WithLabelValues(key, "ok").Inc()
	}
	listeners := c.listeners
	c.mu.Unlock()

	if err != nil {
		c.Logger.Warning("Fetching %s failed: %v", key, err)
		return
	}
	c.notify(listeners, key)
}

func (c *Cache) notify(listeners []func(string), key string) {
	for _, fn := range listeners {
		if err := helpers.SafeCall(func() { fn(key) }); err != nil {
			c.Logger.Error("Cache listener for %s failed: %v", key, err)
		}
	}
}

// -----------------------------------------------------------------------------
// Invalidation
// -----------------------------------------------------------------------------

// Invalidate marks key stale. With refetch enabled a registered key is refreshed in the background.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	c.versions[key]++
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
	fetch := c.fetchers[key]
	listeners := c.listeners
	c.mu.Unlock()

	c.notify(listeners, key)

	if c.refetch && fetch != nil {
		c.background(key, fetch)
	}
}

func (c *Cache) background(key string, fetch Fetcher) {
	if c.ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.fetch(c.ctx, key, fetch)
	}()
}

// -----------------------------------------------------------------------------
// Polling
// -----------------------------------------------------------------------------

// SetPolling turns periodic refresh of every fetched key on or off.
// It is used while the event stream is down and invalidations cannot arrive.
func (c *Cache) SetPolling(on bool) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	if !on {
		if c.pollStop != nil {
			close(c.pollStop)
			c.pollStop = nil
		}
		return
	}
	if c.pollStop != nil || c.pollInterval <= 0 || c.ctx.Err() != nil {
		return
	}

	stop := make(chan struct{})
	c.pollStop = stop
	c.wg.Add(1)
	go c.poll(stop)
}

// Polling reports whether periodic refresh is running
func (c *Cache) Polling() bool {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	return c.pollStop != nil
}

func (c *Cache) poll(stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.refreshFetched()
		}
	}
}

// refreshFetched refetches every key that has been read at least once
func (c *Cache) refreshFetched() {
	c.mu.RLock()
	pending := make(map[string]Fetcher, len(c.entries))
	for key := range c.entries {
		if f := c.fetchers[key]; f != nil {
			pending[key] = f
		}
	}
	c.mu.RUnlock()

	for key, f := range pending {
		c.fetch(c.ctx, key, f)
	}
}

// -----------------------------------------------------------------------------

// Close stops polling and waits for background fetches
func (c *Cache) Close() {
	c.SetPolling(false)
	c.cancel()
	c.wg.Wait()
}
