// Package session caches table snapshots per client session.
//
// A table is loaded from the backing store at most once per session and
// generation. Every write through the cache bumps that table's generation,
// so all sessions reload it on their next access.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"ledger/internal/core"
	ports "ledger/internal/sheets"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

type ctxKey struct{}

// WithID attaches a session id to ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext returns the session id carried by ctx, if any.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Cache is a ports.Store that serves loads from a per-session cache.
// Calls without a session id go straight to the store.
type Cache struct {
	store ports.Store
	items *gocache.Cache
	group singleflight.Group

	mu   sync.Mutex
	gens map[core.TableName]uint64
}

var _ ports.Store = (*Cache)(nil)

// New wraps store. Entries expire after ttl; ttl <= 0 defaults to 30 minutes.
func New(store ports.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Cache{
		store: store,
		items: gocache.New(ttl, 2*ttl),
		gens:  make(map[core.TableName]uint64),
	}
}

func (c *Cache) generation(t core.TableName) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[t]
}

// Invalidate forces every session to reload t.
func (c *Cache) Invalidate(t core.TableName) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[t]++
	return c.gens[t]
}

// Flush drops every cached entry.
func (c *Cache) Flush() {
	c.items.Flush()
}

// Close closes the wrapped store when it holds resources.
func (c *Cache) Close() error {
	c.Flush()
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Len reports the number of cached entries, including stale generations
// that have not expired yet.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

func key(id string, t core.TableName, gen uint64) string {
	return fmt.Sprintf("%s|%s|%d", id, t, gen)
}

func (c *Cache) Load(ctx context.Context, t core.TableName) (core.Table, error) {
	id, ok := IDFromContext(ctx)
	if !ok {
		return c.store.Load(ctx, t)
	}
	k := key(id, t, c.generation(t))
	if v, found := c.items.Get(k); found {
		return v.(core.Table).Clone(), nil
	}
	v, err, _ := c.group.Do(k, func() (any, error) {
		tbl, err := c.store.Load(ctx, t)
		if err != nil {
			return nil, err
		}
		c.items.SetDefault(k, tbl)
		return tbl, nil
	})
	if err != nil {
		return core.Table{}, err
	}
	return v.(core.Table).Clone(), nil
}

// written invalidates t and primes the writer's session with the result.
func (c *Cache) written(ctx context.Context, t core.TableName, tbl core.Table) {
	gen := c.Invalidate(t)
	if id, ok := IDFromContext(ctx); ok {
		c.items.SetDefault(key(id, t, gen), tbl.Clone())
	}
}

func (c *Cache) Append(ctx context.Context, t core.TableName, row core.Row) (core.Table, error) {
	tbl, err := c.store.Append(ctx, t, row)
	if err != nil {
		return core.Table{}, err
	}
	c.written(ctx, t, tbl)
	return tbl, nil
}

func (c *Cache) Replace(ctx context.Context, t core.TableName, rows []core.Row, expectedVersion string) (core.Table, error) {
	tbl, err := c.store.Replace(ctx, t, rows, expectedVersion)
	if err != nil {
		return core.Table{}, err
	}
	c.written(ctx, t, tbl)
	return tbl, nil
}

func (c *Cache) UpdateRow(ctx context.Context, t core.TableName, index int, row core.Row, expectedVersion string) (core.Table, error) {
	tbl, err := c.store.UpdateRow(ctx, t, index, row, expectedVersion)
	if err != nil {
		return core.Table{}, err
	}
	c.written(ctx, t, tbl)
	return tbl, nil
}

func (c *Cache) Archive(ctx context.Context, t core.TableName, at time.Time) (ports.ArchiveInfo, error) {
	info, err := c.store.Archive(ctx, t, at)
	if err != nil {
		return ports.ArchiveInfo{}, err
	}
	c.Invalidate(t)
	return info, nil
}

func (c *Cache) ListArchives(ctx context.Context, t core.TableName) ([]ports.ArchiveInfo, error) {
	return c.store.ListArchives(ctx, t)
}

func (c *Cache) ReadArchive(ctx context.Context, t core.TableName, id string) (core.Table, error) {
	return c.store.ReadArchive(ctx, t, id)
}
