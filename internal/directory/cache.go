package directory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// cacheEntry holds a resolved ID until expiry. Misses are not cached, so
// a token created after a failed lookup resolves on the next attempt.
type cacheEntry struct {
	id      string
	expires time.Time
}

// CachedResolver wraps another Resolver with a TTL cache keyed by
// resource kind and token. It is safe for concurrent use.
type CachedResolver struct {
	next Resolver
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCachedResolver wraps next with a TTL cache. A zero ttl defaults to
// five minutes.
func NewCachedResolver(next Resolver, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedResolver) DeviceID(ctx context.Context, token string) (string, error) {
	return c.resolve(ctx, "device", token, c.next.DeviceID)
}

func (c *CachedResolver) DeviceTypeID(ctx context.Context, token string) (string, error) {
	return c.resolve(ctx, "device-type", token, c.next.DeviceTypeID)
}

func (c *CachedResolver) AssignmentID(ctx context.Context, token string) (string, error) {
	return c.resolve(ctx, "assignment", token, c.next.AssignmentID)
}

func (c *CachedResolver) CustomerID(ctx context.Context, token string) (string, error) {
	return c.resolve(ctx, "customer", token, c.next.CustomerID)
}

func (c *CachedResolver) AreaID(ctx context.Context, token string) (string, error) {
	return c.resolve(ctx, "area", token, c.next.AreaID)
}

func (c *CachedResolver) AssetID(ctx context.Context, token string) (string, error) {
	return c.resolve(ctx, "asset", token, c.next.AssetID)
}

// Invalidate drops any cached entry for the given kind and token.
func (c *CachedResolver) Invalidate(kind, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, kind+"/"+token)
}

func (c *CachedResolver) resolve(ctx context.Context, kind, token string, fn func(context.Context, string) (string, error)) (string, error) {
	key := kind + "/" + token

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.id, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	id, err := fn(ctx, token)
	if err != nil {
		// Serve a stale entry rather than failing when the backend is down.
		if ok && errors.Is(err, ErrUnavailable) {
			return entry.id, nil
		}
		return "", err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{id: id, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return id, nil
}
