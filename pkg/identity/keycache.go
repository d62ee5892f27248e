package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrKeyNotFound is returned when the provider's key set does not contain
// the requested key id, even after a forced refresh.
var ErrKeyNotFound = errors.New("signing key not found")

// UnavailableError indicates the provider could not be reached and no cached
// key set exists to fall back on. Callers should map it to a 503, not a 403:
// the caller's token was never evaluated.
type UnavailableError struct {
	Cause error
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("identity provider unavailable: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// Key is one signing key from the provider's JWKS document.
type Key struct {
	KID string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet is the provider's published key set.
type KeySet struct {
	Keys []Key `json:"keys"`
}

// FetchFunc retrieves the current key set from the provider.
type FetchFunc func(ctx context.Context) (*KeySet, error)

// KeyCacheConfig configures the signing-key cache.
type KeyCacheConfig struct {
	// TTL is how long a fetched key set is served without refresh.
	// Default: 5 minutes
	TTL time.Duration
}

// DefaultKeyCacheConfig returns the default key cache configuration.
func DefaultKeyCacheConfig() KeyCacheConfig {
	return KeyCacheConfig{TTL: 5 * time.Minute}
}

// KeyCache caches the provider's signing keys with a TTL.
//
// Lookup semantics:
//
//   - A fresh cached set is served without contacting the provider.
//   - A miss for a specific key id forces a refresh even when the set is
//     fresh, so newly rotated keys are picked up immediately.
//   - When a refresh fails but a previous set exists, the stale set is
//     served; availability wins over freshness for keys that still work.
//   - When a refresh fails and nothing is cached, the lookup fails closed
//     with an UnavailableError.
type KeyCache struct {
	fetch  FetchFunc
	config KeyCacheConfig
	logger *slog.Logger

	mu        sync.Mutex
	keys      *KeySet
	fetchedAt time.Time
}

// NewKeyCache creates a key cache backed by the given fetch function.
func NewKeyCache(fetch FetchFunc, config KeyCacheConfig) *KeyCache {
	if config.TTL <= 0 {
		config.TTL = DefaultKeyCacheConfig().TTL
	}
	return &KeyCache{
		fetch:  fetch,
		config: config,
		logger: slog.Default().With("component", "identity.keycache"),
	}
}

// Key returns the signing key with the given id.
func (c *KeyCache) Key(ctx context.Context, kid string) (*Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := c.keys != nil && time.Since(c.fetchedAt) < c.config.TTL
	if fresh {
		if key := findKey(c.keys, kid); key != nil {
			return key, nil
		}
		// Fresh set without the key: force a refresh, the provider may
		// have rotated.
	}

	if err := c.refreshLocked(ctx); err != nil {
		if c.keys == nil {
			return nil, &UnavailableError{Cause: err}
		}
		c.logger.Warn("key refresh failed, serving cached set",
			"error", err,
			"cached_age", time.Since(c.fetchedAt).Round(time.Second))
	}

	if key := findKey(c.keys, kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Refresh forces a fetch of the key set regardless of freshness.
func (c *KeyCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// refreshLocked fetches the key set. Caller holds the lock.
func (c *KeyCache) refreshLocked(ctx context.Context) error {
	keys, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	c.keys = keys
	c.fetchedAt = time.Now()
	c.logger.Debug("signing keys refreshed", "key_count", len(keys.Keys))
	return nil
}

func findKey(set *KeySet, kid string) *Key {
	if set == nil {
		return nil
	}
	for i := range set.Keys {
		if set.Keys[i].KID == kid {
			return &set.Keys[i]
		}
	}
	return nil
}
