// Package credential caches OAuth2 and static-bearer credentials for
// provider and channel adapters, refreshing them with a single in-flight
// request per adapter no matter how many callers race for a token.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Token is a cached credential plus its absolute expiry.
type Token struct {
	AccessToken string
	Expiry      time.Time
}

// expired reports whether the token should be refreshed now: refresh when
// there is no token, or now is within 60s of expiry.
func (t Token) expired(now time.Time) bool {
	if t.AccessToken == "" {
		return true
	}
	return now.After(t.Expiry.Add(-60 * time.Second))
}

// Refresher fetches a brand new token from the adapter's auth endpoint.
// Implementations are adapter-specific (OAuth2 client-credentials, a static
// API key exchange, etc.) and must not log the returned token.
type Refresher func(ctx context.Context) (Token, error)

// Cache caches one Token per adapter key, refreshing through a
// single-flight group so N concurrent callers on a cold cache produce
// exactly one call to the adapter's token endpoint.
type Cache struct {
	mu     sync.Mutex
	tokens map[string]Token
	group  singleflight.Group
}

// NewCache creates an empty credential Cache.
func NewCache() *Cache {
	return &Cache{tokens: make(map[string]Token)}
}

// AcquireAuthHeaders returns a valid Authorization header value for exactly
// one outbound call, refreshing through refresh if the cached token is
// missing or near expiry. Refresh failures surface as an error prefixed
// "authentication:" that wraps the refresher's error; it is not an
// errtax.Classified, so callers classify it themselves.
func (c *Cache) AcquireAuthHeaders(ctx context.Context, key string, refresh Refresher) (map[string]string, error) {
	tok, err := c.acquire(ctx, key, refresh)
	if err != nil {
		return nil, fmt.Errorf("authentication: acquiring token for %s: %w", key, err)
	}
	return map[string]string{
		"Authorization": "Bearer " + tok.AccessToken,
	}, nil
}

func (c *Cache) acquire(ctx context.Context, key string, refresh Refresher) (Token, error) {
	c.mu.Lock()
	tok, ok := c.tokens[key]
	c.mu.Unlock()

	if ok && !tok.expired(time.Now()) {
		return tok, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the group: another caller may have refreshed
		// while we were waiting to enter Do.
		c.mu.Lock()
		tok, ok := c.tokens[key]
		c.mu.Unlock()
		if ok && !tok.expired(time.Now()) {
			return tok, nil
		}

		fresh, err := refresh(ctx)
		if err != nil {
			return Token{}, err
		}

		c.mu.Lock()
		c.tokens[key] = fresh
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// InvalidateToken drops the cached token for key. The next AcquireAuthHeaders
// call for key will refresh. Callers invoke this after observing a 401 from
// the adapter.
func (c *Cache) InvalidateToken(key string) {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
}
