package api

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/wildalert/internal/api/auth"
	"github.com/tphakala/wildalert/internal/engine"
)

// ClientRegistry keeps one engine client per logged-in identity so focus
// survives between requests and is shared with that identity's streams.
// Idle entries expire after the configured TTL.
type ClientRegistry struct {
	engine *engine.Engine
	cache  *cache.Cache
}

// NewClientRegistry creates a registry. Expired entries are purged on access,
// so no janitor goroutine runs.
func NewClientRegistry(eng *engine.Engine, ttl time.Duration) *ClientRegistry {
	return &ClientRegistry{
		engine: eng,
		cache:  cache.New(ttl, 0),
	}
}

func registryKey(id auth.Identity) string {
	return id.ClientID + "|" + string(id.Role)
}

// For returns the client for id. Anonymous identities and tokens without a
// subject get a fresh client every time.
func (r *ClientRegistry) For(id auth.Identity) *engine.Client {
	if id.ClientID == "" || !id.Authenticated() {
		return r.engine.Client(id.Provider())
	}

	r.cache.DeleteExpired()
	key := registryKey(id)
	if v, ok := r.cache.Get(key); ok {
		// touch to extend the idle window
		r.cache.SetDefault(key, v)
		return v.(*engine.Client)
	}

	client := r.engine.Client(id.Provider())
	if err := r.cache.Add(key, client, cache.DefaultExpiration); err != nil {
		// lost a race with a concurrent request of the same identity
		if v, ok := r.cache.Get(key); ok {
			return v.(*engine.Client)
		}
	}
	return client
}

// Forget drops the client for id, clearing its focus.
func (r *ClientRegistry) Forget(id auth.Identity) {
	if id.ClientID == "" {
		return
	}
	key := registryKey(id)
	if v, ok := r.cache.Get(key); ok {
		v.(*engine.Client).ClearFocus()
	}
	r.cache.Delete(key)
}

// Len returns the number of live clients.
func (r *ClientRegistry) Len() int {
	r.cache.DeleteExpired()
	return r.cache.ItemCount()
}
