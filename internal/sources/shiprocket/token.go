package shiprocket

import (
	"sync"
	"time"
)

// tokenCache holds the bearer token of the last login. A token is reused
// until its TTL elapses or the API rejects it.
type tokenCache struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	ttl     time.Duration
	now     func() time.Time
}

func newTokenCache(ttl time.Duration) *tokenCache {
	return &tokenCache{ttl: ttl, now: time.Now}
}

// get returns the cached token, or "" when none is valid. Callers hold mu.
func (tc *tokenCache) get() string {
	if tc.token == "" || !tc.now().Before(tc.expires) {
		return ""
	}
	return tc.token
}

// set stores a fresh token. Callers hold mu.
func (tc *tokenCache) set(token string) {
	tc.token = token
	tc.expires = tc.now().Add(tc.ttl)
}

// invalidate drops token if it is still the cached one.
func (tc *tokenCache) invalidate(token string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.token == token {
		tc.token = ""
		tc.expires = time.Time{}
	}
}
