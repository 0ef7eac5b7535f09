package auth

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// ConnectLimiter rate-limits connection attempts per remote address. The
// LRU bounds memory under address churn; evicting an entry merely resets
// that address's bucket.
type ConnectLimiter struct {
	cache *lru.Cache[string, *rate.Limiter]
	rate  rate.Limit
	burst int
}

const limiterCacheSize = 4096

// NewConnectLimiter allows perMinute connection attempts per key with a
// burst of the same size.
func NewConnectLimiter(perMinute int) (*ConnectLimiter, error) {
	cache, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}
	return &ConnectLimiter{
		cache: cache,
		rate:  rate.Limit(float64(perMinute) / 60.0),
		burst: perMinute,
	}, nil
}

// Allow reports whether key may attempt a connection now.
func (l *ConnectLimiter) Allow(key string) bool {
	limiter, ok := l.cache.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.cache.Add(key, limiter)
	}
	return limiter.Allow()
}
