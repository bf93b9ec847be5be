package commandqueue

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultDedupTTL        = 5 * time.Minute
	defaultDedupMaxEntries = 1024
)

// dedupCache keeps successful task results by request id. Entries expire
// after ttl and the oldest entry is evicted once maxEntries is reached, so
// large results such as recorded run streams stay bounded.
type dedupCache struct {
	ttl     time.Duration
	results *expirable.LRU[string, taskResult]
}

func newDedupCache(ttl time.Duration, maxEntries int) *dedupCache {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultDedupMaxEntries
	}
	return &dedupCache{
		ttl:     ttl,
		results: expirable.NewLRU[string, taskResult](maxEntries, nil, ttl),
	}
}

// Stop drops every stored result.
func (dc *dedupCache) Stop() {
	dc.results.Purge()
}

// Get returns the stored result for requestID unless it has expired.
func (dc *dedupCache) Get(requestID string) (taskResult, bool) {
	return dc.results.Get(requestID)
}

// Set stores result, refreshing its age when requestID is already present.
func (dc *dedupCache) Set(requestID string, result taskResult) {
	dc.results.Add(requestID, result)
}

func (dc *dedupCache) Size() int {
	return dc.results.Len()
}
