// Package idempotency implements the process-local response cache that
// short-circuits repeated mutating HTTP calls. It is not a substitute for
// the ledger's durable per-operation idempotency key: entries live in memory
// only and expire after a fixed retention window.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gfranzoni/accountledger/internal/clock"
)

// DefaultTTL is the retention window for cached responses.
const DefaultTTL = 24 * time.Hour

// CachedResponse is the replayable outcome of a previously handled request.
type CachedResponse struct {
	Status int
	Body   []byte
}

type entry struct {
	response CachedResponse
	storedAt time.Time
}

// Cache is safe for concurrent use. Expired entries are evicted lazily on
// read and in bulk by Cleanup, which the process owner drives from its own
// scheduler; the cache starts no timers of its own.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	clock   clock.Clock
}

func NewCache(ttl time.Duration, clk clock.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		clock:   clk,
	}
}

// GenerateKey derives a deterministic cache key from the request identity.
// Identical method, path, body, and caller always hash to the same key.
func GenerateKey(method, path string, body []byte, callerID string) string {
	payload, _ := json.Marshal(struct {
		Method string          `json:"method"`
		Path   string          `json:"path"`
		Body   json.RawMessage `json:"body"`
		Caller string          `json:"caller"`
	}{
		Method: strings.ToUpper(method),
		Path:   path,
		Body:   normalizeBody(body),
		Caller: callerID,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func normalizeBody(body []byte) json.RawMessage {
	if len(body) == 0 || !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		return quoted
	}
	return body
}

// Check returns the cached response for key when present and not expired.
func (c *Cache) Check(key string) (CachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return CachedResponse{}, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return CachedResponse{}, false
	}
	return e.response, true
}

// Store records the outcome of a newly handled request for future replay.
func (c *Cache) Store(key string, resp CachedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{response: resp, storedAt: c.clock.Now()}
}

// Cleanup removes all expired entries and reports how many were evicted.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.storedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the current number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
