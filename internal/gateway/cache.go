package gateway

import (
	"bytes"
	"container/list"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shieldgate/gateway/internal/metrics"
	"github.com/shieldgate/gateway/pkg/logger"
)

// ResponseCacheConfig configures the memoization stage.
type ResponseCacheConfig struct {
	TTL      time.Duration
	MaxItems int
}

// DefaultResponseCacheConfig returns production defaults.
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		TTL:      30 * time.Second,
		MaxItems: 500,
	}
}

type cacheEntry struct {
	key         string
	status      int
	contentType string
	body        []byte
	insertedAt  time.Time
	elem        *list.Element
}

// ResponseCache memoizes successful GET responses, scoped per caller
// identity so one identity's response can never leak to another. Entries
// expire after a fixed TTL; the store is bounded and evicts the
// oldest-inserted entry on overflow.
type ResponseCache struct {
	cfg    ResponseCacheConfig
	logger *logger.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // front = oldest inserted
}

// NewResponseCache creates the memoization stage.
func NewResponseCache(cfg ResponseCacheConfig, log *logger.Logger) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 500
	}
	return &ResponseCache{
		cfg:     cfg,
		logger:  log.With("stage", "response_cache"),
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
	}
}

// Key builds the cache key: method, full path and identity. Unauthenticated
// callers fall back to an anonymous per-IP marker.
func (c *ResponseCache) Key(r *http.Request, rc *RequestContext) string {
	return r.Method + ":" + r.URL.RequestURI() + ":" + rc.Identity()
}

// Middleware returns the pipeline stage handler. Only side-effect-free
// retrievals are memoized; every other method bypasses the cache.
func (c *ResponseCache) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, ok := FromContext(r.Context())
			if !ok || r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := c.Key(r, rc)
			rc.CacheKey = key

			if entry, hit := c.get(key, time.Now()); hit {
				metrics.CacheEventsTotal.WithLabelValues("hit").Inc()
				metrics.RecordDecision(metrics.StageRespCache, metrics.OutcomePass)
				if entry.contentType != "" {
					w.Header().Set("Content-Type", entry.contentType)
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(entry.status)
				_, _ = w.Write(entry.body)
				return
			}

			metrics.CacheEventsTotal.WithLabelValues("miss").Inc()
			metrics.RecordDecision(metrics.StageRespCache, metrics.OutcomePass)

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Only successful responses are worth replaying.
			if rec.status >= 200 && rec.status < 300 {
				c.put(key, rec.status, rec.Header().Get("Content-Type"), rec.buf.Bytes(), time.Now())
			}
		})
	}
}

// get returns a fresh entry, dropping it when expired.
func (c *ResponseCache) get(key string, now time.Time) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.insertedAt) > c.cfg.TTL {
		c.removeLocked(entry)
		return nil, false
	}
	return entry, true
}

// put stores a response, evicting the oldest-inserted entry when the
// bound is hit.
func (c *ResponseCache) put(key string, status int, contentType string, body []byte, now time.Time) {
	stored := make([]byte, len(body))
	copy(stored, body)

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}
	for len(c.entries) >= c.cfg.MaxItems {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		metrics.CacheEventsTotal.WithLabelValues("eviction").Inc()
		c.removeLocked(oldest.Value.(*cacheEntry))
	}

	entry := &cacheEntry{
		key:         key,
		status:      status,
		contentType: contentType,
		body:        stored,
		insertedAt:  now,
	}
	entry.elem = c.order.PushBack(entry)
	c.entries[key] = entry
}

func (c *ResponseCache) removeLocked(entry *cacheEntry) {
	delete(c.entries, entry.key)
	if entry.elem != nil {
		c.order.Remove(entry.elem)
		entry.elem = nil
	}
}

// Invalidate removes every entry whose key contains pattern. An empty
// pattern clears the entire cache. Write handlers call this to evict
// now-stale cached reads for a resource.
func (c *ResponseCache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if pattern == "" || strings.Contains(key, pattern) {
			c.removeLocked(entry)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes expired entries.
func (c *ResponseCache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for _, entry := range c.entries {
		if now.Sub(entry.insertedAt) > c.cfg.TTL {
			c.removeLocked(entry)
			removed++
		}
	}
	return removed
}

// recordingWriter captures status and body while passing them through.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
