// Package writer implements C6: the response cache writer. It is the only
// path by which a transport's response becomes a cached envelope — deriving
// the cache key, stamping cache metadata, and delegating the actual
// invariant-E-enforcing write to cache.Cache.
package writer

import (
	"fmt"
	"time"

	"github.com/extadapter/eacore/cache"
	"github.com/extadapter/eacore/keyderiver"
)

// Response is what a transport hands back after executing a request — the
// raw payload plus enough status information for the writer to classify it
// as success or error.
type Response struct {
	Data       []byte
	StatusCode int
	IsError    bool
	FeedID     string
}

// Writer stamps and persists transport responses, grounded on the
// teacher's write-through Set path (cache-manager/service.go): marshal,
// then write through to whichever cache tier is configured.
type Writer struct {
	cache   cache.Cache
	deriver *keyderiver.Deriver
	maxAge  time.Duration
}

// New builds a Writer over the given cache tier.
func New(c cache.Cache, deriver *keyderiver.Deriver, maxAge time.Duration) *Writer {
	return &Writer{cache: c, deriver: deriver, maxAge: maxAge}
}

// Write derives the cache key for (adapterName, endpoint, transport,
// params) and stores resp under it, enforcing invariant E via the
// underlying cache. Returns the derived key so callers (foreground,
// background) can log or poll it.
func (w *Writer) Write(adapterName, endpoint, transport string, params map[string]interface{}, resp Response) (string, error) {
	key, err := w.deriver.CacheKey(adapterName, endpoint, transport, params)
	if err != nil {
		return "", fmt.Errorf("writer: derive cache key: %w", err)
	}

	feedID := resp.FeedID
	if feedID == "" {
		if feedID, err = w.deriver.FeedID(params); err != nil {
			return "", fmt.Errorf("writer: derive feed id: %w", err)
		}
	}

	env := &cache.Envelope{
		Data:       resp.Data,
		StatusCode: resp.StatusCode,
		IsError:    resp.IsError,
		FeedID:     feedID,
		CachedAt:   time.Now(),
	}

	if err := w.cache.Set(key, env, w.maxAge); err != nil {
		return key, fmt.Errorf("writer: set %q: %w", key, err)
	}
	return key, nil
}
