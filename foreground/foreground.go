// Package foreground implements C9: the per-request orchestration path. A
// request derives its key and feed ID (C1), registers the feed ID in the
// subscription set (C3), then either dispatches through the requester (C5,
// for request/response endpoints) and waits for the result, or polls the
// cache (C2) until an entry appears, for streaming endpoints already being
// kept warm by the background loop. Grounded on the teacher's Get path in
// cache-manager/service.go (check cache, fall back to coalesced origin
// fetch, populate), restructured around transports instead of a single
// origin fetcher.
package foreground

import (
	"context"
	"fmt"
	"time"

	"github.com/extadapter/eacore/cache"
	"github.com/extadapter/eacore/keyderiver"
	"github.com/extadapter/eacore/subscription"
	"github.com/extadapter/eacore/writer"
)

// Request describes one inbound call after overrides resolution.
type Request struct {
	AdapterName string
	Endpoint    string
	Transport   string
	Params      map[string]interface{}
}

// Result is what the HTTP layer serializes back to the caller.
type Result struct {
	Data       []byte
	StatusCode int
	CacheKey   string
	FromCache  bool
}

// PollTimeoutError indicates the cache entry never appeared before the
// polling budget was exhausted (§4.9's poll-exhaustion edge case).
type PollTimeoutError struct {
	CacheKey string
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("foreground: polling exhausted after %d attempts for key %q", e.Attempts, e.CacheKey)
}

// Executor dispatches a request/response request through C5, returning the
// writer.Response to persist via C6.
type Executor func(ctx context.Context, req Request) (writer.Response, error)

// Handler orchestrates one request end to end.
type Handler struct {
	deriver      *keyderiver.Deriver
	subs         *subscription.Set
	cache        cache.Cache
	writer       *writer.Writer
	execute      Executor
	feedTTL      time.Duration
	pollMaxTries int
	pollSleep    time.Duration
}

// New builds a foreground Handler. feedTTL is WARMUP_SUBSCRIPTION_TTL
// (§6); pollMaxTries/pollSleep are CACHE_POLLING_MAX_RETRIES /
// CACHE_POLLING_SLEEP_MS.
func New(deriver *keyderiver.Deriver, subs *subscription.Set, c cache.Cache, w *writer.Writer, execute Executor, feedTTL time.Duration, pollMaxTries int, pollSleep time.Duration) *Handler {
	return &Handler{
		deriver:      deriver,
		subs:         subs,
		cache:        c,
		writer:       w,
		execute:      execute,
		feedTTL:      feedTTL,
		pollMaxTries: pollMaxTries,
		pollSleep:    pollSleep,
	}
}

// isStreaming reports whether transport is a streaming-class transport
// (i.e. kept warm by the background loop rather than dispatched
// synchronously here). Custom adapters register their own streaming
// transport names; "ws" and "sse" are the two the core ships with.
func isStreaming(transport string) bool {
	return transport == "ws" || transport == "sse"
}

// Handle derives the request's cache key and feed ID, registers the feed
// ID for background warming, and either serves from cache immediately
// (streaming transports, via polling) or executes synchronously
// (request/response transports) before replying.
func (h *Handler) Handle(ctx context.Context, req Request) (Result, error) {
	key, err := h.deriver.CacheKey(req.AdapterName, req.Endpoint, req.Transport, req.Params)
	if err != nil {
		return Result{}, fmt.Errorf("foreground: derive cache key: %w", err)
	}
	feedID, err := h.deriver.FeedID(req.Params)
	if err != nil {
		return Result{}, fmt.Errorf("foreground: derive feed id: %w", err)
	}

	if h.subs != nil {
		h.subs.Add(feedID, req.Params, h.feedTTL)
	}

	if env, ok, err := h.cache.Get(key); err != nil {
		return Result{}, fmt.Errorf("foreground: cache get %q: %w", key, err)
	} else if ok {
		return Result{Data: env.Data, StatusCode: env.StatusCode, CacheKey: key, FromCache: true}, nil
	}

	if isStreaming(req.Transport) {
		return h.poll(ctx, key)
	}

	return h.executeAndCache(ctx, req, key)
}

func (h *Handler) executeAndCache(ctx context.Context, req Request, key string) (Result, error) {
	resp, err := h.execute(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("foreground: execute %q: %w", req.Endpoint, err)
	}

	if _, werr := h.writer.Write(req.AdapterName, req.Endpoint, req.Transport, req.Params, resp); werr != nil {
		return Result{}, fmt.Errorf("foreground: write cache %q: %w", key, werr)
	}

	return Result{Data: resp.Data, StatusCode: resp.StatusCode, CacheKey: key}, nil
}

// poll repeatedly checks the cache for key until it appears, the context is
// cancelled, or the retry budget is exhausted.
func (h *Handler) poll(ctx context.Context, key string) (Result, error) {
	for attempt := 1; attempt <= h.pollMaxTries; attempt++ {
		env, ok, err := h.cache.Get(key)
		if err != nil {
			return Result{}, fmt.Errorf("foreground: poll %q: %w", key, err)
		}
		if ok {
			return Result{Data: env.Data, StatusCode: env.StatusCode, CacheKey: key, FromCache: true}, nil
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(h.pollSleep):
		}
	}

	return Result{}, &PollTimeoutError{CacheKey: key, Attempts: h.pollMaxTries}
}
