// Package events defines the pubsub topics that coordinate reader and
// writer instances (EA_MODE, §6): a writer's background loop publishes
// refresh results so reader instances (which run no background loop of
// their own) can populate their local L1 cache without re-dispatching to
// the upstream transport. Adapted from the teacher's
// cache-manager/subscriptions.go and invalidation/service.go topic
// definitions, repurposed from raw L1-delete events to full response
// envelopes.
package events

import (
	"time"

	"encore.dev/pubsub"
)

// EventVersion1 is the current event schema version; future versions may
// add fields but must never remove one, so older consumers keep working.
const EventVersion1 = 1

// RefreshEvent is published whenever a writer instance's background loop
// (C8) successfully refreshes a cache key, carrying enough information for
// a reader instance to populate its own L1 cache without re-dispatching.
type RefreshEvent struct {
	Version     int       `json:"version"`
	CacheKey    string    `json:"cacheKey"`
	Data        []byte    `json:"data"`
	StatusCode  int       `json:"statusCode"`
	IsError     bool      `json:"isError"`
	FeedID      string    `json:"feedId"`
	TTLMillis   int64     `json:"ttlMillis"`
	PublishedAt time.Time `json:"publishedAt"`
	RequestID   string    `json:"requestId"`
}

// InvalidateEvent is published by an admin/ops trigger (or a writer
// detecting a stale/poisoned entry) to clear a key or pattern across every
// reader's local L1 cache.
type InvalidateEvent struct {
	Version     int       `json:"version"`
	CacheKey    string    `json:"cacheKey,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	RequestID   string    `json:"requestId"`
}

// CacheRefresh is the topic writer instances publish to and reader
// instances subscribe from.
var CacheRefresh = pubsub.NewTopic[*RefreshEvent]("cache-refresh", pubsub.TopicConfig{
	DeliveryGuarantee: pubsub.AtLeastOnce,
})

// CacheInvalidate is the topic used for key/pattern invalidation
// broadcasts.
var CacheInvalidate = pubsub.NewTopic[*InvalidateEvent]("cache-invalidate", pubsub.TopicConfig{
	DeliveryGuarantee: pubsub.AtLeastOnce,
})
