package events

import (
	"context"

	"encore.dev/pubsub"
)

// RefreshHandler is invoked for every RefreshEvent this instance receives
// from CacheRefresh. nil by default — it only does work once main wires it
// to something; cmd/adapter wires it in every EA_MODE to populate the local
// cache tier from a writer's background refresh output.
var RefreshHandler func(ctx context.Context, ev *RefreshEvent) error

// InvalidateHandler is invoked for every InvalidateEvent this instance
// receives from CacheInvalidate. nil by default; wired by main to clear
// the matching key or pattern from the local cache tier, and optionally to
// append an AuditEntry when CACHE_AUDIT_ENABLED is set.
var InvalidateHandler func(ctx context.Context, ev *InvalidateEvent) error

var _ = pubsub.NewSubscription(
	CacheRefresh,
	"adapter-cache-refresh",
	pubsub.SubscriptionConfig[*RefreshEvent]{
		Handler: func(ctx context.Context, ev *RefreshEvent) error {
			if RefreshHandler == nil {
				return nil
			}
			return RefreshHandler(ctx, ev)
		},
	},
)

var _ = pubsub.NewSubscription(
	CacheInvalidate,
	"adapter-cache-invalidate",
	pubsub.SubscriptionConfig[*InvalidateEvent]{
		Handler: func(ctx context.Context, ev *InvalidateEvent) error {
			if InvalidateHandler == nil {
				return nil
			}
			return InvalidateHandler(ctx, ev)
		},
	},
)
