// Package ratelimit implements C4: the two limiting strategies a requester
// can apply before dispatching to an upstream provider. "fixed-interval"
// spaces requests by a constant period; "burst" enforces independent
// per-second and per-minute ceilings using wall-clock-aligned windows.
package ratelimit

import "context"

// Limiter gates dispatch of outbound requests. Wait blocks until the
// limiter would allow one more request, or ctx is cancelled first.
type Limiter interface {
	Wait(ctx context.Context) error
}
