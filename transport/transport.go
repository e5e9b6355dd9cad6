// Package transport implements C7: the pluggable upstream-provider
// interface. A given transport advertises which capabilities it supports —
// request/response, streaming, or meta-routing — via an explicit tagged
// interface rather than duck-typing, per the design note that a caller
// should not have to attempt a type assertion against every possible
// capability to discover what a transport can do.
package transport

import (
	"context"

	"github.com/extadapter/eacore/requester"
)

// Capability names one of the three behaviors a transport may support.
type Capability string

const (
	CapRequestResponse Capability = "request-response"
	CapStreaming       Capability = "streaming"
	CapMeta            Capability = "meta"
)

// Transport is the base every concrete transport implements.
type Transport interface {
	Name() string
	Capabilities() []Capability
}

// Supports reports whether t advertises cap.
func Supports(t Transport, cap Capability) bool {
	for _, c := range t.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}

// RequestResponse is implemented by transports that answer one request
// with one response via C5 (§4.7's request/response leaf transport).
type RequestResponse interface {
	Transport
	ExecuteRequest(ctx context.Context, endpoint string, params map[string]interface{}) (requester.Response, error)
}

// Streaming is implemented by transports that maintain a persistent
// upstream connection and push updates for a set of subscribed feed IDs —
// WebSocket or SSE. Reconcile is called by the background loop each tick
// with C3's current desired membership; the transport computes the delta
// against what it's actually subscribed to and issues subscribe/unsubscribe
// frames only for the difference.
type Streaming interface {
	Transport
	Reconcile(ctx context.Context, desiredFeedIDs []string) error
	Close() error
}

// Meta is implemented by transports that route a request to one of several
// underlying transports based on a configured parameter (e.g. "transport":
// "ws" vs "rest" in the request body), per §4.7's meta-transport variant.
type Meta interface {
	Transport
	Route(params map[string]interface{}) (Transport, error)
}
