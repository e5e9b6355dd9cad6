package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/extadapter/eacore/requester"
)

// ConnectionError indicates the upstream request could not be transmitted
// at all — DNS, TCP, or TLS failure — as distinct from a request that
// reached the provider and timed out, or one that came back malformed.
type ConnectionError struct {
	Transport string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport(%s): connection error: %v", e.Transport, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError indicates the call was cancelled by its own API_TIMEOUT
// deadline (or a caller-supplied context deadline) before the provider
// responded.
type TimeoutError struct {
	Transport string
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport(%s): timed out: %v", e.Transport, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// DataProviderError indicates the provider was reached and replied, but
// the response body could not be read or was otherwise unusable — as
// opposed to a connection-level failure to reach it at all.
type DataProviderError struct {
	Transport string
	Err       error
}

func (e *DataProviderError) Error() string {
	return fmt.Sprintf("transport(%s): data provider error: %v", e.Transport, e.Err)
}

func (e *DataProviderError) Unwrap() error { return e.Err }

// RequestBuilder turns endpoint params into an outbound *http.Request. Each
// custom adapter supplies one per endpoint; this is the seam where the
// actual upstream URL/headers/query-string shape lives.
type RequestBuilder func(ctx context.Context, endpoint string, params map[string]interface{}) (*http.Request, error)

// HTTP is the request/response transport: it builds an *http.Request via a
// RequestBuilder and executes it with the shared *http.Client, reporting
// non-2xx responses as IsError so invariant E can apply at the cache layer.
type HTTP struct {
	name    string
	client  *http.Client
	build   RequestBuilder
	timeout time.Duration
}

// NewHTTP builds an HTTP transport named name. timeout bounds each
// individual call (API_TIMEOUT, §6).
func NewHTTP(name string, client *http.Client, build RequestBuilder, timeout time.Duration) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{name: name, client: client, build: build, timeout: timeout}
}

func (h *HTTP) Name() string { return h.name }

func (h *HTTP) Capabilities() []Capability { return []Capability{CapRequestResponse} }

// ExecuteRequest builds and performs the upstream call. It never returns a
// non-nil error for a well-formed upstream HTTP error response — that's
// represented as requester.Response.IsError so invariant E treats it as a
// cacheable (if short-lived) error result rather than a dispatch failure.
// Only request construction/transport-level failures return an error.
func (h *HTTP) ExecuteRequest(ctx context.Context, endpoint string, params map[string]interface{}) (requester.Response, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	req, err := h.build(ctx, endpoint, params)
	if err != nil {
		return requester.Response{}, fmt.Errorf("transport(%s): build request: %w", h.name, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return requester.Response{}, &TimeoutError{Transport: h.name, Err: err}
		}
		return requester.Response{}, &ConnectionError{Transport: h.name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return requester.Response{}, &DataProviderError{Transport: h.name, Err: err}
	}

	return requester.Response{
		Data:       body,
		StatusCode: resp.StatusCode,
		IsError:    resp.StatusCode < 200 || resp.StatusCode >= 300,
	}, nil
}

// JSONBody is a small helper for RequestBuilders that POST a JSON body.
func JSONBody(v []byte) io.Reader {
	return bytes.NewReader(v)
}
