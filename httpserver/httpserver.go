// Package httpserver implements the adapter's inbound HTTP surface: POST /
// for foreground requests, GET /status for adapter metadata, GET /metrics
// for prometheus scraping, and GET /debug/settings gated on DEBUG_ENDPOINTS.
// Request-ID propagation and structured access logging are adapted from the
// teacher's RequestLogger middleware (pkg/middleware/logging.go) onto
// zerolog instead of stdlib log + manual JSON.
package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/extadapter/eacore/config"
	"github.com/extadapter/eacore/foreground"
	"github.com/extadapter/eacore/keyderiver"
	"github.com/extadapter/eacore/requester"
	"github.com/extadapter/eacore/telemetry"
	"github.com/extadapter/eacore/transport"
)

// InboundRequest is the shape of the POST / body, including the
// adapter-alias overrides map (§6's supplemented "overrides" feature).
type InboundRequest struct {
	ID        string                        `json:"id,omitempty"`
	Data      map[string]interface{}       `json:"data"`
	Endpoint  string                        `json:"endpoint,omitempty"`
	Transport string                        `json:"transport,omitempty"`
	Overrides map[string]map[string]string `json:"overrides,omitempty"`
}

// OutboundResponse mirrors the envelope shape the cache stores, plus the
// request ID for correlation.
type OutboundResponse struct {
	ID         string          `json:"id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	StatusCode int             `json:"statusCode"`
	Error      string          `json:"error,omitempty"`
}

// Server wires the foreground handler, settings registry, and telemetry
// into one http.Handler.
type Server struct {
	handler      *foreground.Handler
	registry     *config.Registry
	logger       *telemetry.Logger
	metrics      *telemetry.Metrics
	adapterName  string
	maxBodyBytes int64
	debugEnabled bool

	resolveOverrides func(adapterName string, overrides map[string]map[string]string, data map[string]interface{}) map[string]interface{}
}

// New builds a Server. maxBodyBytes is MAX_PAYLOAD_SIZE_LIMIT (§6).
func New(handler *foreground.Handler, registry *config.Registry, logger *telemetry.Logger, metrics *telemetry.Metrics, adapterName string, maxBodyBytes int64, debugEnabled bool) *Server {
	return &Server{
		handler:          handler,
		registry:         registry,
		logger:           logger,
		metrics:          metrics,
		adapterName:      adapterName,
		maxBodyBytes:     maxBodyBytes,
		debugEnabled:     debugEnabled,
		resolveOverrides: defaultResolveOverrides,
	}
}

// Mux builds the *http.ServeMux routing every endpoint this server exposes.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", s.withMiddleware(http.HandlerFunc(s.handleExecute)))
	mux.Handle("/status", s.withMiddleware(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	if s.debugEnabled {
		mux.Handle("/debug/settings", s.withMiddleware(http.HandlerFunc(s.handleDebugSettings)))
	}
	return mux
}

// withMiddleware applies request-ID propagation and structured access
// logging, matching the teacher's RequestLogger wrapping shape.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := telemetry.WithRequestID(r.Context(), requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &statusCapturingWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.With(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

type statusCapturingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if int64(len(body)) > s.maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, errPayloadTooLarge{})
		return
	}

	var in InboundRequest
	if err := json.Unmarshal(body, &in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	params := s.resolveOverrides(s.adapterName, in.Overrides, in.Data)

	endpoint := in.Endpoint
	transport := in.Transport
	if transport == "" {
		transport = "http"
	}

	result, err := s.handler.Handle(r.Context(), foreground.Request{
		AdapterName: s.adapterName,
		Endpoint:    endpoint,
		Transport:   transport,
		Params:      params,
	})
	if err != nil {
		s.writeEnvelopeError(w, in.ID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	resp := OutboundResponse{ID: in.ID, Data: json.RawMessage(result.Data), StatusCode: result.StatusCode}
	json.NewEncoder(w).Encode(resp)
}

// writeEnvelopeError maps err to its taxonomy status code (§7: InputError
// -> 400, RateLimitError/overflow -> 429, TimeoutError -> 504,
// DataProviderError/ConnectionError -> 502) and replies with it; anything
// unrecognized falls back to 500.
func (s *Server) writeEnvelopeError(w http.ResponseWriter, id string, err error) {
	status := statusForError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(OutboundResponse{ID: id, StatusCode: status, Error: err.Error()})
}

// statusForError walks err's chain against the typed errors each component
// raises and returns the HTTP status its taxonomy entry maps to.
func statusForError(err error) int {
	var inputErr *keyderiver.InputError
	if errors.As(err, &inputErr) {
		return http.StatusBadRequest
	}

	var evicted requester.EvictedError
	if errors.As(err, &evicted) {
		return http.StatusTooManyRequests
	}

	var pollTimeout *foreground.PollTimeoutError
	if errors.As(err, &pollTimeout) {
		return http.StatusGatewayTimeout
	}
	var timeoutErr *transport.TimeoutError
	if errors.As(err, &timeoutErr) {
		return http.StatusGatewayTimeout
	}

	var dataProviderErr *transport.DataProviderError
	if errors.As(err, &dataProviderErr) {
		return http.StatusBadGateway
	}
	var connErr *transport.ConnectionError
	if errors.As(err, &connErr) {
		return http.StatusBadGateway
	}

	return http.StatusInternalServerError
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot(false)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"adapter":  s.adapterName,
		"settings": snapshot,
	})
}

func (s *Server) handleDebugSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot(false))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type errPayloadTooLarge struct{}

func (errPayloadTooLarge) Error() string { return "payload exceeds MAX_PAYLOAD_SIZE_LIMIT" }

// defaultResolveOverrides applies the {overrides: {adapterName: {symbol:
// alias}}} map (§6): for this adapter's own overrides entry, any key in
// data matching a symbol is renamed to its alias before parameter
// validation. Unmatched data keys pass through unchanged.
func defaultResolveOverrides(adapterName string, overrides map[string]map[string]string, data map[string]interface{}) map[string]interface{} {
	aliasMap, ok := overrides[adapterName]
	if !ok || len(aliasMap) == 0 {
		return data
	}

	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if alias, renamed := aliasMap[k]; renamed {
			out[alias] = v
			continue
		}
		out[k] = v
	}
	return out
}
