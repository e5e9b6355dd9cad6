package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/extadapter/eacore/cache"
	"github.com/extadapter/eacore/config"
	"github.com/extadapter/eacore/foreground"
	"github.com/extadapter/eacore/keyderiver"
	"github.com/extadapter/eacore/requester"
	"github.com/extadapter/eacore/subscription"
	"github.com/extadapter/eacore/telemetry"
	"github.com/extadapter/eacore/transport"
	"github.com/extadapter/eacore/writer"
)

func TestDefaultResolveOverridesRenamesMatchedSymbols(t *testing.T) {
	overrides := map[string]map[string]string{
		"my-adapter": {"base": "from"},
	}
	data := map[string]interface{}{"base": "ETH", "quote": "USD"}

	out := defaultResolveOverrides("my-adapter", overrides, data)
	if _, hasBase := out["base"]; hasBase {
		t.Fatalf("expected 'base' to be renamed away")
	}
	if out["from"] != "ETH" {
		t.Fatalf("expected renamed key 'from' = ETH, got %v", out["from"])
	}
	if out["quote"] != "USD" {
		t.Fatalf("expected untouched key preserved")
	}
}

func TestDefaultResolveOverridesNoOpWithoutMatchingAdapter(t *testing.T) {
	data := map[string]interface{}{"base": "ETH"}
	out := defaultResolveOverrides("my-adapter", nil, data)
	if out["base"] != "ETH" {
		t.Fatalf("expected passthrough, got %v", out)
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg := config.NewRegistry("")
	config.RegisterBaseSettings(reg)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg.HydrateCensor()

	deriver := keyderiver.New("DEFAULT_CACHE_KEY", 300)
	subs := subscription.New(100)
	c := cache.NewL1(100)
	w := writer.New(c, deriver, time.Minute)

	handler := foreground.New(deriver, subs, c, w, func(ctx context.Context, req foreground.Request) (writer.Response, error) {
		return writer.Response{Data: []byte(`{"result":1}`), StatusCode: 200}, nil
	}, time.Minute, 3, 5*time.Millisecond)

	logger := telemetry.New(&bytes.Buffer{}, reg.Censor(), false)
	metrics := telemetry.NewMetrics()

	return New(handler, reg, logger, metrics, "test-adapter", int64(reg.Int("MAX_PAYLOAD_SIZE_LIMIT")), false)
}

func TestHandleExecuteReturnsExecutorResult(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	body, _ := json.Marshal(InboundRequest{
		Endpoint:  "price",
		Transport: "http",
		Data:      map[string]interface{}{"base": "ETH"},
	})

	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out OutboundResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out.Data) != `{"result":1}` {
		t.Fatalf("got %q", out.Data)
	}
}

func TestHandleStatusReturnsRedactedSettings(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["adapter"] != "test-adapter" {
		t.Fatalf("expected adapter name in status, got %v", out["adapter"])
	}
	settings, _ := out["settings"].(map[string]interface{})
	if settings["CACHE_REDIS_URL"] != "[CACHE_REDIS_URL REDACTED]" {
		t.Fatalf("expected sensitive CACHE_REDIS_URL redacted in status, got %v", settings["CACHE_REDIS_URL"])
	}
}

func TestStatusForErrorMapsTaxonomy(t *testing.T) {
	deriver := keyderiver.New("DEFAULT_CACHE_KEY", 300)
	_, inputErr := deriver.CacheKey("adapter", "endpoint", "http", map[string]interface{}{"bad": make(chan int)})
	if inputErr == nil {
		t.Fatalf("expected an InputError deriving a key from an unencodable value")
	}

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"input", fmt.Errorf("wrap: %w", inputErr), http.StatusBadRequest},
		{"evicted", fmt.Errorf("wrap: %w", requester.EvictedError{}), http.StatusTooManyRequests},
		{"poll timeout", fmt.Errorf("wrap: %w", &foreground.PollTimeoutError{CacheKey: "k", Attempts: 3}), http.StatusGatewayTimeout},
		{"transport timeout", fmt.Errorf("wrap: %w", &transport.TimeoutError{Transport: "http", Err: fmt.Errorf("boom")}), http.StatusGatewayTimeout},
		{"connection", fmt.Errorf("wrap: %w", &transport.ConnectionError{Transport: "http", Err: fmt.Errorf("boom")}), http.StatusBadGateway},
		{"data provider", fmt.Errorf("wrap: %w", &transport.DataProviderError{Transport: "http", Err: fmt.Errorf("boom")}), http.StatusBadGateway},
		{"unknown", fmt.Errorf("some other failure"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForError(tc.err); got != tc.want {
				t.Fatalf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestHandleExecuteMapsExecutorErrorToTaxonomyStatus(t *testing.T) {
	reg := config.NewRegistry("")
	config.RegisterBaseSettings(reg)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg.HydrateCensor()

	deriver := keyderiver.New("DEFAULT_CACHE_KEY", 300)
	subs := subscription.New(100)
	c := cache.NewL1(100)
	w := writer.New(c, deriver, time.Minute)

	handler := foreground.New(deriver, subs, c, w, func(ctx context.Context, req foreground.Request) (writer.Response, error) {
		return writer.Response{}, &transport.ConnectionError{Transport: "http", Err: fmt.Errorf("refused")}
	}, time.Minute, 3, 5*time.Millisecond)

	logger := telemetry.New(&bytes.Buffer{}, reg.Censor(), false)
	metrics := telemetry.NewMetrics()
	s := New(handler, reg, logger, metrics, "test-adapter", int64(reg.Int("MAX_PAYLOAD_SIZE_LIMIT")), false)

	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	body, _ := json.Marshal(InboundRequest{
		Endpoint:  "price",
		Transport: "http",
		Data:      map[string]interface{}{"base": "ETH"},
	})
	resp, err := http.Post(srv.URL+"/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected connection error to surface as 502, got %d", resp.StatusCode)
	}
}

func TestDebugSettingsDisabledByDefault(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Mux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/debug/settings")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when DEBUG_ENDPOINTS is off, got %d", resp.StatusCode)
	}
}
