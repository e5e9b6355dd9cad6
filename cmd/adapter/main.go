// Command adapter is a minimal example External Adapter binary, wiring
// every core package together for a single "price" endpoint backed by an
// HTTP request/response transport. Custom adapters follow this shape: a
// RequestBuilder per endpoint, settings registration, and a call to
// httpserver.New.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/extadapter/eacore/background"
	"github.com/extadapter/eacore/cache"
	"github.com/extadapter/eacore/config"
	"github.com/extadapter/eacore/events"
	"github.com/extadapter/eacore/foreground"
	"github.com/extadapter/eacore/httpserver"
	"github.com/extadapter/eacore/keyderiver"
	"github.com/extadapter/eacore/lock"
	"github.com/extadapter/eacore/ratelimit"
	"github.com/extadapter/eacore/requester"
	"github.com/extadapter/eacore/subscription"
	"github.com/extadapter/eacore/telemetry"
	"github.com/extadapter/eacore/transport"
	"github.com/extadapter/eacore/writer"
)

const adapterName = "example-adapter"

func main() {
	reg := config.NewRegistry("")
	config.RegisterBaseSettings(reg)
	if err := reg.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: config load: %v\n", err)
		os.Exit(1)
	}
	reg.HydrateCensor()

	logger := telemetry.NewStdout(reg.Censor(), reg.Bool("DEBUG"))
	metrics := telemetry.NewMetrics()

	deriver := keyderiver.New(reg.String("DEFAULT_CACHE_KEY"), reg.Int("MAX_COMMON_KEY_SIZE"))
	subs := subscription.New(reg.Int("SUBSCRIPTION_SET_MAX_ITEMS"))

	var c cache.Cache = cache.NewL1(reg.Int("CACHE_MAX_ITEMS"))
	var redisClient *redis.Client
	if reg.String("CACHE_TYPE") == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: reg.String("CACHE_REDIS_URL")})
		c = cache.NewL2(redisClient, reg.String("CACHE_PREFIX"))
	}

	maxAge := time.Duration(reg.Int("CACHE_MAX_AGE")) * time.Millisecond
	cacheWriter := writer.New(c, deriver, maxAge)

	var limiter ratelimit.Limiter
	switch reg.String("RATE_LIMITING_STRATEGY") {
	case "fixed-interval":
		limiter = ratelimit.NewFixedFromCapacity(
			float64(reg.Int("RATE_LIMIT_CAPACITY_1S")),
			float64(reg.Int("RATE_LIMIT_CAPACITY_1M")),
			float64(reg.Int("RATE_LIMIT_CAPACITY_1H")),
		)
	default:
		limiter = ratelimit.NewBurst(int64(reg.Int("RATE_LIMIT_CAPACITY_SECOND")), int64(reg.Int("RATE_LIMIT_CAPACITY_MINUTE")))
	}

	req := requester.New(
		limiter,
		reg.Int("MAX_HTTP_REQUEST_QUEUE_LENGTH"),
		reg.Int("RETRY"),
		time.Duration(reg.Int("REQUESTER_SLEEP_BEFORE_REQUEUEING_MS"))*time.Millisecond,
		requester.WithEvictionHook(func(key string) { metrics.EvictedEntries.WithLabelValues("requester-queue").Inc() }),
	)

	priceTransport := transport.NewHTTP(
		"price-rest",
		http.DefaultClient,
		buildPriceRequest,
		time.Duration(reg.Int("API_TIMEOUT"))*time.Millisecond,
	)

	execute := func(ctx context.Context, fr foreground.Request) (writer.Response, error) {
		key, err := deriver.CacheKey(fr.AdapterName, fr.Endpoint, fr.Transport, fr.Params)
		if err != nil {
			return writer.Response{}, err
		}
		future := req.Submit(key, func(ctx context.Context) (requester.Response, error) {
			return priceTransport.ExecuteRequest(ctx, fr.Endpoint, fr.Params)
		})
		resp, err := future.Wait(ctx)
		if err != nil {
			return writer.Response{}, err
		}
		return writer.Response{Data: resp.Data, StatusCode: resp.StatusCode, IsError: resp.IsError}, nil
	}

	handler := foreground.New(
		deriver, subs, c, cacheWriter, execute,
		time.Duration(reg.Int("WARMUP_SUBSCRIPTION_TTL"))*time.Millisecond,
		reg.Int("CACHE_POLLING_MAX_RETRIES"),
		time.Duration(reg.Int("CACHE_POLLING_SLEEP_MS"))*time.Millisecond,
	)

	mode := config.EAMode(reg.String("EA_MODE"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var auditLogger *events.AuditLogger
	if reg.Bool("CACHE_AUDIT_ENABLED") {
		al, err := events.NewDefaultAuditLogger()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: audit logger: %v\n", err)
			os.Exit(1)
		}
		auditLogger = al
	}

	// Every instance, whatever its EA_MODE, populates its cache from each
	// CacheRefresh a writer instance publishes. For a reader instance, which
	// runs no background loop, this is its only source of refreshed entries.
	events.RefreshHandler = func(ctx context.Context, ev *events.RefreshEvent) error {
		env := &cache.Envelope{Data: ev.Data, StatusCode: ev.StatusCode, IsError: ev.IsError, FeedID: ev.FeedID, CachedAt: ev.PublishedAt}
		return c.Set(ev.CacheKey, env, time.Duration(ev.TTLMillis)*time.Millisecond)
	}

	events.InvalidateHandler = func(ctx context.Context, ev *events.InvalidateEvent) error {
		start := time.Now()
		if ev.CacheKey != "" {
			if _, err := c.Delete(ev.CacheKey); err != nil {
				return err
			}
		}
		if ev.Pattern != "" {
			if _, err := c.DeletePattern(ev.Pattern); err != nil {
				return err
			}
		}
		if auditLogger != nil {
			return auditLogger.Insert(ctx, events.AuditEntry{
				Pattern:     ev.Pattern,
				CacheKey:    ev.CacheKey,
				TriggeredBy: ev.Reason,
				Timestamp:   ev.PublishedAt,
				RequestID:   ev.RequestID,
				LatencyMs:   time.Since(start).Milliseconds(),
			})
		}
		return nil
	}

	var bgLoop *background.Loop
	var heldLock *lock.Lock

	if mode.RunsBackground() {
		if redisClient != nil {
			lockMgr := lock.New(redisClient, time.Duration(reg.Int("CACHE_LOCK_DURATION"))*time.Millisecond, reg.Int("CACHE_LOCK_RETRIES"), time.Second)
			l, err := lockMgr.Acquire(ctx, "price")
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(1)
			}
			heldLock = l
		}

		bgLoop = background.New("price", time.Duration(reg.Int("BACKGROUND_EXECUTE_MS_HTTP"))*time.Millisecond, time.Duration(reg.Int("BACKGROUND_EXECUTE_TIMEOUT"))*time.Millisecond,
			func(ctx context.Context) error {
				for _, entry := range subs.GetAll() {
					metrics.BackgroundTicks.WithLabelValues("price").Inc()
					refreshFeed(ctx, entry, adapterName, deriver, req, priceTransport, cacheWriter, maxAge)
				}
				return nil
			},
			func(endpoint string, err error) {
				if err != nil {
					metrics.BackgroundFailures.WithLabelValues(endpoint).Inc()
					logger.Component("background").Error().Err(err).Str("endpoint", endpoint).Msg("background tick failed")
				}
			},
		)
		bgLoop.Start(ctx)
	}

	server := httpserver.New(handler, reg, logger, metrics, adapterName, int64(reg.Int("MAX_PAYLOAD_SIZE_LIMIT")), reg.Bool("DEBUG_ENDPOINTS"))

	httpSrv := &http.Server{Addr: ":8080", Handler: server.Mux()}
	go func() {
		logger.Component("httpserver").Info().Msg("listening on :8080")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Component("httpserver").Error().Err(err).Msg("listen failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)

	if bgLoop != nil {
		bgLoop.Stop()
	}
	if heldLock != nil {
		heldLock.Release(context.Background())
	}
	req.Close()
}

func buildPriceRequest(ctx context.Context, endpoint string, params map[string]interface{}) (*http.Request, error) {
	base, _ := params["base"].(string)
	url := fmt.Sprintf("https://example-upstream.invalid/price?base=%s", base)
	return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
}

// refreshFeed replays one subscribed feed's original request through C5/C7,
// writes the result through C6, and publishes it on CacheRefresh so any
// reader instances can populate their own cache without re-dispatching.
func refreshFeed(ctx context.Context, entry subscription.Entry, adapterName string, deriver *keyderiver.Deriver, req *requester.Requester, pt *transport.HTTP, cacheWriter *writer.Writer, ttl time.Duration) {
	key, err := deriver.CacheKey(adapterName, "price", "http", entry.Params)
	if err != nil {
		return
	}

	future := req.Submit(key, func(ctx context.Context) (requester.Response, error) {
		return pt.ExecuteRequest(ctx, "price", entry.Params)
	})
	resp, err := future.Wait(ctx)
	if err != nil {
		return
	}

	if _, err := cacheWriter.Write(adapterName, "price", "http", entry.Params, writer.Response{
		Data: resp.Data, StatusCode: resp.StatusCode, IsError: resp.IsError, FeedID: entry.FeedID,
	}); err != nil {
		return
	}

	events.CacheRefresh.Publish(ctx, &events.RefreshEvent{
		Version:     events.EventVersion1,
		CacheKey:    key,
		Data:        resp.Data,
		StatusCode:  resp.StatusCode,
		IsError:     resp.IsError,
		FeedID:      entry.FeedID,
		TTLMillis:   ttl.Milliseconds(),
		PublishedAt: time.Now(),
	})
}
