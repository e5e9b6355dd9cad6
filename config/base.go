package config

import "fmt"

// EAMode is the adapter process's operating mode (§6: EA_MODE).
type EAMode string

const (
	ModeReader       EAMode = "reader"
	ModeWriter       EAMode = "writer"
	ModeReaderWriter EAMode = "reader-writer"
)

// RunsBackground reports whether this mode runs C8 background loops and
// holds the C10 distributed lock.
func (m EAMode) RunsBackground() bool {
	return m == ModeWriter || m == ModeReaderWriter
}

// RegisterBaseSettings registers every base setting the core depends on
// (§6). Custom adapters call RegisterBaseSettings first, then register
// their own settings; a name collision with any of these is a fatal
// startup error, surfaced by Register's own collision check.
func RegisterBaseSettings(r *Registry) {
	positiveNumber := func(v interface{}) error {
		if n, _ := v.(float64); n <= 0 {
			return fmt.Errorf("must be > 0, got %v", v)
		}
		return nil
	}
	nonNegativeNumber := func(v interface{}) error {
		if n, _ := v.(float64); n < 0 {
			return fmt.Errorf("must be >= 0, got %v", v)
		}
		return nil
	}

	r.MustRegister(Setting{Name: "CACHE_TYPE", Kind: KindEnum, Enum: []string{"local", "redis"}, Default: "local"})
	r.MustRegister(Setting{Name: "CACHE_MAX_AGE", Kind: KindNumber, Default: float64(30000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "CACHE_MAX_ITEMS", Kind: KindNumber, Default: float64(10000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "CACHE_PREFIX", Kind: KindString, Default: ""})
	r.MustRegister(Setting{Name: "MAX_COMMON_KEY_SIZE", Kind: KindNumber, Default: float64(300), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "DEFAULT_CACHE_KEY", Kind: KindString, Default: "DEFAULT_CACHE_KEY"})

	r.MustRegister(Setting{Name: "CACHE_POLLING_MAX_RETRIES", Kind: KindNumber, Default: float64(10), Validate: nonNegativeNumber})
	r.MustRegister(Setting{Name: "CACHE_POLLING_SLEEP_MS", Kind: KindNumber, Default: float64(200), Validate: positiveNumber})

	r.MustRegister(Setting{Name: "CACHE_LOCK_DURATION", Kind: KindNumber, Default: float64(30000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "CACHE_LOCK_RETRIES", Kind: KindNumber, Default: float64(10), Validate: nonNegativeNumber})

	r.MustRegister(Setting{Name: "RETRY", Kind: KindNumber, Default: float64(2), Validate: nonNegativeNumber})
	r.MustRegister(Setting{Name: "API_TIMEOUT", Kind: KindNumber, Default: float64(30000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "MAX_HTTP_REQUEST_QUEUE_LENGTH", Kind: KindNumber, Default: float64(1000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "REQUESTER_SLEEP_BEFORE_REQUEUEING_MS", Kind: KindNumber, Default: float64(0), Validate: nonNegativeNumber})

	r.MustRegister(Setting{Name: "RATE_LIMITING_STRATEGY", Kind: KindEnum, Enum: []string{"burst", "fixed-interval"}, Default: "burst"})
	r.MustRegister(Setting{Name: "RATE_LIMIT_CAPACITY_SECOND", Kind: KindNumber, Default: float64(0), Validate: nonNegativeNumber})
	r.MustRegister(Setting{Name: "RATE_LIMIT_CAPACITY_MINUTE", Kind: KindNumber, Default: float64(0), Validate: nonNegativeNumber})
	r.MustRegister(Setting{Name: "RATE_LIMIT_CAPACITY", Kind: KindNumber, Default: float64(0), Validate: nonNegativeNumber})

	// Inputs to the fixed-interval strategy's periodMs = 1000 / min(perSec,
	// perMin/60, perHour/3600) formula (§4.4). A 0 value leaves that ceiling
	// unconfigured, excluded from the min.
	r.MustRegister(Setting{Name: "RATE_LIMIT_CAPACITY_1S", Kind: KindNumber, Default: float64(0), Validate: nonNegativeNumber})
	r.MustRegister(Setting{Name: "RATE_LIMIT_CAPACITY_1M", Kind: KindNumber, Default: float64(0), Validate: nonNegativeNumber})
	r.MustRegister(Setting{Name: "RATE_LIMIT_CAPACITY_1H", Kind: KindNumber, Default: float64(0), Validate: nonNegativeNumber})

	r.MustRegister(Setting{Name: "CACHE_AUDIT_ENABLED", Kind: KindBool, Default: false})

	r.MustRegister(Setting{Name: "BACKGROUND_EXECUTE_MS_HTTP", Kind: KindNumber, Default: float64(1000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "BACKGROUND_EXECUTE_MS_WS", Kind: KindNumber, Default: float64(1000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "BACKGROUND_EXECUTE_MS_SSE", Kind: KindNumber, Default: float64(1000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "BACKGROUND_EXECUTE_TIMEOUT", Kind: KindNumber, Default: float64(5000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "SUBSCRIPTION_SET_MAX_ITEMS", Kind: KindNumber, Default: float64(1000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "WS_SUBSCRIPTION_TTL", Kind: KindNumber, Default: float64(120000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "WS_SUBSCRIPTION_UNRESPONSIVE_TTL", Kind: KindNumber, Default: float64(120000), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "WARMUP_SUBSCRIPTION_TTL", Kind: KindNumber, Default: float64(30000), Validate: positiveNumber})

	r.MustRegister(Setting{Name: "EA_MODE", Kind: KindEnum, Enum: []string{"reader", "writer", "reader-writer"}, Default: "reader-writer"})

	r.MustRegister(Setting{Name: "MAX_PAYLOAD_SIZE_LIMIT", Kind: KindNumber, Default: float64(1 << 20), Validate: positiveNumber})
	r.MustRegister(Setting{Name: "DEBUG", Kind: KindBool, Default: false})
	r.MustRegister(Setting{Name: "DEBUG_ENDPOINTS", Kind: KindBool, Default: false})
	r.MustRegister(Setting{Name: "BASE_URL", Kind: KindString, Default: ""})
	r.MustRegister(Setting{Name: "METRICS_ENABLED", Kind: KindBool, Default: true})

	r.MustRegister(Setting{Name: "CACHE_REDIS_URL", Kind: KindString, Default: "", Sensitive: true})
	r.MustRegister(Setting{Name: "CACHE_REDIS_MAX_RECONNECT_COOLDOWN", Kind: KindNumber, Default: float64(30000), Validate: positiveNumber})
}
