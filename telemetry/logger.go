// Package telemetry wires structured logging and metrics exposition for the
// adapter process: a zerolog.Logger wrapper that redacts sensitive setting
// values before they ever reach an output stream, and the prometheus
// counters/histograms exposed at GET /metrics.
package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/extadapter/eacore/config"
)

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID attaches a request ID to ctx for later retrieval by Logger
// methods, mirroring the teacher's request-ID-in-context propagation
// (pkg/middleware/logging.go's LogWithRequestID).
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, or
// "" if none is present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// censoredWriter redacts sensitive values out of every log line before it
// reaches the underlying writer.
type censoredWriter struct {
	out    io.Writer
	censor *config.CensorList
}

func (w censoredWriter) Write(p []byte) (int, error) {
	redacted := w.censor.Redact(string(p))
	if _, err := io.WriteString(w.out, redacted); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Logger wraps zerolog.Logger, applying censor-list redaction and
// request-ID propagation uniformly across the adapter.
type Logger struct {
	base zerolog.Logger
}

// New builds a Logger writing to out (os.Stdout in production, a
// bytes.Buffer in tests) with redaction driven by censor. debug toggles
// zerolog's debug level on (DEBUG setting, §6).
func New(out io.Writer, censor *config.CensorList, debug bool) *Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	base := zerolog.New(censoredWriter{out: out, censor: censor}).
		With().
		Timestamp().
		Logger()

	return &Logger{base: base}
}

// NewStdout is a convenience constructor for production wiring.
func NewStdout(censor *config.CensorList, debug bool) *Logger {
	return New(os.Stdout, censor, debug)
}

// With returns a child logger carrying the request ID found in ctx, if any,
// as a structured field — equivalent to the teacher's per-request log
// adapter in pkg/middleware/logging.go.
func (l *Logger) With(ctx context.Context) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return l.base.With().Str("request_id", id).Logger()
	}
	return l.base
}

// Component returns a child logger tagged with a component name, used by
// each package (cache, requester, background, ...) to identify its own log
// lines.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.base.With().Str("component", name).Logger()
}

// Elapsed is a small helper for logging operation duration, matching the
// teacher's practice of logging request latency alongside the request ID.
func Elapsed(start time.Time) time.Duration {
	return time.Since(start)
}
