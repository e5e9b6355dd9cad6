package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Fixed spaces requests by a constant period — §4.4's fixed-interval
// strategy is exactly rate.NewLimiter(rate.Every(period), 1): a bucket of
// size 1 starts full, so the first call is never delayed, and every call
// after that waits until period has elapsed since the last one. This
// mirrors the teacher's origin-request limiter in warming/service.go,
// which uses the same constructor for the same reason.
type Fixed struct {
	limiter *rate.Limiter
}

// NewFixed builds a Fixed limiter with the given period between requests.
func NewFixed(period time.Duration) *Fixed {
	return &Fixed{limiter: rate.NewLimiter(rate.Every(period), 1)}
}

// NewFixedFromCapacity derives the fixed-interval period from the
// configured per-second, per-minute, and per-hour capacity ceilings
// (RATE_LIMIT_CAPACITY_1S/_1M/_1H, §6) via §4.4's formula:
//
//	periodMs = 1000 / min(perSec, perMin/60, perHour/3600)
//
// the most restrictive ceiling, normalized to a per-second rate, sets the
// pace. A ceiling of 0 is unconfigured and excluded from the min; if none
// are configured the limiter imposes no pacing at all.
func NewFixedFromCapacity(perSec, perMin, perHour float64) *Fixed {
	var (
		effective float64
		have      bool
	)
	consider := func(ratePerSec float64) {
		if ratePerSec <= 0 {
			return
		}
		if !have || ratePerSec < effective {
			effective = ratePerSec
			have = true
		}
	}
	consider(perSec)
	consider(perMin / 60)
	consider(perHour / 3600)

	if !have {
		return NewFixed(0)
	}
	periodMs := 1000 / effective
	return NewFixed(time.Duration(periodMs * float64(time.Millisecond)))
}

// Wait blocks until the next dispatch is allowed or ctx is cancelled.
func (f *Fixed) Wait(ctx context.Context) error {
	return f.limiter.Wait(ctx)
}
