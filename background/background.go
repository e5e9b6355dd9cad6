// Package background implements C8: one cancellable interval loop per
// endpoint, refreshing every feed currently present in that endpoint's
// subscription set. Grounded on the teacher's warming/cron.go
// run-then-reschedule shape, but restructured to a plain interval loop
// rather than cron scheduling, and on warming/service.go's
// `deduper singleflight.Group` to collapse overlapping ticks instead of
// letting a slow tick pile up behind a fast timer.
package background

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// TickFunc performs one background refresh pass for an endpoint: read the
// subscription set, reconcile streaming transports or dispatch
// request/response fetches, write results through C6. Errors are logged by
// the caller via the returned error; the loop keeps running regardless.
type TickFunc func(ctx context.Context) error

// Loop runs TickFunc on a fixed interval until Stop is called or its
// context is cancelled. Concurrent ticks for the same endpoint are
// deduplicated via singleflight so a slow upstream call never causes two
// overlapping executions.
type Loop struct {
	endpoint string
	interval time.Duration
	timeout  time.Duration
	tick     TickFunc
	group    singleflight.Group

	onTick func(endpoint string, err error)

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Loop for endpoint, running tick every interval with each
// invocation bounded by timeout. onTick, if non-nil, is called after every
// tick with its outcome, for metrics/logging.
func New(endpoint string, interval, timeout time.Duration, tick TickFunc, onTick func(endpoint string, err error)) *Loop {
	return &Loop{
		endpoint: endpoint,
		interval: interval,
		timeout:  timeout,
		tick:     tick,
		onTick:   onTick,
	}
}

// Start begins the loop in its own goroutine, derived from ctx so the
// caller can cancel every endpoint's loop at once (e.g. on shutdown).
func (l *Loop) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(loopCtx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	timer := time.NewTimer(0) // run immediately on start
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			l.runOnce(ctx)
			timer.Reset(l.interval)
		}
	}
}

func (l *Loop) runOnce(parent context.Context) {
	ctx := parent
	var cancel context.CancelFunc
	if l.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, l.timeout)
		defer cancel()
	}

	_, err, _ := l.group.Do(l.endpoint, func() (interface{}, error) {
		return nil, l.tick(ctx)
	})

	if l.onTick != nil {
		l.onTick(l.endpoint, err)
	}
}

// Stop cancels the loop and waits for its goroutine to exit.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}
