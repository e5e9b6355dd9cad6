// Package requester implements C5: the outbound request pipeline. Requests
// for the same cache key are coalesced into one in-flight future; the
// pipeline is strictly FIFO; and a queue at capacity evicts its oldest
// pending entry to admit a new one rather than rejecting the new request
// outright. Grounded on the teacher's worker_pool.go (single drain loop,
// retryTask's jittered exponential backoff) and singleflight.go's
// coalescing intent, reimplemented here as an explicit map of in-flight
// futures since the spec's "return the existing future" contract needs
// finer control than golang.org/x/sync/singleflight's Group exposes.
package requester

import (
	"container/list"
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/extadapter/eacore/ratelimit"
)

// Response is the result of executing one outbound request.
type Response struct {
	Data       []byte
	StatusCode int
	IsError    bool
}

// ExecuteFunc performs the actual upstream call for a task.
type ExecuteFunc func(ctx context.Context) (Response, error)

// Future is what callers and coalesced duplicates alike wait on.
type Future struct {
	done chan struct{}
	resp Response
	err  error
}

// Wait blocks until the task completes or ctx is cancelled, whichever comes
// first. A cancelled Wait does not cancel the underlying dispatch — other
// coalesced callers may still be waiting on it.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func (f *Future) complete(resp Response, err error) {
	f.resp, f.err = resp, err
	close(f.done)
}

type task struct {
	key     string
	execute ExecuteFunc
	future  *Future
	element *list.Element
	attempt int
}

// EvictedError is returned to a task's future when it is evicted from the
// queue to make room for a new admission (I4/I7: FIFO overflow eviction is
// oldest-first, and the evicted caller observes an error rather than
// hanging forever).
type EvictedError struct{}

func (EvictedError) Error() string { return "requester: evicted from queue at capacity" }

// Requester is the single FIFO dispatch pipeline. One worker goroutine
// drains the queue; callers register tasks via Submit and await completion
// via the returned Future.
type Requester struct {
	mu       sync.Mutex
	queue    *list.List
	pending  map[string]*task
	maxLen   int
	limiter  ratelimit.Limiter
	retries  int
	sleepMs  time.Duration
	wake     chan struct{}
	closed   chan struct{}
	onEvict  func(key string)
	onDrain  func(key string, coalesced bool)
}

// Option configures optional Requester behavior.
type Option func(*Requester)

// WithEvictionHook registers a callback invoked whenever a task is evicted
// under overflow pressure, for metrics/logging.
func WithEvictionHook(fn func(key string)) Option {
	return func(r *Requester) { r.onEvict = fn }
}

// WithDrainHook registers a callback invoked whenever a Submit call
// coalesces onto (coalesced=true) or creates (coalesced=false) a pending
// task, for metrics/logging.
func WithDrainHook(fn func(key string, coalesced bool)) Option {
	return func(r *Requester) { r.onDrain = fn }
}

// New builds a Requester. maxLen bounds the queue (MAX_HTTP_REQUEST_QUEUE_LENGTH,
// §6); retries is the per-task retry budget (RETRY, §6);
// sleepBeforeRequeue is REQUESTER_SLEEP_BEFORE_REQUEUEING_MS.
func New(limiter ratelimit.Limiter, maxLen, retries int, sleepBeforeRequeue time.Duration, opts ...Option) *Requester {
	r := &Requester{
		queue:   list.New(),
		pending: make(map[string]*task),
		maxLen:  maxLen,
		limiter: limiter,
		retries: retries,
		sleepMs: sleepBeforeRequeue,
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Submit enqueues execute under key, or returns the Future already pending
// for key if one exists (coalescing, §4.5). A key stays "pending" — and
// coalesces further Submit calls onto the same Future — for as long as it
// is queued, in dispatch, or sleeping off a retry backoff; only a terminal
// outcome (success, exhausted retries, or eviction) clears it.
func (r *Requester) Submit(key string, execute ExecuteFunc) *Future {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.pending[key]; ok {
		if r.onDrain != nil {
			r.onDrain(key, true)
		}
		return existing.future
	}

	if r.maxLen > 0 && r.queue.Len() >= r.maxLen {
		r.evictOldestUnsafe()
	}

	t := &task{key: key, execute: execute, future: &Future{done: make(chan struct{})}}
	t.element = r.queue.PushBack(t)
	r.pending[key] = t

	if r.onDrain != nil {
		r.onDrain(key, false)
	}

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return t.future
}

// evictOldestUnsafe drops the front (oldest) queued task, completing its
// future with EvictedError. Caller must hold r.mu.
func (r *Requester) evictOldestUnsafe() {
	front := r.queue.Front()
	if front == nil {
		return
	}
	t := front.Value.(*task)
	r.queue.Remove(front)
	delete(r.pending, t.key)
	t.future.complete(Response{}, EvictedError{})
	if r.onEvict != nil {
		r.onEvict(t.key)
	}
}

// Close stops the drain loop. Pending tasks are left uncompleted; callers
// already waiting will block until their own context is cancelled.
func (r *Requester) Close() {
	close(r.closed)
}

// QueueLen reports the number of tasks currently sitting in the queue,
// not yet picked up for dispatch. A task that has been dispatched, or is
// sleeping off a retry backoff before requeueing, is pending (see Submit)
// but no longer counted here.
func (r *Requester) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// run is the single drain loop: it pops the front of the queue and hands
// the task to its own goroutine, then immediately loops back for the next
// one. Per §4.5/§5, dispatch is detached and fire-and-forget from the
// loop's perspective — one slow or retrying upstream call must never stall
// every other queued key behind it.
func (r *Requester) run() {
	for {
		t := r.popFront()
		if t == nil {
			select {
			case <-r.wake:
				continue
			case <-r.closed:
				return
			}
		}
		go r.dispatch(t)
	}
}

func (r *Requester) popFront() *task {
	r.mu.Lock()
	defer r.mu.Unlock()

	front := r.queue.Front()
	if front == nil {
		return nil
	}
	t := front.Value.(*task)
	r.queue.Remove(front)
	return t
}

// dispatch performs exactly one rate-limited attempt at t, off the drain
// loop. On success, or once the retry budget is exhausted, it completes
// t's future and clears it from pending. On a retriable failure it instead
// schedules a requeue: the state machine's Dispatched -> Requeued -> Queued
// transition, sleeping the jittered backoff in its own goroutine before
// rejoining the back of the queue for another attempt — never looping in
// place and blocking the tasks behind it.
func (r *Requester) dispatch(t *task) {
	ctx := context.Background()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			r.finishOrRetry(t, Response{}, err)
			return
		}
	}

	resp, err := t.execute(ctx)
	r.finishOrRetry(t, resp, err)
}

func (r *Requester) finishOrRetry(t *task, resp Response, err error) {
	if err == nil && !resp.IsError {
		r.complete(t, resp, err)
		return
	}

	if t.attempt >= r.retries {
		r.complete(t, resp, err)
		return
	}
	t.attempt++

	backoff := time.Duration(1<<uint(t.attempt-1)) * r.sleepDefault()
	jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
	delay := backoff + jitter
	if r.sleepMs > 0 {
		delay += r.sleepMs
	}

	go func() {
		time.Sleep(delay)
		r.requeue(t)
	}()
}

// complete finalizes t's future and removes it from pending — the only
// three ways out of "pending" are a successful dispatch, retry exhaustion,
// or overflow eviction (evictOldestUnsafe).
func (r *Requester) complete(t *task, resp Response, err error) {
	r.mu.Lock()
	delete(r.pending, t.key)
	r.mu.Unlock()
	t.future.complete(resp, err)
}

// requeue rejoins t at the back of the queue and wakes the drain loop, the
// "Requeued -> Queued" half of the retry state machine.
func (r *Requester) requeue(t *task) {
	r.mu.Lock()
	t.element = r.queue.PushBack(t)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Requester) sleepDefault() time.Duration {
	if r.sleepMs > 0 {
		return r.sleepMs
	}
	return 100 * time.Millisecond
}
