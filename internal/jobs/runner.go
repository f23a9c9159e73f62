// Package jobs coordinates background work: a per-key single-flight Runner
// and a coalescing Trigger.
package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Runner deduplicates concurrent executions per key. Callers that ask for a
// key while an execution for it is in flight attach to that execution and
// share its outcome. Executions of one key never overlap; different keys
// run in parallel.
type Runner[K comparable, R any] struct {
	mu      sync.Mutex
	flights map[K]*flight[R]
}

type flight[R any] struct {
	done   chan struct{} // closed once res/err are set
	res    R
	err    error
	cancel context.CancelFunc

	waiters   int  // guarded by Runner.mu
	abandoned bool // every waiter detached; the result will be discarded
}

// NewRunner returns an empty Runner.
func NewRunner[K comparable, R any]() *Runner[K, R] {
	return &Runner[K, R]{flights: make(map[K]*flight[R])}
}

// Run returns the outcome of produce for key. If an execution for key is
// already in flight, Run attaches to it instead of calling produce.
//
// ctx only governs this caller's wait. The producer runs on a context that
// keeps ctx's values but is cancelled only when every attached caller has
// detached. A detached caller gets ctx.Err(). An abandoned execution still
// occupies its key until it returns, so a later caller waits for it and then
// starts fresh work.
func (r *Runner[K, R]) Run(ctx context.Context, key K, produce func(context.Context) (R, error)) (R, error) {
	var zero R
	for {
		r.mu.Lock()
		f, ok := r.flights[key]
		if ok && f.abandoned {
			r.mu.Unlock()
			select {
			case <-f.done:
				continue
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		if !ok {
			if err := ctx.Err(); err != nil {
				r.mu.Unlock()
				return zero, err
			}
			pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			f = &flight[R]{done: make(chan struct{}), cancel: cancel}
			r.flights[key] = f
			go r.execute(pctx, key, f, produce)
		}
		f.waiters++
		r.mu.Unlock()
		return r.wait(ctx, f)
	}
}

func (r *Runner[K, R]) wait(ctx context.Context, f *flight[R]) (R, error) {
	select {
	case <-f.done:
		r.mu.Lock()
		f.waiters--
		r.mu.Unlock()
		return f.res, f.err
	case <-ctx.Done():
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	f.waiters--
	select {
	case <-f.done:
		// Settled while we were giving up; the result is already there.
		return f.res, f.err
	default:
	}
	if f.waiters == 0 {
		f.abandoned = true
		f.cancel()
	}
	var zero R
	return zero, ctx.Err()
}

func (r *Runner[K, R]) execute(ctx context.Context, key K, f *flight[R], produce func(context.Context) (R, error)) {
	var (
		res R
		err error
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("jobs: producer panicked: %v", p)
		}
		f.cancel()

		r.mu.Lock()
		if r.flights[key] == f {
			delete(r.flights, key)
		}
		f.res, f.err = res, err
		close(f.done)
		r.mu.Unlock()
	}()
	res, err = produce(ctx)
}

// Attached returns the number of callers currently waiting on the in-flight
// execution for key, or 0 if there is none.
func (r *Runner[K, R]) Attached(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flights[key]
	if !ok || f.abandoned {
		return 0
	}
	return f.waiters
}

// InFlight returns the number of keys with an execution in progress,
// abandoned ones included.
func (r *Runner[K, R]) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}
