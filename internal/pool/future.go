package pool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Future is the eventual result of a submitted task.
type Future struct {
	done    chan struct{}
	discard *atomic.Bool

	mu            sync.Mutex
	completed     bool
	value         any
	err           error
	continuations []func(any, error)
}

func newFuture(discard *atomic.Bool) *Future {
	return &Future{
		done:    make(chan struct{}),
		discard: discard,
	}
}

// Done is closed once the task has completed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result blocks until the task completes and returns its outcome.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.value, f.err
}

// Wait is Result bounded by ctx.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnComplete registers fn to run with the task outcome. fn runs on the
// goroutine that completes the task, or on a new goroutine if the task has
// already completed. It never runs on the caller's goroutine.
func (f *Future) OnComplete(fn func(any, error)) {
	f.mu.Lock()
	if !f.completed {
		f.continuations = append(f.continuations, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	go fn(v, err)
}

// complete records the outcome and runs continuations. It returns false when
// the future was already completed or its pool abandoned the result.
func (f *Future) complete(v any, err error) bool {
	if f.discard != nil && f.discard.Load() {
		return false
	}

	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.value, f.err = v, err
	conts := f.continuations
	f.continuations = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range conts {
		fn(v, err)
	}
	return true
}
