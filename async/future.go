// Package async provides one-shot results and the executors that run their
// continuations.
//
// A procedure that needs the answer of a remote peer gets a Future, registers
// a continuation with Then and returns. When the peer's Promise is set, the
// continuation is handed to the executor the procedure chose, so the
// procedure resumes on its own execution context without blocking a thread
// while it waits.
package async

import (
	"context"
	"sync"
)

// Executor runs tasks. Execute returns false if the task was not accepted.
type Executor interface {
	Execute(task func()) bool
}

// InlineExecutor runs tasks immediately on the calling goroutine.
type InlineExecutor struct{}

// Execute runs the task.
func (InlineExecutor) Execute(task func()) bool {
	task()
	return true
}

type continuation[T any] struct {
	exec Executor
	fn   func(T)
}

// Future is the read side of a one-shot result.
type Future[T any] struct {
	lock  sync.Mutex
	done  bool
	value T
	ready chan struct{}
	conts []continuation[T]
}

// Promise is the write side of a one-shot result.
type Promise[T any] struct {
	future *Future[T]
}

// NewPromise creates a connected promise and future.
func NewPromise[T any]() (*Promise[T], *Future[T]) {
	f := &Future[T]{ready: make(chan struct{})}
	return &Promise[T]{future: f}, f
}

// Resolved returns a future that already holds v.
func Resolved[T any](v T) *Future[T] {
	p, f := NewPromise[T]()
	p.Set(v)

	return f
}

// Future returns the future connected to the promise.
func (p *Promise[T]) Future() *Future[T] {
	return p.future
}

// Set stores the result and dispatches the registered continuations. Setting
// a promise twice panics.
func (p *Promise[T]) Set(v T) {
	f := p.future

	f.lock.Lock()
	if f.done {
		f.lock.Unlock()
		panic("async: promise already set")
	}

	f.done = true
	f.value = v
	conts := f.conts
	f.conts = nil
	close(f.ready)
	f.lock.Unlock()

	for _, c := range conts {
		dispatch(c, v)
	}
}

// Ready reports whether the result is available.
func (f *Future[T]) Ready() bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.done
}

// Get returns the result if it is available.
func (f *Future[T]) Get() (T, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.value, f.done
}

// Wait blocks until the result is available or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
		v, _ := f.Get()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then registers fn to run on exec with the result. If the result is already
// available, fn is dispatched right away.
func (f *Future[T]) Then(exec Executor, fn func(T)) {
	c := continuation[T]{exec: exec, fn: fn}

	f.lock.Lock()
	if !f.done {
		f.conts = append(f.conts, c)
		f.lock.Unlock()

		return
	}

	v := f.value
	f.lock.Unlock()

	dispatch(c, v)
}

// dispatch hands the continuation to its executor. A continuation refused by
// a stopped executor runs on the caller so that no procedure is left
// suspended forever.
func dispatch[T any](c continuation[T], v T) {
	run := func() { c.fn(v) }

	if c.exec == nil || !c.exec.Execute(run) {
		run()
	}
}
