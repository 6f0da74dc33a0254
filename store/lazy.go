package store

import (
	"context"

	creon "github.com/creonlabs/creon-go"
)

// Lazy defers store initialization until first use and de-duplicates
// concurrent first-open attempts: the mutex makes the open single-flight,
// and every caller observes the same store or the same error. Hosts that
// can construct the store at startup should prefer doing so and passing it
// directly; Lazy exists for trigger runtimes with no init phase.
type Lazy struct {
	mu    chan struct{}
	open  func(ctx context.Context) (creon.OutcomeStore, error)
	store creon.OutcomeStore
	err   error
	done  bool
}

// NewLazy wraps an open function in a single-flight lazy opener.
func NewLazy(open func(ctx context.Context) (creon.OutcomeStore, error)) *Lazy {
	l := &Lazy{mu: make(chan struct{}, 1), open: open}
	l.mu <- struct{}{}
	return l
}

// Get returns the opened store, opening it on first call. Waiting for an
// in-flight open respects context cancellation; the open itself, once
// started, runs to completion so a canceled waiter does not poison the
// store for later callers.
func (l *Lazy) Get(ctx context.Context) (creon.OutcomeStore, error) {
	select {
	case <-l.mu:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { l.mu <- struct{}{} }()

	if !l.done {
		l.store, l.err = l.open(ctx)
		l.done = true
	}
	return l.store, l.err
}

// OpenOrFallback opens the durable file backend, bounded by ctx. If the
// open fails or the deadline passes first, it fails open to the volatile
// backend and reports degraded=true. In degraded mode idempotency does not
// survive a restart; hosts that require cross-restart exactly-once should
// refuse to mint while degraded.
func OpenOrFallback(ctx context.Context, path string) (store creon.OutcomeStore, degraded bool) {
	if ctx.Err() != nil {
		return NewMemory(), true
	}

	type opened struct {
		file *File
		err  error
	}
	ch := make(chan opened, 1)
	go func() {
		f, err := OpenFile(path)
		ch <- opened{file: f, err: err}
	}()

	select {
	case result := <-ch:
		if result.err != nil {
			return NewMemory(), true
		}
		return result.file, false
	case <-ctx.Done():
		return NewMemory(), true
	}
}
