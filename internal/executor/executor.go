package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Executor runs units of work in some execution context.
type Executor interface {
	// Submit schedules fn and returns without waiting.
	Submit(fn func(ctx context.Context))
	// Call runs fn in the executor's context and waits for it or for ctx.
	Call(ctx context.Context, fn func(ctx context.Context) error) error
}

// Pool is a bounded worker pool for store and network work.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	base   context.Context
	logger *slog.Logger
}

// NewPool creates a pool running at most size units concurrently. Work
// receives base as its context, so it outlives the submitting caller.
func NewPool(base context.Context, size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), base: base, logger: logger}
}

// Submit schedules fn on the pool. Work submitted after base is cancelled is dropped.
func (p *Pool) Submit(fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.base, 1); err != nil {
			p.logger.Warn("pool work dropped", "error", err)
			return
		}
		defer p.sem.Release(1)
		p.run(fn)
	}()
}

// Call runs fn on the pool and waits for its result.
func (p *Pool) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	p.Submit(func(c context.Context) {
		done <- fn(c)
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until all submitted work has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in pool work", "panic", fmt.Sprint(r))
		}
	}()
	fn(p.base)
}

// Serial runs all work on a single goroutine, one unit at a time. It owns
// live session state that is not safe to touch concurrently.
type Serial struct {
	work   chan func(ctx context.Context)
	quit   chan struct{}
	done   chan struct{}
	base   context.Context
	logger *slog.Logger
	once   sync.Once
}

// NewSerial starts the serial worker. queue bounds pending work before Submit blocks.
func NewSerial(base context.Context, queue int, logger *slog.Logger) *Serial {
	s := &Serial{
		work:   make(chan func(ctx context.Context), queue),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		base:   base,
		logger: logger,
	}
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.work:
			s.run(fn)
		case <-s.quit:
			return
		case <-s.base.Done():
			return
		}
	}
}

func (s *Serial) run(fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in serial work", "panic", fmt.Sprint(r))
		}
	}()
	fn(s.base)
}

// Submit enqueues fn. It is dropped if the executor has stopped.
func (s *Serial) Submit(fn func(ctx context.Context)) {
	select {
	case s.work <- fn:
	case <-s.done:
		s.logger.Warn("serial work dropped after shutdown")
	}
}

// Call runs fn on the serial goroutine and waits for it.
func (s *Serial) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	wrapped := func(c context.Context) { result <- fn(c) }
	select {
	case s.work <- wrapped:
	case <-s.done:
		return fmt.Errorf("serial executor stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		return fmt.Errorf("serial executor stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker and waits for it to exit. Queued work not yet started is discarded.
func (s *Serial) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

// Inline runs work synchronously on the caller's goroutine. Used in tests and tools.
type Inline struct{}

func (Inline) Submit(fn func(ctx context.Context)) { fn(context.Background()) }

func (Inline) Call(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
