package pilot

import (
	"context"
	"sync"
)

// Pool bounds the number of concurrently running tasks. Handlers offload
// blocking database reads and batch LLM calls through it so a burst of
// requests cannot spawn unbounded goroutines.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool that runs at most size tasks at once.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 8
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Run executes fn once a slot is free. It returns the context error if ctx
// is done before a slot opens, otherwise fn's result.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.sem <- struct{}{}:
	}
	defer func() { <-p.sem }()
	return fn()
}

// forEachBounded runs fn(0..n-1) with at most limit tasks in flight and
// waits for all of them. Dispatch stops early when ctx is done; tasks
// already started run to completion.
func forEachBounded(ctx context.Context, limit, n int, fn func(i int)) {
	if limit <= 0 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

dispatch:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}

	wg.Wait()
}
