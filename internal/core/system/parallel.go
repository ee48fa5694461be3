package system

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn over items on up to workers goroutines and returns once
// all calls have finished. fn must not touch another item's state.
// workers <= 0 means GOMAXPROCS.
func ForEach[T any](items []T, workers int, fn func(T)) {
	if len(items) == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 1 || len(items) == 1 {
		for _, it := range items {
			fn(it)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, it := range items {
		it := it
		g.Go(func() error {
			fn(it)
			return nil
		})
	}
	_ = g.Wait()
}
