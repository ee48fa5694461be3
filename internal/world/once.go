package world

import "sync"

// OnceCell builds a value at most once successfully and hands the same value
// to every later caller. A failed build is not remembered; the next caller
// tries again. Concurrent callers wait for the build in progress.
type OnceCell[T any] struct {
	mu    sync.Mutex
	done  bool
	value T
}

func (c *OnceCell[T]) Get(build func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.value, nil
	}
	v, err := build()
	if err != nil {
		var zero T
		return zero, err
	}
	c.value = v
	c.done = true
	return v, nil
}

// Ready reports whether the value has been built.
func (c *OnceCell[T]) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
