package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrCacheClosed is returned by lookups after Close.
var ErrCacheClosed = errors.New("chunk cache closed")

// ErrOutsideBorder is returned by FetchBlocking for a coordinate beyond the
// world border.
var ErrOutsideBorder = errors.New("chunk outside world border")

// GenerationError reports that the generator failed for one coordinate. The
// coordinate is retryable: the next lookup starts a fresh task.
type GenerationError struct {
	Pos ChunkPos
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate chunk %s: %v", e.Pos, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces the unframed chunk-data packet body (id + fields) for
// one coordinate. It may be slow and must honour ctx.
type Generator interface {
	Generate(ctx context.Context, pos ChunkPos) ([]byte, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, pos ChunkPos) ([]byte, error)

func (f GeneratorFunc) Generate(ctx context.Context, pos ChunkPos) ([]byte, error) {
	return f(ctx, pos)
}

// Framer turns a packet body into wire bytes under the shared compression
// settings. *net.Compose implements it.
type Framer interface {
	Frame(body []byte) ([]byte, error)
}

// ChunkState is the lifecycle of one cache entry. An entry only moves
// forward: Unrequested, Pending, Ready.
type ChunkState int

const (
	ChunkUnrequested ChunkState = iota
	ChunkPending
	ChunkReady
)

func (s ChunkState) String() string {
	switch s {
	case ChunkUnrequested:
		return "unrequested"
	case ChunkPending:
		return "pending"
	case ChunkReady:
		return "ready"
	}
	return "unknown"
}

// LookupStatus is the outcome of a non-blocking cache query.
type LookupStatus int

const (
	LookupUnavailable LookupStatus = iota
	LookupPending
	LookupReady
)

// CacheLookup is returned by RequestOrFetch. Data is set only for
// LookupReady and must not be modified.
type CacheLookup struct {
	Status LookupStatus
	Data   []byte
}

// generation is the handle of one in-flight task. err is written before
// done is closed.
type generation struct {
	done chan struct{}
	err  error
}

type cacheEntry struct {
	state ChunkState
	task  *generation // ChunkPending only
	data  []byte      // ChunkReady only
}

// ChunkCacheOptions configures a ChunkCache.
type ChunkCacheOptions struct {
	// Workers bounds how many generation tasks run at once; 0 = unbounded.
	Workers int
	// BorderChunks limits the world to |x|,|z| <= BorderChunks; 0 = unbounded.
	BorderChunks int
}

// ChunkCache holds framed chunk-data packets per coordinate and starts at
// most one generation task per coordinate. Entries are never evicted.
// Safe for concurrent use.
type ChunkCache struct {
	mu      sync.RWMutex
	entries map[ChunkPos]*cacheEntry
	closed  bool

	gen    Generator
	framer Framer
	sem    *semaphore.Weighted
	border int

	ctx    context.Context
	cancel context.CancelFunc

	spawned atomic.Int64
	log     *zap.Logger
}

func NewChunkCache(gen Generator, framer Framer, opts ChunkCacheOptions, log *zap.Logger) *ChunkCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &ChunkCache{
		entries: make(map[ChunkPos]*cacheEntry, 1024),
		gen:     gen,
		framer:  framer,
		border:  opts.BorderChunks,
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
	if opts.Workers > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.Workers))
	}
	return c
}

// InBorder reports whether pos lies inside the world border.
func (c *ChunkCache) InBorder(pos ChunkPos) bool {
	if c.border <= 0 {
		return true
	}
	return abs(int(pos.X)) <= c.border && abs(int(pos.Z)) <= c.border
}

// RequestOrFetch returns the cached bytes for pos, or starts generating them.
// It never blocks on generation. A failed task is reported once as a
// *GenerationError; the coordinate is then retryable.
func (c *ChunkCache) RequestOrFetch(pos ChunkPos) (CacheLookup, error) {
	if !c.InBorder(pos) {
		return CacheLookup{Status: LookupUnavailable}, nil
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return CacheLookup{}, ErrCacheClosed
	}
	if e, ok := c.entries[pos]; ok && e.state == ChunkReady {
		data := e.data
		c.mu.RUnlock()
		return CacheLookup{Status: LookupReady, Data: data}, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return CacheLookup{}, ErrCacheClosed
	}

	e, ok := c.entries[pos]
	if !ok {
		c.spawnLocked(pos)
		return CacheLookup{Status: LookupPending}, nil
	}
	switch e.state {
	case ChunkReady:
		return CacheLookup{Status: LookupReady, Data: e.data}, nil
	case ChunkPending:
		select {
		case <-e.task.done:
			// Success flips the entry to Ready under the lock, so a
			// finished Pending task always carries an error.
			delete(c.entries, pos)
			return CacheLookup{Status: LookupUnavailable}, &GenerationError{Pos: pos, Err: e.task.err}
		default:
		}
	}
	return CacheLookup{Status: LookupPending}, nil
}

// FetchBlocking waits until pos is Ready and returns its bytes. It is meant
// for one-off startup work, never for the tick loop.
func (c *ChunkCache) FetchBlocking(ctx context.Context, pos ChunkPos) ([]byte, error) {
	for {
		res, err := c.RequestOrFetch(pos)
		if err != nil {
			return nil, err
		}
		switch res.Status {
		case LookupReady:
			return res.Data, nil
		case LookupUnavailable:
			return nil, fmt.Errorf("fetch chunk %s: %w", pos, ErrOutsideBorder)
		}

		done := c.taskDone(pos)
		if done == nil {
			continue
		}
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// State returns the entry state for pos.
func (c *ChunkCache) State(pos ChunkPos) ChunkState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[pos]; ok {
		return e.state
	}
	return ChunkUnrequested
}

// Spawned returns how many generation tasks have been started.
func (c *ChunkCache) Spawned() int64 {
	return c.spawned.Load()
}

// Len returns the number of tracked coordinates, pending or ready.
func (c *ChunkCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close cancels in-flight generation. Later lookups fail with ErrCacheClosed.
func (c *ChunkCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *ChunkCache) taskDone(pos ChunkPos) <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[pos]; ok && e.state == ChunkPending {
		return e.task.done
	}
	return nil
}

func (c *ChunkCache) spawnLocked(pos ChunkPos) {
	e := &cacheEntry{
		state: ChunkPending,
		task:  &generation{done: make(chan struct{})},
	}
	c.entries[pos] = e
	c.spawned.Add(1)
	go c.run(pos, e)
}

func (c *ChunkCache) run(pos ChunkPos, e *cacheEntry) {
	task := e.task
	data, err := c.generate(pos)

	c.mu.Lock()
	if err != nil {
		task.err = err
	} else {
		e.state = ChunkReady
		e.data = data
		e.task = nil
	}
	c.mu.Unlock()
	close(task.done)

	if err != nil {
		c.log.Debug("區塊生成失敗", zap.Stringer("chunk", pos), zap.Error(err))
	}
}

func (c *ChunkCache) generate(pos ChunkPos) (data []byte, err error) {
	if c.sem != nil {
		if err := c.sem.Acquire(c.ctx, 1); err != nil {
			return nil, err
		}
		defer c.sem.Release(1)
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("區塊生成 panic 已恢復", zap.Stringer("chunk", pos), zap.Any("panic", r))
			data, err = nil, fmt.Errorf("generator panic: %v", r)
		}
	}()

	body, err := c.gen.Generate(c.ctx, pos)
	if err != nil {
		return nil, err
	}
	return c.framer.Frame(body)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
