package world

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type identityFramer struct{}

func (identityFramer) Frame(body []byte) ([]byte, error) { return body, nil }

// gatedGenerator blocks every call until release is closed.
type gatedGenerator struct {
	calls   atomic.Int32
	release chan struct{}
	fail    atomic.Bool
}

func newGatedGenerator() *gatedGenerator {
	return &gatedGenerator{release: make(chan struct{})}
}

func (g *gatedGenerator) Generate(ctx context.Context, pos ChunkPos) ([]byte, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.fail.Load() {
		return nil, errors.New("boom")
	}
	return []byte{byte(pos.X), byte(pos.Z)}, nil
}

func waitReady(t *testing.T, c *ChunkCache, pos ChunkPos) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		res, err := c.RequestOrFetch(pos)
		if err != nil {
			t.Fatalf("lookup %s: %v", pos, err)
		}
		if res.Status == LookupReady {
			return res.Data
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("chunk %s never became ready", pos)
	return nil
}

func TestChunkCacheSingleFlight(t *testing.T) {
	gen := newGatedGenerator()
	c := NewChunkCache(gen, identityFramer{}, ChunkCacheOptions{}, zaptest.NewLogger(t))
	defer c.Close()

	pos := ChunkPos{X: 3, Z: -4}
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.RequestOrFetch(pos)
			if err != nil || res.Status != LookupPending {
				t.Errorf("got %v, %v; want pending", res.Status, err)
			}
		}()
	}
	wg.Wait()

	if n := c.Spawned(); n != 1 {
		t.Fatalf("spawned %d tasks, want 1", n)
	}
	close(gen.release)
	data := waitReady(t, c, pos)
	if len(data) != 2 || int8(data[0]) != 3 || int8(data[1]) != -4 {
		t.Fatalf("data = %v", data)
	}
	if n := gen.calls.Load(); n != 1 {
		t.Fatalf("generator called %d times", n)
	}
}

func TestChunkCacheStateIsMonotonic(t *testing.T) {
	gen := newGatedGenerator()
	c := NewChunkCache(gen, identityFramer{}, ChunkCacheOptions{}, zaptest.NewLogger(t))
	defer c.Close()

	pos := ChunkPos{X: 1, Z: 1}
	if s := c.State(pos); s != ChunkUnrequested {
		t.Fatalf("initial state %s", s)
	}
	c.RequestOrFetch(pos)
	if s := c.State(pos); s != ChunkPending {
		t.Fatalf("after request %s", s)
	}
	close(gen.release)
	waitReady(t, c, pos)
	for i := 0; i < 10; i++ {
		c.RequestOrFetch(pos)
		if s := c.State(pos); s != ChunkReady {
			t.Fatalf("state regressed to %s", s)
		}
	}
	if c.Spawned() != 1 {
		t.Fatalf("ready entry spawned more work")
	}
}

func TestChunkCacheFailureIsRetryable(t *testing.T) {
	gen := newGatedGenerator()
	gen.fail.Store(true)
	close(gen.release)
	c := NewChunkCache(gen, identityFramer{}, ChunkCacheOptions{}, zaptest.NewLogger(t))
	defer c.Close()

	pos := ChunkPos{X: 9, Z: 9}
	c.RequestOrFetch(pos)

	var genErr *GenerationError
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := c.RequestOrFetch(pos)
		if errors.As(err, &genErr) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if genErr == nil || genErr.Pos != pos {
		t.Fatalf("expected generation error for %s, got %v", pos, genErr)
	}
	if s := c.State(pos); s != ChunkUnrequested {
		t.Fatalf("failed entry should be forgotten, state %s", s)
	}

	gen.fail.Store(false)
	waitReady(t, c, pos)
	if c.Spawned() != 2 {
		t.Fatalf("spawned %d, want a retry task", c.Spawned())
	}
}

func TestChunkCacheFetchBlocking(t *testing.T) {
	gen := newGatedGenerator()
	c := NewChunkCache(gen, identityFramer{}, ChunkCacheOptions{Workers: 1}, zaptest.NewLogger(t))
	defer c.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(gen.release)
	}()
	data, err := c.FetchBlocking(context.Background(), ChunkPos{X: 2, Z: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || data[0] != 2 || data[1] != 5 {
		t.Fatalf("data = %v", data)
	}
}

func TestChunkCacheFetchBlockingHonoursContext(t *testing.T) {
	gen := newGatedGenerator()
	c := NewChunkCache(gen, identityFramer{}, ChunkCacheOptions{}, zaptest.NewLogger(t))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.FetchBlocking(ctx, ChunkPos{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestChunkCacheBorder(t *testing.T) {
	gen := newGatedGenerator()
	c := NewChunkCache(gen, identityFramer{}, ChunkCacheOptions{BorderChunks: 4}, zaptest.NewLogger(t))
	defer c.Close()

	res, err := c.RequestOrFetch(ChunkPos{X: 5, Z: 0})
	if err != nil || res.Status != LookupUnavailable {
		t.Fatalf("outside border: %v, %v", res.Status, err)
	}
	if c.Spawned() != 0 {
		t.Fatalf("outside border must not spawn work")
	}
	if _, err := c.FetchBlocking(context.Background(), ChunkPos{X: 0, Z: -5}); !errors.Is(err, ErrOutsideBorder) {
		t.Fatalf("err = %v", err)
	}
	if res, _ := c.RequestOrFetch(ChunkPos{X: 4, Z: -4}); res.Status != LookupPending {
		t.Fatalf("border edge must be inside")
	}
}

func TestChunkCacheClosed(t *testing.T) {
	c := NewChunkCache(newGatedGenerator(), identityFramer{}, ChunkCacheOptions{}, zaptest.NewLogger(t))
	c.Close()
	if _, err := c.RequestOrFetch(ChunkPos{}); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestChunkCacheRecoversGeneratorPanic(t *testing.T) {
	gen := GeneratorFunc(func(context.Context, ChunkPos) ([]byte, error) {
		panic("bad script")
	})
	c := NewChunkCache(gen, identityFramer{}, ChunkCacheOptions{}, zaptest.NewLogger(t))
	defer c.Close()

	_, err := c.FetchBlocking(context.Background(), ChunkPos{X: 1})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("err = %v", err)
	}
}
