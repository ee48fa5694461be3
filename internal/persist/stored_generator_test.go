package persist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap/zaptest"
)

type memStore struct {
	mu      sync.Mutex
	chunks  map[world.ChunkPos][]byte
	batches int
	loadErr error
}

func newMemStore() *memStore {
	return &memStore{chunks: make(map[world.ChunkPos][]byte)}
}

func (m *memStore) Load(_ context.Context, generator string, pos world.ChunkPos) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, false, m.loadErr
	}
	b, ok := m.chunks[pos]
	return b, ok, nil
}

func (m *memStore) SaveBatch(_ context.Context, chunks []StoredChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	for _, c := range chunks {
		m.chunks[c.Pos] = c.Body
	}
	return nil
}

func (m *memStore) stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

type countingGenerator struct{ calls atomic.Int32 }

func (g *countingGenerator) Generate(_ context.Context, pos world.ChunkPos) ([]byte, error) {
	g.calls.Add(1)
	return []byte{byte(pos.X)}, nil
}

func TestStoredGeneratorServesStoredChunks(t *testing.T) {
	store := newMemStore()
	store.chunks[world.ChunkPos{X: 1}] = []byte{0xAA}
	inner := &countingGenerator{}
	g := NewStoredGenerator("flat", inner, store, StoredGeneratorOptions{}, zaptest.NewLogger(t))

	body, err := g.Generate(context.Background(), world.ChunkPos{X: 1})
	if err != nil || len(body) != 1 || body[0] != 0xAA {
		t.Fatalf("body = %v, %v", body, err)
	}
	if inner.calls.Load() != 0 {
		t.Fatalf("stored chunk must not be regenerated")
	}
}

func TestStoredGeneratorWritesBehind(t *testing.T) {
	store := newMemStore()
	inner := &countingGenerator{}
	g := NewStoredGenerator("flat", inner, store, StoredGeneratorOptions{BatchSize: 2, FlushInterval: time.Hour}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)

	for x := int16(0); x < 3; x++ {
		if _, err := g.Generate(ctx, world.ChunkPos{X: x}); err != nil {
			t.Fatal(err)
		}
	}
	deadline := time.Now().Add(2 * time.Second)
	for store.stored() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if store.stored() != 2 {
		t.Fatalf("full batch not written, stored %d", store.stored())
	}

	cancel()
	<-g.Done()
	if store.stored() != 3 {
		t.Fatalf("remaining chunk not flushed on shutdown, stored %d", store.stored())
	}
}

func TestStoredGeneratorToleratesStoreFailure(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("db down")
	inner := &countingGenerator{}
	g := NewStoredGenerator("flat", inner, store, StoredGeneratorOptions{}, zaptest.NewLogger(t))

	body, err := g.Generate(context.Background(), world.ChunkPos{X: 4})
	if err != nil || len(body) != 1 || body[0] != 4 {
		t.Fatalf("body = %v, %v", body, err)
	}
}
