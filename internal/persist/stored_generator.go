package persist

import (
	"context"
	"time"

	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap"
)

// ChunkStore is the storage side of StoredGenerator. *ChunkRepo implements it.
type ChunkStore interface {
	Load(ctx context.Context, generator string, pos world.ChunkPos) ([]byte, bool, error)
	SaveBatch(ctx context.Context, chunks []StoredChunk) error
}

// StoredGeneratorOptions tunes the write-behind of fresh chunks.
type StoredGeneratorOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// StoredGenerator serves chunks from the store and falls back to the inner
// generator, queueing each fresh chunk for a batched write. A store failure
// never fails generation.
type StoredGenerator struct {
	name  string
	inner world.Generator
	store ChunkStore
	opts  StoredGeneratorOptions
	queue chan StoredChunk
	done  chan struct{}
	log   *zap.Logger
}

func NewStoredGenerator(name string, inner world.Generator, store ChunkStore, opts StoredGeneratorOptions, log *zap.Logger) *StoredGenerator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	return &StoredGenerator{
		name:  name,
		inner: inner,
		store: store,
		opts:  opts,
		queue: make(chan StoredChunk, opts.QueueSize),
		done:  make(chan struct{}),
		log:   log,
	}
}

func (g *StoredGenerator) Generate(ctx context.Context, pos world.ChunkPos) ([]byte, error) {
	body, ok, err := g.store.Load(ctx, g.name, pos)
	if err != nil {
		g.log.Warn("讀取區塊存檔失敗，改為生成", zap.Stringer("chunk", pos), zap.Error(err))
	} else if ok {
		return body, nil
	}

	body, err = g.inner.Generate(ctx, pos)
	if err != nil {
		return nil, err
	}
	select {
	case g.queue <- StoredChunk{Generator: g.name, Pos: pos, Body: body}:
	default:
		g.log.Warn("區塊寫入佇列已滿，略過存檔", zap.Stringer("chunk", pos))
	}
	return body, nil
}

// Run writes queued chunks in batches until ctx is done, then flushes what
// is left. It closes Done when it returns.
func (g *StoredGenerator) Run(ctx context.Context) {
	defer close(g.done)
	ticker := time.NewTicker(g.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]StoredChunk, 0, g.opts.BatchSize)
	flush := func(fctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := g.store.SaveBatch(fctx, batch); err != nil {
			g.log.Error("區塊批次存檔失敗", zap.Int("count", len(batch)), zap.Error(err))
		} else {
			g.log.Debug("區塊批次存檔", zap.Int("count", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case c := <-g.queue:
			batch = append(batch, c)
			if len(batch) >= g.opts.BatchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		drain:
			for {
				select {
				case c := <-g.queue:
					batch = append(batch, c)
				default:
					break drain
				}
			}
			flush(drainCtx)
			cancel()
			return
		}
	}
}

// Done is closed once Run has returned.
func (g *StoredGenerator) Done() <-chan struct{} {
	return g.done
}
