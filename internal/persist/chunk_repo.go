package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/klauspost/compress/zstd"
	"github.com/l1jgo/blockstream/internal/world"
)

// StoredChunk is one generated chunk-data body keyed by generator name.
type StoredChunk struct {
	Generator string
	Pos       world.ChunkPos
	Body      []byte // unframed packet body, uncompressed
}

// ChunkRepo stores chunk bodies zstd-compressed in the chunks table.
type ChunkRepo struct {
	db  *DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewChunkRepo(db *DB) (*ChunkRepo, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &ChunkRepo{db: db, enc: enc, dec: dec}, nil
}

// Load returns the stored body for pos, or ok=false when none exists.
func (r *ChunkRepo) Load(ctx context.Context, generator string, pos world.ChunkPos) ([]byte, bool, error) {
	var (
		body    []byte
		rawSize int32
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT body, raw_size FROM chunks WHERE generator = $1 AND x = $2 AND z = $3`,
		generator, pos.X, pos.Z,
	).Scan(&body, &rawSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load chunk %s: %w", pos, err)
	}

	out, err := r.dec.DecodeAll(body, make([]byte, 0, rawSize))
	if err != nil {
		return nil, false, fmt.Errorf("decompress chunk %s: %w", pos, err)
	}
	return out, true, nil
}

// SaveBatch upserts chunks in a single transaction.
func (r *ChunkRepo) SaveBatch(ctx context.Context, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chunk batch begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (generator, x, z, body, raw_size)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (generator, x, z) DO UPDATE SET body = EXCLUDED.body, raw_size = EXCLUDED.raw_size`,
			c.Generator, c.Pos.X, c.Pos.Z, r.enc.EncodeAll(c.Body, nil), int32(len(c.Body)),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("chunk batch insert: %w", err)
	}
	return tx.Commit(ctx)
}

// Count returns how many chunks are stored for generator.
func (r *ChunkRepo) Count(ctx context.Context, generator string) (int64, error) {
	var n int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE generator = $1`, generator,
	).Scan(&n)
	return n, err
}

func (r *ChunkRepo) Close() {
	r.enc.Close()
	r.dec.Close()
}
