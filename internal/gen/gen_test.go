package gen

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/scripting"
	"github.com/l1jgo/blockstream/internal/world"
	"go.uber.org/zap/zaptest"
)

type decodedSection struct {
	count        int16
	block, biome int32
}

// decodeChunk parses what EncodeChunkData writes.
func decodeChunk(t *testing.T, body []byte) (world.ChunkPos, []decodedSection) {
	t.Helper()
	r := packet.NewReader(body)
	if id := r.ReadVarInt(); id != packet.S_PLAY_CHUNK_DATA {
		t.Fatalf("id = 0x%02X", id)
	}
	x, z := r.ReadI32(), r.ReadI32()
	r.Skip(4) // heightmaps
	size := r.ReadVarInt()
	data := packet.NewReader(r.ReadBytes(int(size)))

	var out []decodedSection
	for data.Remaining() > 0 && !data.Failed() {
		var s decodedSection
		s.count = data.ReadI16()
		if data.ReadU8() != 0 {
			t.Fatalf("expected single-valued block palette")
		}
		s.block = data.ReadVarInt()
		data.ReadVarInt()
		if data.ReadU8() != 0 {
			t.Fatalf("expected single-valued biome palette")
		}
		s.biome = data.ReadVarInt()
		data.ReadVarInt()
		out = append(out, s)
	}
	if r.ReadVarInt() != 0 {
		t.Fatalf("unexpected block entities")
	}
	for i := 0; i < 6; i++ {
		r.ReadVarInt()
	}
	if err := r.Err(); err != nil {
		t.Fatal(err)
	}
	if data.Err() != nil {
		t.Fatal(data.Err())
	}
	if r.Remaining() != 0 {
		t.Fatalf("%d trailing bytes", r.Remaining())
	}
	return world.ChunkPos{X: int16(x), Z: int16(z)}, out
}

func TestFlatGenerator(t *testing.T) {
	g := NewFlatGenerator(DefaultFlatPreset(24))
	body, err := g.Generate(context.Background(), world.ChunkPos{X: -3, Z: 7})
	if err != nil {
		t.Fatal(err)
	}
	pos, sections := decodeChunk(t, body)
	if pos != (world.ChunkPos{X: -3, Z: 7}) {
		t.Fatalf("pos = %v", pos)
	}
	if len(sections) != 24 {
		t.Fatalf("sections = %d", len(sections))
	}
	if sections[0].block != BlockBedrock || sections[8].block != BlockGrass || sections[9].block != BlockAir {
		t.Fatalf("layout = %+v", sections[:10])
	}
	if sections[0].count != 4096 || sections[9].count != 0 {
		t.Fatalf("block counts = %d, %d", sections[0].count, sections[9].count)
	}
}

func TestParseFlatPreset(t *testing.T) {
	p, err := ParseFlatPreset([]byte(`
sections: 4
biome: 2
layers:
  - block: 1
    sections: 3
`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := NewFlatGenerator(p).Generate(context.Background(), world.ChunkPos{})
	_, sections := decodeChunk(t, body)
	if len(sections) != 4 || sections[2].block != BlockStone || sections[3].block != BlockAir || sections[3].biome != 2 {
		t.Fatalf("sections = %+v", sections)
	}

	for _, bad := range []string{
		"sections: 0\n",
		"sections: 2\nlayers:\n  - block: 1\n    sections: 3\n",
		"sections: 2\nlayers:\n  - block: 1\n    sections: 0\n",
		"sections: [\n",
	} {
		if _, err := ParseFlatPreset([]byte(bad)); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestBundledFlatPreset(t *testing.T) {
	p, err := LoadFlatPreset(filepath.Join(repoRoot(t), "data", "yaml", "flat_preset.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Sections != 24 || len(p.Layers) == 0 {
		t.Fatalf("preset = %+v", p)
	}
}

func TestLuaGenerator(t *testing.T) {
	src := `
function generate_chunk(x, z)
  return { biome = 1, sections = { 79, x, z } }
end
`
	engine, err := scripting.NewEngineFromSources([]scripting.Source{{Name: "gen.lua", Code: src}}, 2, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	g := NewLuaGenerator(engine, 8)
	body, err := g.Generate(context.Background(), world.ChunkPos{X: 5, Z: 6})
	if err != nil {
		t.Fatal(err)
	}
	_, sections := decodeChunk(t, body)
	if len(sections) != 8 {
		t.Fatalf("sections = %d", len(sections))
	}
	if sections[0].block != BlockBedrock || sections[1].block != 5 || sections[2].block != 6 || sections[3].block != BlockAir {
		t.Fatalf("sections = %+v", sections)
	}
	if sections[7].biome != 1 {
		t.Fatalf("biome = %d", sections[7].biome)
	}
}

func TestLuaGeneratorRejectsBadResult(t *testing.T) {
	src := `
function generate_chunk(x, z)
  if x == 0 then return 42 end
  return { sections = { 1, 1, 1, 1 } }
end
`
	engine, err := scripting.NewEngineFromSources([]scripting.Source{{Name: "gen.lua", Code: src}}, 1, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	g := NewLuaGenerator(engine, 2)
	if _, err := g.Generate(context.Background(), world.ChunkPos{X: 0}); err == nil {
		t.Fatalf("non-table result must fail")
	}
	if _, err := g.Generate(context.Background(), world.ChunkPos{X: 1}); err == nil {
		t.Fatalf("too many sections must fail")
	}
}

func TestBundledTerrainScript(t *testing.T) {
	engine, err := scripting.NewEngine([]string{filepath.Join(repoRoot(t), "scripts", "generator")}, 1, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	g := NewLuaGenerator(engine, 24)
	for _, pos := range []world.ChunkPos{{X: 0, Z: 0}, {X: -9, Z: 4}, {X: 100, Z: -100}} {
		body, err := g.Generate(context.Background(), pos)
		if err != nil {
			t.Fatalf("%v: %v", pos, err)
		}
		if _, sections := decodeChunk(t, body); sections[0].block != BlockBedrock {
			t.Fatalf("%v: bottom section %d", pos, sections[0].block)
		}
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "..", "..")
	if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
		t.Skipf("repository root not found: %v", err)
	}
	return root
}
