package gen

import (
	"github.com/l1jgo/blockstream/internal/net/packet"
	"github.com/l1jgo/blockstream/internal/world"
)

// Block state ids used by the bundled presets (protocol 763).
const (
	BlockAir     int32 = 0
	BlockStone   int32 = 1
	BlockGrass   int32 = 9
	BlockDirt    int32 = 10
	BlockBedrock int32 = 79
)

const blocksPerSection = 16 * 16 * 16

// Section is one 16x16x16 cube filled with a single block state.
type Section struct {
	Block int32
	Biome int32
}

// Column is a full chunk column, bottom section first.
type Column struct {
	Pos      world.ChunkPos
	Sections []Section
}

// EncodeChunkData builds the unframed Chunk Data and Update Light body
// (id + fields) for col. Every section uses a single-valued palette and the
// packet carries no light data; clients light the column themselves.
func EncodeChunkData(col Column) []byte {
	data := packet.NewWriter()
	for _, s := range col.Sections {
		count := int16(blocksPerSection)
		if s.Block == BlockAir {
			count = 0
		}
		data.WriteI16(count)
		writeSingleValued(data, s.Block)
		writeSingleValued(data, s.Biome)
	}

	w := packet.NewWriterWithID(packet.S_PLAY_CHUNK_DATA)
	w.WriteI32(int32(col.Pos.X))
	w.WriteI32(int32(col.Pos.Z))
	w.WriteBytes([]byte{0x0A, 0x00, 0x00, 0x00}) // empty heightmaps compound
	w.WriteVarInt(int32(data.Len()))
	w.WriteBytes(data.Bytes())
	w.WriteVarInt(0) // block entities

	// sky, block, empty-sky and empty-block light masks, then both arrays
	for i := 0; i < 6; i++ {
		w.WriteVarInt(0)
	}
	return w.Bytes()
}

func writeSingleValued(w *packet.Writer, value int32) {
	w.WriteU8(0) // bits per entry
	w.WriteVarInt(value)
	w.WriteVarInt(0) // data array length
}
