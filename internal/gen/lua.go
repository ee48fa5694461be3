package gen

import (
	"context"
	"fmt"

	"github.com/l1jgo/blockstream/internal/scripting"
	"github.com/l1jgo/blockstream/internal/world"
	lua "github.com/yuin/gopher-lua"
)

// LuaGenerator asks a script for each column. The script defines
//
//	function generate_chunk(x, z)
//	  return { biome = 0, sections = { 79, 1, 1, 10, 9 } }
//	end
//
// where sections lists block state ids from the bottom up. Missing sections
// are air.
type LuaGenerator struct {
	engine   *scripting.Engine
	sections int
}

func NewLuaGenerator(engine *scripting.Engine, sections int) *LuaGenerator {
	return &LuaGenerator{engine: engine, sections: sections}
}

func (g *LuaGenerator) Generate(ctx context.Context, pos world.ChunkPos) ([]byte, error) {
	col := Column{Pos: pos, Sections: make([]Section, g.sections)}
	args := []lua.LValue{lua.LNumber(pos.X), lua.LNumber(pos.Z)}
	err := g.engine.Call(ctx, "generate_chunk", args, func(ret lua.LValue) error {
		t, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("generate_chunk returned %s, want table", ret.Type())
		}
		biome := int32(lua.LVAsNumber(t.RawGetString("biome")))
		for i := range col.Sections {
			col.Sections[i] = Section{Block: BlockAir, Biome: biome}
		}
		blocks, ok := t.RawGetString("sections").(*lua.LTable)
		if !ok {
			return nil
		}
		n := blocks.Len()
		if n > g.sections {
			return fmt.Errorf("generate_chunk returned %d sections, world has %d", n, g.sections)
		}
		for i := 1; i <= n; i++ {
			v, ok := blocks.RawGetInt(i).(lua.LNumber)
			if !ok {
				return fmt.Errorf("section %d is not a block id", i)
			}
			col.Sections[i-1].Block = int32(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return EncodeChunkData(col), nil
}
