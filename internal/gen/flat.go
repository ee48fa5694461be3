package gen

import (
	"context"
	"fmt"
	"os"

	"github.com/l1jgo/blockstream/internal/world"
	"gopkg.in/yaml.v3"
)

// FlatLayer fills Sections consecutive sections with one block state.
type FlatLayer struct {
	Block    int32 `yaml:"block"`
	Sections int   `yaml:"sections"`
}

// FlatPreset describes a world where every column is identical.
type FlatPreset struct {
	Sections int         `yaml:"sections"`
	Biome    int32       `yaml:"biome"`
	Layers   []FlatLayer `yaml:"layers"`
}

// LoadFlatPreset reads a preset from a YAML file.
func LoadFlatPreset(path string) (*FlatPreset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flat preset %s: %w", path, err)
	}
	return ParseFlatPreset(data)
}

func ParseFlatPreset(data []byte) (*FlatPreset, error) {
	var p FlatPreset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse flat preset: %w", err)
	}
	if p.Sections <= 0 {
		return nil, fmt.Errorf("flat preset: sections must be positive")
	}
	used := 0
	for i, l := range p.Layers {
		if l.Sections <= 0 {
			return nil, fmt.Errorf("flat preset: layer %d has no sections", i)
		}
		used += l.Sections
	}
	if used > p.Sections {
		return nil, fmt.Errorf("flat preset: layers use %d of %d sections", used, p.Sections)
	}
	return &p, nil
}

// DefaultFlatPreset is bedrock, stone, dirt and grass under open air.
func DefaultFlatPreset(sections int) *FlatPreset {
	return &FlatPreset{
		Sections: sections,
		Layers: []FlatLayer{
			{Block: BlockBedrock, Sections: 1},
			{Block: BlockStone, Sections: 6},
			{Block: BlockDirt, Sections: 1},
			{Block: BlockGrass, Sections: 1},
		},
	}
}

// FlatGenerator emits the same column everywhere. The section layout is
// computed once; only the coordinates differ per chunk.
type FlatGenerator struct {
	sections []Section
}

func NewFlatGenerator(p *FlatPreset) *FlatGenerator {
	sections := make([]Section, p.Sections)
	for i := range sections {
		sections[i] = Section{Block: BlockAir, Biome: p.Biome}
	}
	i := 0
	for _, l := range p.Layers {
		for n := 0; n < l.Sections && i < len(sections); n++ {
			sections[i].Block = l.Block
			i++
		}
	}
	return &FlatGenerator{sections: sections}
}

func (g *FlatGenerator) Generate(ctx context.Context, pos world.ChunkPos) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return EncodeChunkData(Column{Pos: pos, Sections: g.sections}), nil
}
