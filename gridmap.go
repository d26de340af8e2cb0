package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidDimensions = errors.New("invalid map dimensions")
	ErrInvalidTile       = errors.New("invalid map tile")
	ErrNoSpawns          = errors.New("map has no spawn tiles")
)

// Tile is a single grid cell kind
type Tile uint8

const (
	TileEmpty Tile = iota
	TileWall
	TileBrick
	TileSpawn
)

// Map file symbols
const (
	symWall  = '#'
	symBrick = '.'
	symEmpty = ' '
	symSpawn = 'p'
)

// ParseTile maps a map-file symbol to its tile
func ParseTile(r rune) (Tile, error) {
	switch r {
	case symWall:
		return TileWall, nil
	case symBrick:
		return TileBrick, nil
	case symEmpty:
		return TileEmpty, nil
	case symSpawn:
		return TileSpawn, nil
	}
	return TileEmpty, fmt.Errorf("%w: %q", ErrInvalidTile, r)
}

// Symbol returns the wire/map-file character for the tile
func (t Tile) Symbol() string {
	switch t {
	case TileWall:
		return string(symWall)
	case TileBrick:
		return string(symBrick)
	case TileSpawn:
		return string(symSpawn)
	case TileEmpty:
		return string(symEmpty)
	}
	panic(fmt.Sprintf("unknown tile %d", t))
}

// Walkable reports whether a player may stand on the tile
func (t Tile) Walkable() bool {
	switch t {
	case TileEmpty, TileSpawn:
		return true
	case TileWall, TileBrick:
		return false
	}
	panic(fmt.Sprintf("unknown tile %d", t))
}

// Cell is a grid coordinate
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GridMap holds the live terrain and the pristine layout it was loaded from.
// Dimensions never change after load; at runtime only BRICK->EMPTY happens.
type GridMap struct {
	Name     string
	width    int
	height   int
	cells    [][]Tile
	original [][]Tile
}

// LoadGridMap validates a text layout against the configured dimensions
func LoadGridMap(name string, rows []string, width, height int) (*GridMap, error) {
	if len(rows) != height {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrInvalidDimensions, len(rows), height)
	}
	layout := make([][]Tile, height)
	for y, row := range rows {
		runes := []rune(row)
		if len(runes) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidDimensions, y, len(runes), width)
		}
		layout[y] = make([]Tile, width)
		for x, r := range runes {
			t, err := ParseTile(r)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", y, x, err)
			}
			layout[y][x] = t
		}
	}
	m := &GridMap{
		Name:     name,
		width:    width,
		height:   height,
		cells:    cloneTiles(layout),
		original: layout,
	}
	if len(m.FindSpawnPositions()) == 0 {
		return nil, ErrNoSpawns
	}
	return m, nil
}

// ParseGridMap splits raw map-file text into rows and loads it
func ParseGridMap(name, text string, width, height int) (*GridMap, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Trim(text, "\n")
	return LoadGridMap(name, strings.Split(text, "\n"), width, height)
}

func cloneTiles(src [][]Tile) [][]Tile {
	dst := make([][]Tile, len(src))
	for y := range src {
		dst[y] = append([]Tile(nil), src[y]...)
	}
	return dst
}

// Clone returns an independent copy of the pristine layout
func (m *GridMap) Clone() *GridMap {
	return &GridMap{
		Name:     m.Name,
		width:    m.width,
		height:   m.height,
		cells:    cloneTiles(m.original),
		original: cloneTiles(m.original),
	}
}

func (m *GridMap) Width() int  { return m.width }
func (m *GridMap) Height() int { return m.height }

// InBounds reports whether (x,y) lies on the grid
func (m *GridMap) InBounds(x, y int) bool {
	return x >= 0 && x < m.width && y >= 0 && y < m.height
}

// At returns the live tile at (x,y); callers check bounds first
func (m *GridMap) At(x, y int) Tile {
	return m.cells[y][x]
}

// FindSpawnPositions lists SPAWN tiles of the pristine layout in row-major order
func (m *GridMap) FindSpawnPositions() []Cell {
	var out []Cell
	for y, row := range m.original {
		for x, t := range row {
			if t == TileSpawn {
				out = append(out, Cell{X: x, Y: y})
			}
		}
	}
	return out
}

// IsWalkable is true for in-bounds EMPTY or SPAWN tiles
func (m *GridMap) IsWalkable(x, y int) bool {
	return m.InBounds(x, y) && m.cells[y][x].Walkable()
}

// ClearDestructiblesNear turns BRICK into EMPTY in the square of the given
// radius around each position, in both the live and pristine layouts.
func (m *GridMap) ClearDestructiblesNear(positions []Cell, radius int) {
	for _, p := range positions {
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				x, y := p.X+dx, p.Y+dy
				if !m.InBounds(x, y) {
					continue
				}
				if m.cells[y][x] == TileBrick {
					m.cells[y][x] = TileEmpty
				}
				if m.original[y][x] == TileBrick {
					m.original[y][x] = TileEmpty
				}
			}
		}
	}
}

// DestroyBrick converts a BRICK to EMPTY. Returns whether anything changed.
func (m *GridMap) DestroyBrick(x, y int) bool {
	if !m.InBounds(x, y) || m.cells[y][x] != TileBrick {
		return false
	}
	m.cells[y][x] = TileEmpty
	return true
}

// BricksRemaining reports whether any destructible terrain is left
func (m *GridMap) BricksRemaining() bool {
	for _, row := range m.cells {
		for _, t := range row {
			if t == TileBrick {
				return true
			}
		}
	}
	return false
}

// WalkableCells lists every currently walkable cell in row-major order
func (m *GridMap) WalkableCells() []Cell {
	var out []Cell
	for y, row := range m.cells {
		for x, t := range row {
			if t.Walkable() {
				out = append(out, Cell{X: x, Y: y})
			}
		}
	}
	return out
}

// Symbols renders the live map as rows of tile characters
func (m *GridMap) Symbols() [][]string {
	out := make([][]string, m.height)
	for y, row := range m.cells {
		out[y] = make([]string, m.width)
		for x, t := range row {
			out[y][x] = t.Symbol()
		}
	}
	return out
}
