package main

// blastDirections is the scan order: down, up, right, left
var blastDirections = [4]Cell{{X: 0, Y: 1}, {X: 0, Y: -1}, {X: 1, Y: 0}, {X: -1, Y: 0}}

// BlastCells computes the cells reached by a detonation at origin without
// touching the map. A WALL or the grid edge stops a direction before the
// tile; a BRICK is included and then stops that direction.
func BlastCells(m *GridMap, origin Cell, radius int) []Cell {
	cells := []Cell{origin}
	seen := map[Cell]bool{origin: true}
	add := func(c Cell) {
		if !seen[c] {
			seen[c] = true
			cells = append(cells, c)
		}
	}
	for _, d := range blastDirections {
	scan:
		for i := 1; i <= radius; i++ {
			c := Cell{X: origin.X + d.X*i, Y: origin.Y + d.Y*i}
			if !m.InBounds(c.X, c.Y) {
				break
			}
			switch m.At(c.X, c.Y) {
			case TileWall:
				break scan
			case TileBrick:
				add(c)
				break scan
			case TileEmpty, TileSpawn:
				add(c)
			}
		}
	}
	return cells
}

// ResolveExplosion applies a detonation: bricks in the blast are destroyed and
// alive players standing in it are eliminated. Returns the affected cells and
// the players eliminated by this blast.
func ResolveExplosion(m *GridMap, players map[string]*Player, origin Cell, radius int) ([]Cell, []*Player) {
	cells := BlastCells(m, origin, radius)
	var killed []*Player
	for _, c := range cells {
		m.DestroyBrick(c.X, c.Y)
		for _, p := range players {
			if p.Alive && p.X == c.X && p.Y == c.Y {
				p.Eliminate()
				killed = append(killed, p)
			}
		}
	}
	return cells, killed
}
