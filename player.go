package main

// Color is an optional RGB tint chosen by the client
type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

// Player represents a participant in the arena
type Player struct {
	ID     string
	Name   string
	X, Y   int
	SpawnX int
	SpawnY int
	Alive  bool
	Ready  bool
	Color  *Color
}

// NewPlayer creates a live, not-ready player standing on its spawn
func NewPlayer(id, name string, spawn Cell, color *Color) *Player {
	return &Player{
		ID:     id,
		Name:   name,
		X:      spawn.X,
		Y:      spawn.Y,
		SpawnX: spawn.X,
		SpawnY: spawn.Y,
		Alive:  true,
		Color:  color,
	}
}

// AttemptMove steps one tile by (dx,dy) if the target is walkable.
// Returns whether the player moved.
func (p *Player) AttemptMove(dx, dy int, m *GridMap) bool {
	if !p.Alive {
		return false
	}
	nx, ny := p.X+dx, p.Y+dy
	if !m.IsWalkable(nx, ny) {
		return false
	}
	p.X, p.Y = nx, ny
	return true
}

// Eliminate marks the player dead
func (p *Player) Eliminate() {
	p.Alive = false
}

// ToggleReady flips the ready flag and returns the new value
func (p *Player) ToggleReady() bool {
	p.Ready = !p.Ready
	return p.Ready
}

// Reset puts the player on a new spawn for the next round
func (p *Player) Reset(spawn Cell) {
	p.SpawnX, p.SpawnY = spawn.X, spawn.Y
	p.X, p.Y = spawn.X, spawn.Y
	p.Alive = true
	p.Ready = false
}

// ToState converts the player to its broadcast form
func (p *Player) ToState() PlayerState {
	return PlayerState{
		ID:    p.ID,
		Name:  p.Name,
		X:     p.X,
		Y:     p.Y,
		Alive: p.Alive,
		Ready: p.Ready,
		Color: p.Color,
	}
}
