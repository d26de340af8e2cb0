package main

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"
)

var ErrServerFull = errors.New("server is full")

// Publisher receives the frame produced by every tick
type Publisher interface {
	Publish(f Frame)
}

// ResultSink receives every finished round
type ResultSink interface {
	Track(r MatchResult)
}

// Game is the single authoritative arena. Every mutation (intents, joins,
// leaves and the tick step) happens under mu.
type Game struct {
	mu      sync.Mutex
	cfg     Config
	maps    *MapLibrary
	grid    *GridMap
	players map[string]*Player
	order   []string // join order, used for snapshots and spawn assignment
	bombs   []*Bomb
	match   MatchState
	events  []ExplosionEvent
	tick    uint64
	results ResultSink

	now func() time.Time
	rng *rand.Rand
}

// NewGame creates a session in WAITING on a map picked from the library
func NewGame(cfg Config, maps *MapLibrary) *Game {
	g := &Game{
		cfg:     cfg,
		maps:    maps,
		players: make(map[string]*Player),
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64())),
	}
	g.reset()
	return g
}

// SetResults attaches the recorder that finished rounds are reported to
func (g *Game) SetResults(sink ResultSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results = sink
}

// Run drives the simulation at the configured tick rate until ctx is done,
// publishing one frame per tick.
func (g *Game) Run(ctx context.Context, pub Publisher) error {
	ticker := time.NewTicker(g.cfg.TickDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			frame := g.Update()
			if pub != nil {
				pub.Publish(frame)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// AddPlayer places a new player on the first free spawn of the current map
func (g *Game) AddPlayer(name string, color *Color) (*Player, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	taken := make(map[Cell]bool, len(g.players))
	for _, p := range g.players {
		taken[Cell{X: p.SpawnX, Y: p.SpawnY}] = true
	}
	for _, spawn := range g.grid.FindSpawnPositions() {
		if taken[spawn] {
			continue
		}
		p := NewPlayer(GenerateID(), name, spawn, color)
		g.players[p.ID] = p
		g.order = append(g.order, p.ID)
		log.Printf("player %q (%s) joined at %d,%d", name, p.ID, spawn.X, spawn.Y)
		cp := *p
		return &cp, nil
	}
	return nil, ErrServerFull
}

// RemovePlayer drops a disconnected player and re-evaluates the round
func (g *Game) RemovePlayer(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[id]
	if !ok {
		return
	}
	delete(g.players, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	log.Printf("player %q (%s) left", p.Name, id)

	switch g.match.Phase {
	case PhaseWaiting:
		g.checkStart()
	case PhaseInProgress:
		if len(g.players) == 0 {
			log.Printf("arena empty, abandoning round")
			g.reset()
		}
	case PhaseGameOver:
	}
}

// HandleInput applies one intent from a joined player. Intents that do not
// fit the current phase are ignored.
func (g *Game) HandleInput(playerID string, in Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok {
		return
	}

	switch g.match.Phase {
	case PhaseWaiting:
		if _, ok := in.(ReadyIntent); ok {
			log.Printf("player %q ready=%v", p.Name, p.ToggleReady())
			g.checkStart()
		}
	case PhaseInProgress:
		if !p.Alive {
			return
		}
		switch in := in.(type) {
		case MoveIntent:
			p.AttemptMove(in.DX, in.DY, g.grid)
		case PlaceBombIntent:
			g.placeBomb(Cell{X: p.X, Y: p.Y}, g.now())
		}
	case PhaseGameOver:
	}
}

// Update runs one tick and returns what it produced
func (g *Game) Update() Frame {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.tick++
	g.events = nil

	switch g.match.Phase {
	case PhaseGameOver:
		if now.Sub(g.match.GameOverAt) > g.cfg.GameOverDuration {
			g.reset()
		}
	case PhaseInProgress:
		g.detonateBombs(now)
		g.checkEndgame(now)
		if g.match.Endgame {
			g.spawnRandomBomb(now)
		}
		g.checkWinCondition(now)
	case PhaseWaiting:
	}

	return Frame{
		Tick:       g.tick,
		Explosions: g.events,
		State:      g.snapshot(now),
	}
}

// Snapshot returns the current broadcast state
func (g *Game) Snapshot() GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot(g.now())
}

// PlayerCount returns the number of participants
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// Phase returns the current match phase
func (g *Game) Phase() MatchPhase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.match.Phase
}

func (g *Game) placeBomb(at Cell, now time.Time) {
	for _, b := range g.bombs {
		if b.X == at.X && b.Y == at.Y {
			return
		}
	}
	g.bombs = append(g.bombs, &Bomb{X: at.X, Y: at.Y, PlacedAt: now})
}

func (g *Game) detonateBombs(now time.Time) {
	var expired []*Bomb
	live := g.bombs[:0]
	for _, b := range g.bombs {
		if b.IsExpired(now, g.cfg.BombFuse) {
			expired = append(expired, b)
		} else {
			live = append(live, b)
		}
	}
	g.bombs = live

	for _, b := range expired {
		cells, killed := ResolveExplosion(g.grid, g.players, Cell{X: b.X, Y: b.Y}, g.cfg.BlastRadius)
		g.events = append(g.events, ExplosionEvent{Cells: cells})
		for _, p := range killed {
			log.Printf("player %q eliminated", p.Name)
		}
	}
}

func (g *Game) checkStart() {
	if g.match.Phase != PhaseWaiting || len(g.players) < g.cfg.MinPlayers {
		return
	}
	for _, p := range g.players {
		if !p.Ready {
			return
		}
	}
	g.match.Phase = PhaseInProgress
	g.match.RoundStart = g.now()
	log.Printf("all %d players ready, round started on %s", len(g.players), g.grid.Name)
}

func (g *Game) checkEndgame(now time.Time) {
	if g.match.Endgame {
		return
	}
	if now.Sub(g.match.RoundStart) > g.cfg.RoundDuration || !g.grid.BricksRemaining() {
		g.match.Endgame = true
		log.Printf("endgame activated")
	}
}

func (g *Game) spawnRandomBomb(now time.Time) {
	if g.rng.Float64() >= g.cfg.EndgameBombChance {
		return
	}
	open := g.grid.WalkableCells()
	if len(open) == 0 {
		return
	}
	g.placeBomb(open[g.rng.IntN(len(open))], now)
}

// checkWinCondition ends the round once at most one player has been alive for
// the whole grace delay. The pending timer resets if the count rises again.
func (g *Game) checkWinCondition(now time.Time) {
	var alive []*Player
	for _, id := range g.order {
		if p := g.players[id]; p.Alive {
			alive = append(alive, p)
		}
	}

	if len(alive) > 1 {
		g.match.WinPendingSince = time.Time{}
		return
	}
	if g.match.WinPendingSince.IsZero() {
		g.match.WinPendingSince = now
		log.Printf("win condition met, ending in %v", g.cfg.WinDelay)
	}
	if now.Sub(g.match.WinPendingSince) < g.cfg.WinDelay {
		return
	}

	winner := DrawMarker
	if len(alive) == 1 {
		winner = alive[0].Name
	}
	g.match.Phase = PhaseGameOver
	g.match.GameOverAt = now
	g.match.Endgame = false
	g.match.WinPendingSince = time.Time{}
	g.match.Winner = &winner
	log.Printf("round over, winner: %s", winner)

	if g.results != nil {
		names := make([]string, 0, len(g.order))
		for _, id := range g.order {
			names = append(names, g.players[id].Name)
		}
		g.results.Track(MatchResult{
			MapName:    g.grid.Name,
			Winner:     winner,
			Players:    names,
			Duration:   now.Sub(g.match.RoundStart),
			FinishedAt: now,
		})
	}
}

// reset starts a fresh WAITING round: new map copy, cleared spawn zones,
// shuffled spawns, no bombs, no winner.
func (g *Game) reset() {
	g.grid = g.maps.Pick(g.rng, len(g.players))
	spawns := g.grid.FindSpawnPositions()
	g.grid.ClearDestructiblesNear(spawns, spawnClearRadius)

	g.bombs = nil
	g.match = MatchState{Phase: PhaseWaiting}

	g.rng.Shuffle(len(spawns), func(i, j int) {
		spawns[i], spawns[j] = spawns[j], spawns[i]
	})
	for i, id := range g.order {
		p := g.players[id]
		if i < len(spawns) {
			p.Reset(spawns[i])
			continue
		}
		log.Printf("no spawn left for %q, sitting out this round", p.Name)
		p.Reset(spawns[i%len(spawns)])
		p.Alive = false
	}
	log.Printf("arena reset on map %s", g.grid.Name)
}

func (g *Game) snapshot(now time.Time) GameState {
	st := GameState{
		State:   g.match.Phase.String(),
		Map:     g.grid.Symbols(),
		Players: make([]PlayerState, 0, len(g.order)),
		Bombs:   make([]BombState, 0, len(g.bombs)),
	}
	if g.match.Winner != nil {
		w := *g.match.Winner
		st.Winner = &w
	}
	if g.match.Phase == PhaseInProgress {
		rem := (g.cfg.RoundDuration - now.Sub(g.match.RoundStart)).Seconds()
		if rem < 0 {
			rem = 0
		}
		st.TimeRemaining = &rem
	}
	for _, id := range g.order {
		st.Players = append(st.Players, g.players[id].ToState())
	}
	for _, b := range g.bombs {
		st.Bombs = append(st.Bombs, b.ToState())
	}
	return st
}
