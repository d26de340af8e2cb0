package main

import "time"

// MatchPhase represents the lifecycle of a round
type MatchPhase int

const (
	PhaseWaiting MatchPhase = iota
	PhaseInProgress
	PhaseGameOver
)

func (p MatchPhase) String() string {
	switch p {
	case PhaseWaiting:
		return "WAITING"
	case PhaseInProgress:
		return "IN_PROGRESS"
	case PhaseGameOver:
		return "GAME_OVER"
	}
	return "UNKNOWN"
}

// DrawMarker is reported as the winner when nobody survives
const DrawMarker = "DRAW"

// spawnClearRadius is the half-size of the brick-free square around spawns
const spawnClearRadius = 1

// MatchState holds the per-round state that a reset clears
type MatchState struct {
	Phase           MatchPhase
	Winner          *string
	RoundStart      time.Time
	GameOverAt      time.Time
	WinPendingSince time.Time
	Endgame         bool
}

// MatchResult is handed to the results recorder when a round ends
type MatchResult struct {
	MapName    string
	Winner     string
	Players    []string
	Duration   time.Duration
	FinishedAt time.Time
}
