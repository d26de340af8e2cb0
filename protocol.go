package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrProtocol       = errors.New("protocol error")
	ErrUnknownMessage = fmt.Errorf("%w: unknown message type", ErrProtocol)
)

// Client -> Server message types
const (
	MsgJoin      = "join"
	MsgReady     = "ready"
	MsgMove      = "move"
	MsgPlaceBomb = "place_bomb"
)

// Server -> Client message types
const (
	MsgAssignID       = "assign_id"
	MsgExplosionBatch = "explosion_event_batch"
	MsgGameState      = "game_state"
)

// Join roles
const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

// Broadcast encodings a connection may ask for on join
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Intent is a decoded client message. The concrete type is one of
// JoinIntent, ReadyIntent, MoveIntent or PlaceBombIntent.
type Intent interface {
	intentType() string
}

// JoinIntent is the first message of every connection
type JoinIntent struct {
	Role     string
	Name     string
	Color    *Color
	Encoding string
}

type ReadyIntent struct{}

// MoveIntent is a single-tile step; each axis is in [-1, 1]
type MoveIntent struct {
	DX, DY int
}

type PlaceBombIntent struct{}

func (JoinIntent) intentType() string      { return MsgJoin }
func (ReadyIntent) intentType() string     { return MsgReady }
func (MoveIntent) intentType() string      { return MsgMove }
func (PlaceBombIntent) intentType() string { return MsgPlaceBomb }

// inMessage is the union of every inbound field; it never leaves DecodeIntent
type inMessage struct {
	Type     string   `json:"type"`
	Role     *string  `json:"role"`
	Name     *string  `json:"name"`
	Color    *inColor `json:"color"`
	Encoding *string  `json:"encoding"`
	DX       *int     `json:"dx"`
	DY       *int     `json:"dy"`
}

type inColor struct {
	Red   *float64 `json:"red"`
	Green *float64 `json:"green"`
	Blue  *float64 `json:"blue"`
}

// DecodeIntent parses and validates one inbound message
func DecodeIntent(raw []byte) (Intent, error) {
	var msg inMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	switch msg.Type {
	case MsgJoin:
		return decodeJoin(msg)
	case MsgReady:
		return ReadyIntent{}, nil
	case MsgPlaceBomb:
		return PlaceBombIntent{}, nil
	case MsgMove:
		if msg.DX == nil || msg.DY == nil {
			return nil, fmt.Errorf("%w: move needs dx and dy", ErrProtocol)
		}
		if !unitStep(*msg.DX) || !unitStep(*msg.DY) {
			return nil, fmt.Errorf("%w: move step (%d,%d) out of range", ErrProtocol, *msg.DX, *msg.DY)
		}
		return MoveIntent{DX: *msg.DX, DY: *msg.DY}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownMessage, msg.Type)
}

func unitStep(v int) bool {
	return v >= -1 && v <= 1
}

func decodeJoin(msg inMessage) (Intent, error) {
	j := JoinIntent{Role: RolePlayer, Encoding: EncodingJSON}
	if msg.Role != nil {
		j.Role = *msg.Role
	}
	if j.Role != RolePlayer && j.Role != RoleSpectator {
		return nil, fmt.Errorf("%w: unknown role %q", ErrProtocol, j.Role)
	}
	if msg.Encoding != nil && *msg.Encoding != "" {
		j.Encoding = *msg.Encoding
	}
	if j.Encoding != EncodingJSON && j.Encoding != EncodingMsgpack {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrProtocol, j.Encoding)
	}
	if msg.Name != nil {
		j.Name = *msg.Name
	}
	if msg.Color != nil {
		c := Color{Red: 1}
		if msg.Color.Red != nil {
			c.Red = *msg.Color.Red
		}
		if msg.Color.Green != nil {
			c.Green = *msg.Color.Green
		}
		if msg.Color.Blue != nil {
			c.Blue = *msg.Color.Blue
		}
		j.Color = &c
	}
	return j, nil
}

// PlayerState is broadcast per player each tick
type PlayerState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Alive bool   `json:"alive"`
	Ready bool   `json:"ready"`
	Color *Color `json:"color,omitempty"`
}

// BombState is broadcast per live bomb
type BombState struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GameState is the full snapshot broadcast every tick
type GameState struct {
	State         string        `json:"state"`
	Winner        *string       `json:"winner"`
	TimeRemaining *float64      `json:"time_remaining"`
	Map           [][]string    `json:"map"`
	Players       []PlayerState `json:"players"`
	Bombs         []BombState   `json:"bombs"`
}

// ExplosionEvent lists the cells hit by one detonation
type ExplosionEvent struct {
	Cells []Cell `json:"cells"`
}

// Frame is everything one tick publishes: explosions first, then the snapshot
type Frame struct {
	Tick       uint64
	Explosions []ExplosionEvent
	State      GameState
}
