package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024
	sendBufSize       = 256
	maxMessagesPerSec = 60
)

const closeReasonFull = "Server is full"

// Client represents a WebSocket connection. Its fields are owned by the
// ReadPump goroutine; the hub keeps its own view of the join in member.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	joined     bool
	role       string
	playerID   string
	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection. Any protocol error
// ends the loop and the connection is torn down like a normal disconnect.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		if err := c.handleMessage(message); err != nil {
			if !errors.Is(err, ErrServerFull) {
				log.Printf("dropping %s: %v", c.remoteAddr, err)
			}
			break
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage routes one inbound message. Until the join, nothing else is
// accepted; spectators never submit intents.
func (c *Client) handleMessage(raw []byte) error {
	if c.joined && c.role == RoleSpectator {
		return nil
	}
	intent, err := DecodeIntent(raw)
	if err != nil {
		return err
	}

	if !c.joined {
		join, ok := intent.(JoinIntent)
		if !ok {
			return fmt.Errorf("%w: %s before join", ErrProtocol, intent.intentType())
		}
		return c.handleJoin(join)
	}
	if _, ok := intent.(JoinIntent); ok {
		return nil
	}
	c.hub.game.HandleInput(c.playerID, intent)
	return nil
}

func (c *Client) handleJoin(j JoinIntent) error {
	if j.Role == RoleSpectator {
		c.joined = true
		c.role = RoleSpectator
		c.hub.Attach(c, member{role: RoleSpectator, encoding: j.Encoding})
		log.Printf("spectator %s connected", c.remoteAddr)
		return nil
	}

	name := CleanName(j.Name)
	player, err := c.hub.game.AddPlayer(name, j.Color)
	if err != nil {
		log.Printf("rejected %q from %s: %v", name, c.remoteAddr, err)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, closeReasonFull),
			time.Now().Add(writeWait))
		return err
	}

	c.joined = true
	c.role = RolePlayer
	c.playerID = player.ID
	c.SendJSON(Envelope{Type: MsgAssignID, Payload: player.ID})
	c.hub.Attach(c, member{role: RolePlayer, encoding: j.Encoding, playerID: player.ID})
	return nil
}
