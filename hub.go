package main

import (
	"context"
	"log"
	"sync"
)

const (
	maxConnsPerIP = 8
	maxTotalConns = 256
)

// member is a connection that has completed its join
type member struct {
	role     string
	encoding string
	playerID string
}

// Hub tracks live connections, maps joined ones to players and fans each
// tick's frame out to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	members    map[*Client]member
	unregister chan *Client
	done       chan struct{}
	game       *Game
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a Hub routing intents to game
func NewHub(game *Game) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		members:    make(map[*Client]member),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		game:       game,
		ipConns:    make(map[string]int),
	}
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Register adds a freshly upgraded connection
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Attach marks a connection as joined so it starts receiving broadcasts
func (h *Hub) Attach(c *Client, m member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		h.members[c] = m
	}
}

// Unregister queues a closed connection for teardown
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run processes connection teardown until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.unregister:
			h.remove(client)
		case <-ctx.Done():
			return nil
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	m, joined := h.members[c]
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		delete(h.members, c)
		close(c.send)
	}
	h.mu.Unlock()

	if !joined {
		return
	}
	switch m.role {
	case RolePlayer:
		h.game.RemovePlayer(m.playerID)
	case RoleSpectator:
		log.Printf("spectator %s disconnected", c.remoteAddr)
	}
}

// Publish sends a tick's frame to every joined connection. Each frame is
// encoded once per encoding in use; a slow or closed connection only loses
// its own copy.
func (h *Hub) Publish(f Frame) {
	h.mu.RLock()
	targets := make(map[*Client]string, len(h.members))
	for c, m := range h.members {
		targets[c] = m.encoding
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	encoded := make(map[string]frameMessages, 2)
	for c, enc := range targets {
		fm, ok := encoded[enc]
		if !ok {
			var err error
			fm, err = encodeFrame(f, enc)
			if err != nil {
				log.Printf("encode %s frame %d: %v", enc, f.Tick, err)
				return
			}
			encoded[enc] = fm
		}
		for _, msg := range fm.msgs {
			if fm.binary {
				c.SendBinary(msg)
			} else {
				c.SendRaw(msg)
			}
		}
	}
}

// ClientCount returns the number of open connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MemberCounts returns joined players and spectators
func (h *Hub) MemberCounts() (players, spectators int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.members {
		if m.role == RolePlayer {
			players++
		} else {
			spectators++
		}
	}
	return players, spectators
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
