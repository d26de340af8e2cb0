package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

const (
	recentRoundsLimit = 20
	qrSize            = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes. The websocket endpoint is served at
// both / (where game clients dial) and /ws.
func SetupRoutes(hub *Hub, cfg Config, results *ResultsDB) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !websocket.IsWebSocketUpgrade(r) {
			http.Error(w, "websocket endpoint", http.StatusUpgradeRequired)
			return
		}
		serveWS(hub, w, r)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		players, spectators := hub.MemberCounts()
		writeJSON(w, map[string]interface{}{
			"phase":       hub.game.Phase().String(),
			"connections": hub.ClientCount(),
			"players":     players,
			"spectators":  spectators,
		})
	})

	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		if results == nil {
			http.Error(w, "results disabled", http.StatusNotFound)
			return
		}
		rounds, err := results.RecentRounds(recentRoundsLimit)
		if err != nil {
			log.Printf("results query: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		wins, err := results.WinCounts(recentRoundsLimit)
		if err != nil {
			log.Printf("results query: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"rounds": rounds, "wins": wins})
	})

	mux.HandleFunc("/qr.png", func(w http.ResponseWriter, r *http.Request) {
		target := cfg.PublicURL
		if target == "" {
			target = "ws://" + r.Host + "/"
		}
		png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
		if err != nil {
			log.Printf("qr encode: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	return mux
}

func serveWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)
	if !hub.CanAccept(ip) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade error: %v", err)
		return
	}

	hub.TrackConnect(ip)

	client := NewClient(hub, conn, ip)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}
