package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// wireEnvelope keeps the payload raw so each test decodes what it expects
type wireEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func integrationConfig() Config {
	cfg := testConfig()
	cfg.BombFuse = 150 * time.Millisecond
	cfg.WinDelay = 100 * time.Millisecond
	cfg.GameOverDuration = 200 * time.Millisecond
	return cfg
}

// startTestServer runs a real-time arena on the test map behind an
// httptest.Server and returns the game, its WebSocket URL and a cleanup func.
func startTestServer(t *testing.T, cfg Config) (*Game, *httptest.Server, string, func()) {
	t.Helper()

	lib, err := NewMapLibrary(mustMap(t, "test", testRows))
	if err != nil {
		t.Fatal(err)
	}
	game := NewGame(cfg, lib)
	hub := NewHub(game)
	results, err := OpenResultsDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	recorder := NewRecorder(results)
	game.SetResults(recorder)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go game.Run(ctx, hub)

	srv := httptest.NewServer(SetupRoutes(hub, cfg, results))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	return game, srv, wsURL, func() {
		srv.Close()
		cancel()
		recorder.Stop()
		results.Close()
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads one JSON message from the WebSocket.
func readEnvelope(t *testing.T, conn *websocket.Conn) wireEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// readUntil skips messages until one of the given type satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn)
		if env.Type == msgType && (match == nil || match(env.Payload)) {
			return env.Payload
		}
	}
	t.Fatalf("no %s message matched in time", msgType)
	return nil
}

func stateIs(want string) func(json.RawMessage) bool {
	return func(raw json.RawMessage) bool {
		var st GameState
		return json.Unmarshal(raw, &st) == nil && st.State == want
	}
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg map[string]interface{}) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// joinPlayer joins as a player and returns the assigned id.
func joinPlayer(t *testing.T, conn *websocket.Conn, name string) string {
	t.Helper()
	sendMsg(t, conn, map[string]interface{}{"type": "join", "name": name})
	env := readEnvelope(t, conn)
	if env.Type != MsgAssignID {
		t.Fatalf("expected assign_id first, got %s", env.Type)
	}
	var id string
	if err := json.Unmarshal(env.Payload, &id); err != nil {
		t.Fatalf("assign_id payload: %v", err)
	}
	return id
}

// expectClosed waits until the server closes the connection.
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				t.Fatal("connection was not closed")
			}
			return
		}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ---------- tests ----------

func TestJoinAssignsUUID(t *testing.T) {
	_, _, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	conn := dialWS(t, wsURL)
	id := joinPlayer(t, conn, "Alice")
	if !uuidRegex.MatchString(id) {
		t.Errorf("player id %q is not a UUID v4", id)
	}
}

func TestGameStateBroadcasts(t *testing.T) {
	_, _, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	conn := dialWS(t, wsURL)
	id := joinPlayer(t, conn, "   ")

	raw := readUntil(t, conn, MsgGameState, nil)
	var st GameState
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "WAITING" {
		t.Errorf("expected WAITING, got %s", st.State)
	}
	if len(st.Map) != 5 || len(st.Map[0]) != 7 {
		t.Errorf("expected a 7x5 map, got %dx%d", len(st.Map[0]), len(st.Map))
	}
	if len(st.Players) != 1 || st.Players[0].ID != id {
		t.Fatalf("expected the joined player in the snapshot, got %+v", st.Players)
	}
	if st.Players[0].Name != defaultName {
		t.Errorf("blank names default to %q, got %q", defaultName, st.Players[0].Name)
	}
}

func TestServerFullRejected(t *testing.T) {
	_, _, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	joinPlayer(t, dialWS(t, wsURL), "A")
	joinPlayer(t, dialWS(t, wsURL), "B")

	third := dialWS(t, wsURL)
	sendMsg(t, third, map[string]interface{}{"type": "join", "name": "C"})
	third.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := third.ReadMessage()
	if err == nil {
		t.Fatalf("expected close, got message %s", raw)
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected close code 1008, got %v", err)
	}
	if ce, ok := err.(*websocket.CloseError); ok && ce.Text != closeReasonFull {
		t.Errorf("close reason = %q, want %q", ce.Text, closeReasonFull)
	}
}

func TestMessageBeforeJoinDisconnects(t *testing.T) {
	game, _, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	conn := dialWS(t, wsURL)
	sendMsg(t, conn, map[string]interface{}{"type": "ready"})
	expectClosed(t, conn)
	if game.PlayerCount() != 0 {
		t.Error("no player should exist")
	}
}

func TestMalformedMessageRemovesPlayer(t *testing.T) {
	game, _, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	conn := dialWS(t, wsURL)
	joinPlayer(t, conn, "A")
	if game.PlayerCount() != 1 {
		t.Fatal("expected 1 player")
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":`))
	expectClosed(t, conn)
	waitFor(t, func() bool { return game.PlayerCount() == 0 }, "player removal")
}

func TestSpectatorReceivesMsgpack(t *testing.T) {
	_, _, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	conn := dialWS(t, wsURL)
	sendMsg(t, conn, map[string]interface{}{"type": "join", "role": "spectator", "encoding": "msgpack"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame, got type %d", msgType)
	}
	var env struct {
		Type    string    `json:"type"`
		Payload GameState `json:"payload"`
	}
	if err := decodeMsgpack(raw, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != MsgGameState || env.Payload.State != "WAITING" {
		t.Errorf("unexpected spectator frame %s/%s", env.Type, env.Payload.State)
	}

	// Spectator input is ignored, not a protocol error
	sendMsg(t, conn, map[string]interface{}{"type": "place_bomb"})
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Errorf("spectator should stay connected: %v", err)
	}
}

func TestFullRound(t *testing.T) {
	game, srv, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	a := dialWS(t, wsURL)
	joinPlayer(t, a, "A")
	b := dialWS(t, wsURL)
	joinPlayer(t, b, "B")

	sendMsg(t, a, map[string]interface{}{"type": "ready"})
	sendMsg(t, b, map[string]interface{}{"type": "ready"})
	readUntil(t, a, MsgGameState, stateIs("IN_PROGRESS"))

	// A bombs (2,1) and hides at (1,2); B walks into (4,1)
	sendMsg(t, a, map[string]interface{}{"type": "move", "dx": 1, "dy": 0})
	sendMsg(t, a, map[string]interface{}{"type": "place_bomb"})
	sendMsg(t, a, map[string]interface{}{"type": "move", "dx": -1, "dy": 0})
	sendMsg(t, a, map[string]interface{}{"type": "move", "dx": 0, "dy": 1})
	sendMsg(t, b, map[string]interface{}{"type": "move", "dx": -1, "dy": 0})

	raw := readUntil(t, a, MsgExplosionBatch, nil)
	var batch []ExplosionEvent
	if err := json.Unmarshal(raw, &batch); err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || len(batch[0].Cells) != 4 || batch[0].Cells[0] != (Cell{2, 1}) {
		t.Fatalf("unexpected explosion batch %s", raw)
	}

	// The state sent in the same tick already reflects the blast
	env := readEnvelope(t, a)
	if env.Type != MsgGameState {
		t.Fatalf("explosion batch must be followed by game_state, got %s", env.Type)
	}

	raw = readUntil(t, a, MsgGameState, stateIs("GAME_OVER"))
	var st GameState
	json.Unmarshal(raw, &st)
	if st.Winner == nil || *st.Winner != "A" {
		t.Fatalf("expected A to win, got %v", st.Winner)
	}

	raw = readUntil(t, a, MsgGameState, stateIs("WAITING"))
	json.Unmarshal(raw, &st)
	for _, p := range st.Players {
		if !p.Alive || p.Ready {
			t.Errorf("players should be alive and not ready after reset: %+v", p)
		}
	}
	if st.Map[2][3] != "." {
		t.Error("bricks should be restored after reset")
	}
	if game.PlayerCount() != 2 {
		t.Errorf("both players stay connected across rounds, got %d", game.PlayerCount())
	}

	// The finished round shows up in the ledger
	waitFor(t, func() bool {
		resp, err := http.Get(srv.URL + "/results")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Rounds []RoundRow `json:"rounds"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil &&
			len(body.Rounds) == 1 && body.Rounds[0].Winner == "A"
	}, "round result")
}

func TestHealthz(t *testing.T) {
	_, srv, wsURL, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	joinPlayer(t, dialWS(t, wsURL), "A")

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Phase   string `json:"phase"`
		Players int    `json:"players"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Phase != "WAITING" || body.Players != 1 {
		t.Errorf("unexpected health %+v", body)
	}
}

func TestRootRequiresUpgrade(t *testing.T) {
	_, srv, _, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("expected 426, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestWSEndpoint(t *testing.T) {
	_, srv, _, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	conn := dialWS(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	joinPlayer(t, conn, "A")
}

func TestQRCode(t *testing.T) {
	_, srv, _, cleanup := startTestServer(t, integrationConfig())
	defer cleanup()

	resp, err := http.Get(srv.URL + "/qr.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Error("body is not a PNG")
	}
}
