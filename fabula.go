// Fabula, a storytelling party card game
//
// Each round, one player (the lead) secretly plays a card from their hand
// along with a free-text clue describing it. Every other player then plays
// the card from their own hand that best matches the clue, the table is
// shuffled, and everyone but the lead votes on which face-down card they
// think was the lead's. Guessing right (but not unanimously) pays out for
// the lead and the correct voters; luring votes to your own decoy always
// pays. Hands are topped up from a shared deck until it runs dry.
//
// Features:
// - WebSockets per room code: /path/:gameid and /path/:gameid/ws
// - Players identified by cookie (playerID), surviving reconnects
// - Room capacity 3-8; rooms promote themselves once 3 players are present
// - Disconnected players freeze the game until they return or are kicked
// - Per-player filtered state snapshots (nobody ever sees another hand)
// - Random 6-char room codes via crypto/rand, with collision check
// - Rooms auto-reaped once empty or after a configurable idle timeout
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type        string `json:"type"`                   // "leave", "kick", "start", "stop", "lead_choose_card", "choose_card", "vote", "next_round"
	CardID      string `json:"card_id,omitempty"`      // lead_choose_card / choose_card / vote
	Clue        string `json:"clue,omitempty"`         // lead_choose_card
	Forever     bool   `json:"forever,omitempty"`      // leave
	TargetColor string `json:"target_color,omitempty"` // kick
}

// StateMessage carries one viewer's filtered snapshot of the room.
type StateMessage struct {
	Type  string      `json:"type"` // "state"
	State PlayerState `json:"state"`
}

// SimpleMessage is for generic notifications ("kicked", "room_full", "rejected")
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

// Hub owns exactly one Room. All commands funnel through its run loop, so
// the Room itself never needs locking; the mutex only guards the client
// set and the bookkeeping the reaper reads from outside.
type Hub struct {
	code    string
	room    *Room
	clients map[*Client]bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	removals chan string // playerIDs whose grace period expired

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
	empty      bool
}

func newHub(cfg *Config, code string) *Hub {
	now := time.Now()
	return &Hub{
		code:       code,
		room:       newRoom(code, cfg.deckSize, cfg.handSize, nil),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		removals:   make(chan string),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(cfg, c)

		case c := <-h.unreg:
			h.handleUnregister(cfg, c)

		case cmd := <-h.commands:
			h.handleCommand(cfg, cmd)

		case playerID := <-h.removals:
			h.handleRemoval(cfg, playerID)
		}
	}
}

// handleRegister joins the connecting cookie into the room, or restores its
// existing seat. A full room turns unknown cookies away.
func (h *Hub) handleRegister(cfg *Config, c *Client) {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.clients[c] = true
	h.mu.Unlock()

	_, ok := h.room.Join(c.playerID)
	if !ok {
		c.send <- SimpleMessage{
			Type:    "room_full",
			Message: "This room is full; no new players may join.",
		}
		h.dropClient(c)
		return
	}

	logf(cfg, "GAMES: Player %s joined %s", c.playerID, h.code)
	h.broadcastStates()
}

// handleUnregister marks the player as disconnected (which freezes the
// round) and schedules their permanent removal unless they reconnect.
func (h *Hub) handleUnregister(cfg *Config, c *Client) {
	h.mu.Lock()
	h.lastActive = time.Now()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if h.connected(c.playerID) {
		return
	}

	if p := h.room.findPlayerByID(c.playerID); p != nil {
		h.room.Leave(p.Color, false)
		logf(cfg, "GAMES: Player %s disconnected from %s", c.playerID, h.code)
		go h.scheduleRemoval(c.playerID, cfg.playerTimeout)
	}

	h.broadcastStates()
}

// scheduleRemoval waits for d, and if no client with this playerID has
// reconnected by then, asks the run loop to remove the player for good.
func (h *Hub) scheduleRemoval(playerID string, d time.Duration) {
	time.Sleep(d)

	if h.connected(playerID) {
		return
	}

	h.removals <- playerID
}

func (h *Hub) connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.playerID == playerID {
			return true
		}
	}

	return false
}

func (h *Hub) handleRemoval(cfg *Config, playerID string) {
	if h.connected(playerID) {
		return
	}

	p := h.room.findPlayerByID(playerID)
	if p == nil {
		return
	}

	h.room.Leave(p.Color, true)
	logf(cfg, "GAMES: Player %s removed from %s after grace period", playerID, h.code)

	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()

	h.broadcastStates()
}

func (h *Hub) handleCommand(cfg *Config, cmd command) {
	c := cmd.client
	msg := cmd.msg

	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()

	actor := h.room.findPlayerByID(c.playerID)
	if actor == nil {
		return
	}

	var kicked *Player
	applied := false

	switch msg.Type {
	case "leave":
		h.room.Leave(actor.Color, msg.Forever)
		applied = true

	case "kick":
		kicked = h.room.findPlayer(Color(msg.TargetColor))
		applied = h.room.Kick(Color(msg.TargetColor))
		if !applied {
			kicked = nil
		}

	case "start":
		applied = h.room.Start()

	case "stop":
		applied = h.room.Stop()

	case "lead_choose_card":
		applied = h.room.LeadChooseCard(actor.Color, Card(msg.CardID), msg.Clue)

	case "choose_card":
		applied = h.room.OtherPlayerChooseCard(actor.Color, Card(msg.CardID))

	case "vote":
		applied = h.room.OtherPlayerVote(actor.Color, Card(msg.CardID))

	case "next_round":
		applied = h.room.StartNextRound(actor.Color)

	default:
		return
	}

	if !applied {
		h.sendTo(c, SimpleMessage{
			Type:    "rejected",
			Message: msg.Type,
		})
		return
	}

	logf(cfg, "GAMES: %s applied by %s in %s", msg.Type, actor.Color, h.code)

	if kicked != nil {
		h.disconnectPlayer(kicked.ID, "You have been removed from the room.")
	}

	if msg.Type == "leave" && msg.Forever {
		h.disconnectPlayer(c.playerID, "You have left the room.")
	}

	h.broadcastStates()
}

// broadcastStates pushes a fresh filtered snapshot to every connection, and
// refreshes the emptiness flag the reaper polls.
func (h *Hub) broadcastStates() {
	states := h.room.StatesForPlayers()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.empty = h.room.IsEmpty()

	for client := range h.clients {
		state, ok := states[client.playerID]
		if !ok {
			continue
		}

		select {
		case client.send <- StateMessage{
			Type:  "state",
			State: state,
		}:
		default:
			delete(h.clients, client)
			close(client.send)
		}
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) dropClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// disconnectPlayer notifies and closes every connection of one player.
func (h *Hub) disconnectPlayer(playerID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.playerID != playerID {
			continue
		}

		select {
		case client.send <- SimpleMessage{
			Type:    "kicked",
			Message: reason,
		}:
		default:
		}

		delete(h.clients, client)
		close(client.send)
	}
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "fabula_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// GameManager holds a set of hubs keyed by room code, so each $path/$gameid
// is its own isolated room.
type GameManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newGameManager(idleTimeout time.Duration) *GameManager {
	gm := &GameManager{
		hubs:        make(map[string]*Hub),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go gm.reaperLoop()
	}
	return gm
}

func (gm *GameManager) getHub(cfg *Config, code string) *Hub {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	if hub, ok := gm.hubs[code]; ok {
		return hub
	}

	hub := newHub(cfg, code)
	gm.hubs[code] = hub
	go hub.run(cfg)
	return hub
}

// newRoomCode generates a crypto-random 6-letter room code and ensures it
// doesn't collide with an existing room.
func (gm *GameManager) newRoomCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 6)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		gm.mu.Lock()
		_, exists := gm.hubs[code]
		gm.mu.Unlock()

		if !exists {
			return code
		}
	}
}

// reaperLoop periodically removes hubs that have gone empty or idle.
func (gm *GameManager) reaperLoop() {
	ticker := time.NewTicker(gm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-gm.idleTimeout)

		gm.mu.Lock()
		for code, hub := range gm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			empty := hub.empty
			hub.mu.RUnlock()

			if empty || last.Before(cutoff) {
				delete(gm.hubs, code)
				go hub.closeAll()
			}
		}
		gm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :gameid
func serveWSForManager(cfg *Config, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := strings.ToUpper(ps.ByName("gameid"))
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := gm.getHub(cfg, code)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "leave", "kick", "start", "stop", "lead_choose_card", "choose_card", "vote", "next_round":
			h.commands <- command{
				client: c,
				msg:    msg,
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("gameid")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:gameid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// ---- Static file paths ----

//go:embed fabula/index.html
var indexHTML []byte

//go:embed fabula/app.css
var fabulaCSS []byte

//go:embed fabula/app.js
var fabulaJS []byte

func getIndexHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(fabulaCSS)
	}
}

func getJsHandler(cfg *Config) func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(fabulaJS)
	}
}

// redirectNewGame handles GET /path by generating a new random room code
// (with server-side collision detection) and redirecting to /path/:gameid.
func redirectNewGame(cfg *Config, path string, gm *GameManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := gm.newRoomCode()
		logf(cfg, "GAMES: Created room %s/%s", path, code)
		http.Redirect(w, r, cfg.prefix+path+"/"+code, http.StatusTemporaryRedirect)
	}
}

// registerFabulaGame sets up routes so that:
//   - $path                  → redirects to a new random room (6-char code)
//   - $path/:gameid          → HTML client
//   - $path/:gameid/ws       → WebSocket for that room
//   - $path/:gameid/qr       → PNG QR code for that room URL
func registerFabulaGame(cfg *Config, path string, mux *httprouter.Router) {
	gm := newGameManager(cfg.sessionTimeout)

	// Root path → redirect to new random room
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, gm))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:gameid", getIndexHandler(cfg))

	// Shared assets (no gameid in route)
	mux.GET(cfg.prefix+"/assets/fabula/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/fabula/app.js", getJsHandler(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, gm))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
