// Chessvite Room Server
//
// Two or more clients join a named room to play a synchronized two-player
// chess game while exchanging chat messages. The server is the single source
// of truth for room membership, role assignment, and board state.
//
// Features:
// - WebSockets per room: /chess/:room and /chess/:room/ws
// - Rooms are created explicitly; the creator always plays white
// - Joiners fill the first vacant color, then become observers
// - Moves are validated against role, turn order, and chess legality
// - Accepted moves broadcast the authoritative FEN to the whole room
// - Rejected moves are signaled only to the requester and never broadcast
// - Chat lines are stored in an append-only transcript and replayed to
//   late joiners
// - Disconnects vacate the departed color for the next joiner
// - Empty rooms are deleted; idle rooms are reaped after a configurable timeout
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	_ "embed"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "create_room", "join_room", "move", "chat"
	Username string `json:"username,omitempty"` // create_room / join_room
	RoomName string `json:"roomName,omitempty"` // all types; defaults to the socket's room path
	Message  string `json:"message,omitempty"`  // chat
	Move     *Move  `json:"move,omitempty"`     // move
}

// RoleAssignedMessage tells the joining/creating client which color (or
// observer seat) it controls.
type RoleAssignedMessage struct {
	Type string `json:"type"` // "role_assigned"
	Role Role   `json:"role"`
}

// RosterUpdateMessage replaces the client's displayed roster wholesale.
type RosterUpdateMessage struct {
	Type   string        `json:"type"` // "roster_update"
	Roster []RosterEntry `json:"roster"`
}

// BoardStateMessage carries the authoritative position. Clients must replace
// any locally optimistic board with it unconditionally; re-applying an
// identical snapshot is a no-op.
type BoardStateMessage struct {
	Type   string `json:"type"` // "board_state"
	FEN    string `json:"fen"`
	Turn   Role   `json:"turn"`
	Status string `json:"status,omitempty"` // "checkmate", "stalemate", "draw" when terminal
}

// ChatBroadcastMessage is appended to every client's displayed transcript,
// the sender included.
type ChatBroadcastMessage struct {
	Type     string `json:"type"` // "chat_message"
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ErrorMessage is sent only to the client whose request was rejected.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client binds one transport connection to at most one room membership. The
// connection ID is generated at connect time and discarded at disconnect.
// send is allocated by the room at join time, sized so the join bootstrap
// (role, board, transcript replay, roster) always fits; the write pump starts
// only once it exists.
type Client struct {
	conn     *websocket.Conn
	send     chan any
	id       string
	username string
	room     *Room
}

// trySend queues msg without blocking; a full buffer drops the message and
// leaves eviction to the next room broadcast.
func (c *Client) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(err error) {
	msg := ErrorMessage{Type: "error", Code: errorCode(err), Message: err.Error()}

	// Before the first join there is no send buffer and no write pump; the
	// read loop is the only goroutine touching the connection, so write
	// directly.
	if c.send == nil {
		if c.conn != nil {
			_ = c.conn.WriteJSON(msg)
		}
		return
	}

	c.trySend(msg)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWSForRegistry upgrades the connection and runs the session until the
// peer disconnects, at which point its membership is removed and the roster
// re-broadcast.
func serveWSForRegistry(reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Str("remote", realIP(r)).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			conn: conn,
			id:   uuid.NewString(),
		}

		client.readPump(reg, ps.ByName("room"))
	}
}

// readPump dispatches inbound messages strictly in arrival order, each one
// handled to completion before the next is dequeued.
func (c *Client) readPump(reg *Registry, pathRoom string) {
	defer func() {
		reg.RemoveConnection(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if msg.RoomName == "" {
			msg.RoomName = pathRoom
		}

		switch msg.Type {
		case "create_room":
			c.handleCreate(reg, msg)
		case "join_room":
			c.handleJoin(reg, msg)
		case "move":
			c.handleMove(msg)
		case "chat":
			c.handleChat(msg)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) handleCreate(reg *Registry, msg ClientMessage) {
	if msg.Username == "" || msg.RoomName == "" {
		return
	}
	if c.room != nil {
		c.sendError(ErrAlreadyInRoom)
		return
	}

	if _, _, err := reg.CreateRoom(msg.RoomName, msg.Username, c); err != nil {
		c.sendError(err)
		return
	}

	go c.writePump()
}

func (c *Client) handleJoin(reg *Registry, msg ClientMessage) {
	if msg.Username == "" || msg.RoomName == "" {
		return
	}
	if c.room != nil {
		c.sendError(ErrAlreadyInRoom)
		return
	}

	if _, _, err := reg.JoinRoom(msg.RoomName, msg.Username, c); err != nil {
		c.sendError(err)
		return
	}

	go c.writePump()
}

func (c *Client) handleMove(msg ClientMessage) {
	if c.room == nil {
		c.sendError(ErrConnectionNotInRoom)
		return
	}
	if msg.Move == nil {
		return
	}

	if err := c.room.applyMove(c, *msg.Move); err != nil {
		c.sendError(err)
	}
}

func (c *Client) handleChat(msg ClientMessage) {
	if c.room == nil {
		c.sendError(ErrConnectionNotInRoom)
		return
	}

	c.room.appendChat(c, msg.Message)
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
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := ps.ByName("room")
		if room == "" {
			http.Error(w, "missing room name", http.StatusBadRequest)
			return
		}

		// Derive scheme; X-Forwarded-Proto is honored only for the two
		// schemes a proxy can legitimately forward.
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		// We are at /.../:room/qr; strip trailing "/qr" to get the room URL.
		path := strings.TrimSuffix(r.URL.Path, "/qr")

		url := scheme + "://" + r.Host + path

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// ---- Static file paths ----

//go:embed chess/index.html
var indexHTML []byte

//go:embed chess/app.css
var chessCSS []byte

//go:embed chess/app.js
var chessJS []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

func getCssHandler(cfg *Config) httprouter.Handle {
	return staticAssetHandler(cfg, "text/css; charset=utf-8", chessCSS)
}

func getJsHandler(cfg *Config) httprouter.Handle {
	return staticAssetHandler(cfg, "application/javascript; charset=utf-8", chessJS)
}

// newRoomName generates a crypto-random 8-char room name for the entry
// redirect. Uniqueness is not required here: a visitor landing on a name that
// is already registered simply joins that room.
func newRoomName() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	out := make([]byte, 8)
	for i := range out {
		out[i] = letters[int(buf[i])%len(letters)]
	}

	return string(out)
}

// redirectNewRoom handles GET /path by generating a random room name and
// redirecting to /path/:room, where the entry form lets the visitor keep or
// change it before creating or joining.
func redirectNewRoom(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		room := newRoomName()

		log.Debug().Str("room", room).Str("remote", realIP(r)).Msg("suggested room name")

		http.Redirect(w, r, cfg.prefix+path+"/"+room, http.StatusTemporaryRedirect)
	}
}

// registerChessGame sets up routes so that:
//   - $path             → redirects to a fresh random room page
//   - $path/:room       → HTML client
//   - $path/:room/ws    → WebSocket for that room
//   - $path/:room/qr    → PNG QR code for that room URL
func registerChessGame(cfg *Config, path string, mux *httprouter.Router) *Registry {
	reg := newRegistry(cfg.sessionTimeout)

	// Root path → redirect to a random room page
	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path))

	// Per-room client view (HTML)
	mux.GET(cfg.prefix+path+"/:room", getIndexHandler(cfg))

	// Shared assets (no room in route)
	mux.GET(cfg.prefix+"/assets/chess/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/chess/app.js", getJsHandler(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:room/ws", serveWSForRegistry(reg))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:room/qr", qrHandler(cfg))

	return reg
}
