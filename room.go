package main

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RoomState is the room's lifecycle phase, derived from the roster and the
// engine's terminal status.
type RoomState string

const (
	StateEmpty            RoomState = "empty"
	StateAwaitingOpponent RoomState = "awaiting_opponent"
	StateActive           RoomState = "active"
	StateTerminal         RoomState = "terminal"
)

// rosterEntry is the server-side membership record. Connection IDs never
// leave the server; broadcasts carry RosterEntry views instead.
type rosterEntry struct {
	connID   string
	username string
	role     Role
}

// RosterEntry is the client-facing view of one participant.
type RosterEntry struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// ChatEntry is one transcript line.
type ChatEntry struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Room owns one position, the roster of connected participants, and the chat
// transcript. All access is serialized through mu, so move application and
// roster mutations never interleave; requests are handled strictly in the
// order the lock admits them.
type Room struct {
	name string

	mu         sync.RWMutex
	position   *Position
	clients    map[*Client]bool
	roster     []rosterEntry
	transcript []ChatEntry

	createdAt  time.Time
	lastActive time.Time
}

func newRoom(name string) *Room {
	now := time.Now()

	return &Room{
		name:       name,
		position:   NewPosition(),
		clients:    make(map[*Client]bool),
		createdAt:  now,
		lastActive: now,
	}
}

func (r *Room) state() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stateLocked()
}

func (r *Room) stateLocked() RoomState {
	if r.position.Terminal() {
		return StateTerminal
	}

	white := r.hasRoleLocked(RoleWhite)
	black := r.hasRoleLocked(RoleBlack)

	switch {
	case white && black:
		return StateActive
	case white || black:
		return StateAwaitingOpponent
	default:
		return StateEmpty
	}
}

func (r *Room) hasRoleLocked(role Role) bool {
	for _, e := range r.roster {
		if e.role == role {
			return true
		}
	}
	return false
}

// addMember hands out the first vacant color (white, then black, observer once
// both are taken), records the membership, and bootstraps the new client with
// its role, the authoritative board, and the transcript so far. The updated
// roster and board are then broadcast to the whole room.
func (r *Room) addMember(c *Client, username string) Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	role := RoleObserver
	switch {
	case !r.hasRoleLocked(RoleWhite):
		role = RoleWhite
	case !r.hasRoleLocked(RoleBlack):
		role = RoleBlack
	}

	r.clients[c] = true
	r.roster = append(r.roster, rosterEntry{connID: c.id, username: username, role: role})

	// The send buffer is allocated here, before the write pump starts, sized
	// so the full bootstrap burst fits: a long transcript must never overflow
	// it and get the joiner evicted by its own roster broadcast.
	c.send = make(chan any, len(r.transcript)+64)

	c.trySend(RoleAssignedMessage{Type: "role_assigned", Role: role})
	c.trySend(r.boardMessageLocked())
	for _, entry := range r.transcript {
		c.trySend(ChatBroadcastMessage{Type: "chat_message", Username: entry.Username, Message: entry.Message})
	}

	r.broadcastLocked(r.rosterMessageLocked())
	r.broadcastLocked(r.boardMessageLocked())

	log.Info().
		Str("room", r.name).
		Str("conn", c.id).
		Str("user", username).
		Str("role", string(role)).
		Msg("member joined")

	return role
}

// removeMember drops the client and its roster entry, re-broadcasting the
// roster to whoever remains. A departed color becomes vacant and is handed to
// the next joiner. Reports whether the roster is now empty so the registry
// can tear the room down.
func (r *Room) removeMember(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}

	for i, e := range r.roster {
		if e.connID == c.id {
			r.roster = append(r.roster[:i], r.roster[i+1:]...)

			log.Info().
				Str("room", r.name).
				Str("conn", c.id).
				Str("user", e.username).
				Str("role", string(e.role)).
				Msg("member left")

			break
		}
	}

	r.broadcastLocked(r.rosterMessageLocked())

	return len(r.roster) == 0
}

// applyMove validates the requester's role and turn, delegates legality to
// the engine, and broadcasts the committed position. A rejected move mutates
// nothing, is never broadcast, and is signaled only to the requester.
func (r *Room) applyMove(c *Client, mv Move) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	var role Role
	found := false
	for _, e := range r.roster {
		if e.connID == c.id {
			role = e.role
			found = true
			break
		}
	}

	if !found {
		return ErrConnectionNotInRoom
	}
	if role != RoleWhite && role != RoleBlack {
		return ErrNotAPlayer
	}
	if role != r.position.Turn() {
		return ErrOutOfTurn
	}
	if err := r.position.Apply(mv); err != nil {
		return err
	}

	log.Debug().
		Str("room", r.name).
		Str("user", c.username).
		Str("from", mv.From).
		Str("to", mv.To).
		Str("state", string(r.stateLocked())).
		Msg("move committed")

	r.broadcastLocked(r.boardMessageLocked())

	return nil
}

// appendChat trims and stores a chat line, then broadcasts it to the whole
// roster including the sender, who re-renders from the broadcast rather than
// echoing locally. Empty messages are dropped.
func (r *Room) appendChat(c *Client, message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastActive = time.Now()

	entry := ChatEntry{Username: c.username, Message: message}
	r.transcript = append(r.transcript, entry)

	r.broadcastLocked(ChatBroadcastMessage{Type: "chat_message", Username: entry.Username, Message: entry.Message})
}

// rosterView snapshots the membership as username+role pairs.
func (r *Room) rosterView() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rosterViewLocked()
}

func (r *Room) rosterViewLocked() []RosterEntry {
	view := make([]RosterEntry, 0, len(r.roster))
	for _, e := range r.roster {
		view = append(view, RosterEntry{Username: e.username, Role: e.role})
	}
	return view
}

func (r *Room) rosterMessageLocked() RosterUpdateMessage {
	return RosterUpdateMessage{Type: "roster_update", Roster: r.rosterViewLocked()}
}

func (r *Room) boardMessageLocked() BoardStateMessage {
	return BoardStateMessage{
		Type:   "board_state",
		FEN:    r.position.FEN(),
		Turn:   r.position.Turn(),
		Status: r.position.Status(),
	}
}

// broadcastLocked fans msg out to every connected client, evicting any whose
// send buffer is full.
func (r *Room) broadcastLocked(msg any) {
	for client := range r.clients {
		select {
		case client.send <- msg:
		default:
			delete(r.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this room (used by the reaper).
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c := range r.clients {
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		delete(r.clients, c)
	}
	r.roster = nil
}
