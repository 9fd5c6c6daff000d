package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry is the process-wide mapping from room name to Room. Handlers
// receive it explicitly rather than through a package global, so tests can
// run against a fresh instance.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	idleTimeout time.Duration
}

func newRegistry(idleTimeout time.Duration) *Registry {
	reg := &Registry{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go reg.reaperLoop()
	}
	return reg
}

// CreateRoom registers a new room under name, the requester always becoming
// white. The existence check and the insert happen atomically under reg.mu,
// so two racing creates for the same name cannot both succeed.
func (reg *Registry) CreateRoom(name, username string, c *Client) (*Room, Role, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[name]; exists {
		return nil, "", ErrRoomAlreadyExists
	}

	room := newRoom(name)
	reg.rooms[name] = room

	role := room.addMember(c, username)
	c.username = username
	c.room = room

	log.Info().Str("room", name).Str("user", username).Msg("room created")

	return room, role, nil
}

// JoinRoom adds the requester to an existing room. Role assignment fills the
// first vacant color (white before black), then observer; a room never holds
// more than one of each color.
func (reg *Registry) JoinRoom(name, username string, c *Client) (*Room, Role, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.rooms[name]
	if !exists {
		return nil, "", ErrRoomNotFound
	}

	role := room.addMember(c, username)
	c.username = username
	c.room = room

	return room, role, nil
}

// RemoveConnection drops c from its room, if any, and deletes the room once
// its roster is empty. Disconnects are ordinary membership-removal events,
// not errors.
func (reg *Registry) RemoveConnection(c *Client) {
	room := c.room
	if room == nil {
		return
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room.removeMember(c) {
		delete(reg.rooms, room.name)
		log.Info().Str("room", room.name).Msg("room closed, roster empty")
	}
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout.
func (reg *Registry) reaperLoop() {
	ticker := time.NewTicker(reg.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-reg.idleTimeout)

		reg.mu.Lock()
		for name, room := range reg.rooms {
			room.mu.RLock()
			last := room.lastActive
			room.mu.RUnlock()

			if last.Before(cutoff) {
				delete(reg.rooms, name)
				go room.closeAll()

				log.Info().Str("room", name).Msg("room reaped after idle timeout")
			}
		}
		reg.mu.Unlock()
	}
}
