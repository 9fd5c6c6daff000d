package main

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return &Client{id: uuid.NewString()}
}

// drain empties a client's send buffer, returning everything received so far.
func drain(c *Client) []any {
	var out []any
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

// lastRoster returns the most recent roster_update a client received.
func lastRoster(c *Client) []RosterEntry {
	var last []RosterEntry
	for _, msg := range drain(c) {
		if m, ok := msg.(RosterUpdateMessage); ok {
			last = m.Roster
		}
	}
	return last
}

func TestCreateRoomAssignsWhite(t *testing.T) {
	reg := newRegistry(0)
	alice := newTestClient()

	room, role, err := reg.CreateRoom("r1", "alice", alice)
	require.NoError(t, err)

	assert.Equal(t, RoleWhite, role)
	assert.Equal(t, []RosterEntry{{Username: "alice", Role: RoleWhite}}, room.rosterView())
	assert.Equal(t, StateAwaitingOpponent, room.state())
	assert.Equal(t, room, alice.room)
	assert.Equal(t, "alice", alice.username)
}

func TestCreateRoomDuplicateName(t *testing.T) {
	reg := newRegistry(0)
	alice := newTestClient()
	mallory := newTestClient()

	room, _, err := reg.CreateRoom("r1", "alice", alice)
	require.NoError(t, err)

	_, _, err = reg.CreateRoom("r1", "mallory", mallory)
	assert.ErrorIs(t, err, ErrRoomAlreadyExists)

	// The failed requester ends up with no role and no room.
	assert.Nil(t, mallory.room)
	assert.Len(t, room.rosterView(), 1)
}

func TestJoinRoomNotFound(t *testing.T) {
	reg := newRegistry(0)
	bob := newTestClient()

	_, _, err := reg.JoinRoom("nope", "bob", bob)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Nil(t, bob.room)
}

func TestJoinOrderAssignsRoles(t *testing.T) {
	reg := newRegistry(0)
	alice := newTestClient()

	room, role, err := reg.CreateRoom("r1", "alice", alice)
	require.NoError(t, err)
	assert.Equal(t, RoleWhite, role)

	_, role, err = reg.JoinRoom("r1", "bob", newTestClient())
	require.NoError(t, err)
	assert.Equal(t, RoleBlack, role)
	assert.Equal(t, StateActive, room.state())

	// Every subsequent joiner is an observer.
	for i := 0; i < 3; i++ {
		_, role, err = reg.JoinRoom("r1", fmt.Sprintf("observer%d", i), newTestClient())
		require.NoError(t, err)
		assert.Equal(t, RoleObserver, role)
	}

	white, black := 0, 0
	for _, e := range room.rosterView() {
		switch e.Role {
		case RoleWhite:
			white++
		case RoleBlack:
			black++
		}
	}
	assert.Equal(t, 1, white)
	assert.Equal(t, 1, black)
	assert.Len(t, room.rosterView(), 5)
}

func TestDepartedColorBecomesVacant(t *testing.T) {
	reg := newRegistry(0)
	alice := newTestClient()
	bob := newTestClient()
	carol := newTestClient()

	room, _, err := reg.CreateRoom("r1", "alice", alice)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("r1", "bob", bob)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("r1", "carol", carol)
	require.NoError(t, err)

	// Black leaves; the existing observer is not promoted.
	reg.RemoveConnection(bob)
	assert.Equal(t, []RosterEntry{
		{Username: "alice", Role: RoleWhite},
		{Username: "carol", Role: RoleObserver},
	}, room.rosterView())
	assert.Equal(t, StateAwaitingOpponent, room.state())

	// The next joiner fills the vacancy.
	_, role, err := reg.JoinRoom("r1", "dave", newTestClient())
	require.NoError(t, err)
	assert.Equal(t, RoleBlack, role)

	// Same for white.
	reg.RemoveConnection(alice)
	_, role, err = reg.JoinRoom("r1", "eve", newTestClient())
	require.NoError(t, err)
	assert.Equal(t, RoleWhite, role)
}

func TestEmptyRoomIsDeleted(t *testing.T) {
	reg := newRegistry(0)
	alice := newTestClient()
	bob := newTestClient()

	_, _, err := reg.CreateRoom("r1", "alice", alice)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("r1", "bob", bob)
	require.NoError(t, err)

	reg.RemoveConnection(bob)
	reg.RemoveConnection(alice)

	// The name is free again.
	carol := newTestClient()
	_, role, err := reg.CreateRoom("r1", "carol", carol)
	require.NoError(t, err)
	assert.Equal(t, RoleWhite, role)
}

func TestRosterConvergenceAfterChurn(t *testing.T) {
	reg := newRegistry(0)
	alice := newTestClient()
	bob := newTestClient()
	carol := newTestClient()

	room, _, err := reg.CreateRoom("r1", "alice", alice)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("r1", "bob", bob)
	require.NoError(t, err)
	_, _, err = reg.JoinRoom("r1", "carol", carol)
	require.NoError(t, err)

	reg.RemoveConnection(bob)

	// Every remaining client's last roster_update equals the authoritative
	// roster.
	authoritative := room.rosterView()
	assert.Equal(t, authoritative, lastRoster(alice))
	assert.Equal(t, authoritative, lastRoster(carol))
}

func TestRemoveConnectionWithoutRoomIsANoOp(t *testing.T) {
	reg := newRegistry(0)

	assert.NotPanics(t, func() {
		reg.RemoveConnection(newTestClient())
	})
}
