/*
Copyright © 2025 baobao2k4
*/

package main

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol errors. Every one of them is recoverable at the point of the
// offending request: the request is dropped, no state mutates, and the
// connection stays open.
var (
	ErrRoomAlreadyExists   = errors.New("room already exists")
	ErrRoomNotFound        = errors.New("room not found")
	ErrNotAPlayer          = errors.New("only players may submit moves")
	ErrOutOfTurn           = errors.New("not your turn")
	ErrIllegalMove         = errors.New("illegal move")
	ErrConnectionNotInRoom = errors.New("connection is not in a room")
	ErrAlreadyInRoom       = errors.New("connection already belongs to a room")
)

// errorCode maps a protocol error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomAlreadyExists):
		return "room_already_exists"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrNotAPlayer):
		return "not_a_player"
	case errors.Is(err, ErrOutOfTurn):
		return "out_of_turn"
	case errors.Is(err, ErrIllegalMove):
		return "illegal_move"
	case errors.Is(err, ErrConnectionNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrAlreadyInRoom):
		return "already_in_room"
	default:
		return "error"
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
