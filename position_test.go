package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestNewPositionStartsAtInitialPosition(t *testing.T) {
	p := NewPosition()

	assert.Equal(t, startFEN, p.FEN())
	assert.Equal(t, RoleWhite, p.Turn())
	assert.False(t, p.Terminal())
	assert.Empty(t, p.Status())
}

func TestApplyLegalMoveFlipsTurn(t *testing.T) {
	p := NewPosition()

	require.NoError(t, p.Apply(Move{From: "e2", To: "e4"}))

	assert.Equal(t, RoleBlack, p.Turn())
	assert.NotEqual(t, startFEN, p.FEN())
}

func TestApplyIllegalMoveLeavesPositionUnchanged(t *testing.T) {
	p := NewPosition()
	before := p.FEN()

	assert.ErrorIs(t, p.Apply(Move{From: "e2", To: "e5"}), ErrIllegalMove)
	assert.Equal(t, before, p.FEN())
	assert.Equal(t, RoleWhite, p.Turn())
}

func TestApplyMoveWithoutMatchingPiece(t *testing.T) {
	p := NewPosition()
	require.NoError(t, p.Apply(Move{From: "e2", To: "e4"}))
	before := p.FEN()

	// Black has no piece on e2.
	assert.ErrorIs(t, p.Apply(Move{From: "e2", To: "e4"}), ErrIllegalMove)
	assert.Equal(t, before, p.FEN())
}

func TestApplyRejectsMalformedSquares(t *testing.T) {
	p := NewPosition()

	assert.ErrorIs(t, p.Apply(Move{From: "e2", To: ""}), ErrIllegalMove)
	assert.ErrorIs(t, p.Apply(Move{From: "x9", To: "e4"}), ErrIllegalMove)
	assert.Equal(t, startFEN, p.FEN())
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	p, err := PositionFromFEN("8/P7/8/8/8/8/8/k6K w - - 0 1")
	require.NoError(t, err)

	require.NoError(t, p.Apply(Move{From: "a7", To: "a8"}))
	assert.True(t, strings.HasPrefix(p.FEN(), "Q7/"), "expected a queen on a8, got %s", p.FEN())
}

func TestExplicitPromotionPiece(t *testing.T) {
	p, err := PositionFromFEN("8/P7/8/8/8/8/8/k6K w - - 0 1")
	require.NoError(t, err)

	require.NoError(t, p.Apply(Move{From: "a7", To: "a8", Promotion: "n"}))
	assert.True(t, strings.HasPrefix(p.FEN(), "N7/"), "expected a knight on a8, got %s", p.FEN())
}

func TestFENRoundTrip(t *testing.T) {
	p := NewPosition()
	require.NoError(t, p.Apply(Move{From: "e2", To: "e4"}))
	fen := p.FEN()

	q, err := PositionFromFEN(fen)
	require.NoError(t, err)
	assert.Equal(t, fen, q.FEN())
	assert.Equal(t, RoleBlack, q.Turn())
}

func TestCheckmateIsTerminal(t *testing.T) {
	p := NewPosition()

	for _, mv := range []Move{
		{From: "f2", To: "f3"},
		{From: "e7", To: "e5"},
		{From: "g2", To: "g4"},
		{From: "d8", To: "h4"},
	} {
		require.NoError(t, p.Apply(mv))
	}

	assert.True(t, p.Terminal())
	assert.Equal(t, "checkmate", p.Status())
}
