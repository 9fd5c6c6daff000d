package main

import (
	"strings"

	chess "github.com/corentings/chess/v2"
)

// Role is a participant's capacity within a room.
type Role string

const (
	RoleWhite    Role = "white"
	RoleBlack    Role = "black"
	RoleObserver Role = "observer"
)

// Move is the wire encoding of a candidate move. Squares use algebraic
// notation ("e2", "e4"); promotion defaults to queen when left empty.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// Position wraps the chess engine behind the few queries rooms need: side to
// move, legality check plus apply, terminal status, and FEN serialization.
type Position struct {
	game *chess.Game
}

func NewPosition() *Position {
	return &Position{game: chess.NewGame()}
}

func PositionFromFEN(fen string) (*Position, error) {
	option, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return &Position{game: chess.NewGame(option)}, nil
}

// FEN returns the canonical serialized form of the current position.
func (p *Position) FEN() string {
	return p.game.Position().String()
}

// Turn reports which color moves next.
func (p *Position) Turn() Role {
	if p.game.Position().Turn() == chess.White {
		return RoleWhite
	}
	return RoleBlack
}

// Apply validates m against the current position and commits it. The position
// is left untouched when the engine rejects the move.
func (p *Position) Apply(m Move) error {
	from := strings.ToLower(strings.TrimSpace(m.From))
	to := strings.ToLower(strings.TrimSpace(m.To))
	if len(from) != 2 || len(to) != 2 {
		return ErrIllegalMove
	}

	promotion := strings.ToLower(strings.TrimSpace(m.Promotion))
	if promotion == "" {
		promotion = "q"
	}

	// Plain UCI first, then the promotion-suffixed form, so pawn moves onto
	// the last rank resolve without the client having to spell out "q".
	for _, uci := range []string{from + to, from + to + promotion} {
		mv, err := chess.UCINotation{}.Decode(p.game.Position(), uci)
		if err != nil {
			continue
		}
		if err := p.game.Move(mv, nil); err != nil {
			continue
		}
		return nil
	}

	return ErrIllegalMove
}

// Terminal reports whether the game has ended.
func (p *Position) Terminal() bool {
	return p.game.Outcome() != chess.NoOutcome
}

// Status names the terminal state, or returns "" while the game is live.
func (p *Position) Status() string {
	switch p.game.Outcome() {
	case chess.NoOutcome:
		return ""
	case chess.Draw:
		if p.game.Method() == chess.Stalemate {
			return "stalemate"
		}
		return "draw"
	default:
		if p.game.Method() == chess.Checkmate {
			return "checkmate"
		}
		return "ended"
	}
}
