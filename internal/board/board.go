// Package board holds the xiangqi board value: piece placement and
// mechanical clone-and-apply. Legality lives in internal/rules.
package board

import "github.com/google/uuid"

const (
	Files = 9
	Ranks = 10
)

// Side identifies one of the two seats. Red moves first and starts on
// ranks 6-9, black on ranks 0-3.
type Side string

const (
	Red   Side = "red"
	Black Side = "black"
)

func (s Side) Opponent() Side {
	if s == Red {
		return Black
	}
	return Red
}

// Forward is the rank delta of "toward the opponent" for this side.
func (s Side) Forward() int {
	if s == Red {
		return -1
	}
	return 1
}

// Kind is a xiangqi piece kind.
type Kind string

const (
	General  Kind = "general"
	Advisor  Kind = "advisor"
	Elephant Kind = "elephant"
	Horse    Kind = "horse"
	Chariot  Kind = "chariot"
	Cannon   Kind = "cannon"
	Soldier  Kind = "soldier"
)

type Position struct {
	File int `json:"file"`
	Rank int `json:"rank"`
}

func (p Position) InBounds() bool {
	return p.File >= 0 && p.File < Files && p.Rank >= 0 && p.Rank < Ranks
}

// InPalace reports whether p lies within side's 3x3 palace.
func (p Position) InPalace(s Side) bool {
	if p.File < 3 || p.File > 5 {
		return false
	}
	if s == Red {
		return p.Rank >= 7 && p.Rank <= 9
	}
	return p.Rank >= 0 && p.Rank <= 2
}

// CrossedRiver reports whether p is on the opponent's half for side s.
func (p Position) CrossedRiver(s Side) bool {
	if s == Red {
		return p.Rank <= 4
	}
	return p.Rank >= 5
}

// OwnHalf reports whether p is on side s's half of the board.
func (p Position) OwnHalf(s Side) bool {
	return !p.CrossedRiver(s)
}

// Piece identity is stable for the life of a board so clients can keep
// rendering continuity across moves. Rules logic never reads ID.
type Piece struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Side Side   `json:"side"`
}

// Board is a rank-major grid of piece references, treated as a value:
// Apply returns a fresh Board, so move history and check lookahead can hold
// prior boards without aliasing hazards. Pieces themselves are immutable.
type Board struct {
	cells [Ranks][Files]*Piece
}

func (b Board) At(p Position) *Piece {
	if !p.InBounds() {
		return nil
	}
	return b.cells[p.Rank][p.File]
}

// Apply returns a new Board with the piece at from moved to to, capturing
// whatever occupied to. No legality checking happens here.
func (b Board) Apply(from, to Position) Board {
	next := b // array copy
	next.cells[to.Rank][to.File] = next.cells[from.Rank][from.File]
	next.cells[from.Rank][from.File] = nil
	return next
}

// FindGeneral returns the position of side's general.
func (b Board) FindGeneral(s Side) (Position, bool) {
	for r := 0; r < Ranks; r++ {
		for f := 3; f <= 5; f++ {
			if pc := b.cells[r][f]; pc != nil && pc.Kind == General && pc.Side == s {
				return Position{File: f, Rank: r}, true
			}
		}
	}
	return Position{}, false
}

// Pieces returns every placed piece with its position, rank-major order.
func (b Board) Pieces() []Placed {
	var out []Placed
	for r := 0; r < Ranks; r++ {
		for f := 0; f < Files; f++ {
			if pc := b.cells[r][f]; pc != nil {
				out = append(out, Placed{Piece: *pc, Pos: Position{File: f, Rank: r}})
			}
		}
	}
	return out
}

type Placed struct {
	Piece Piece
	Pos   Position
}

var backRank = []Kind{Chariot, Horse, Elephant, Advisor, General, Advisor, Elephant, Horse, Chariot}

// Standard returns the fixed initial layout of all 32 pieces.
func Standard() Board {
	var b Board
	place := func(f, r int, k Kind, s Side) {
		b.cells[r][f] = &Piece{ID: uuid.NewString(), Kind: k, Side: s}
	}
	for f, k := range backRank {
		place(f, 0, k, Black)
		place(f, 9, k, Red)
	}
	for _, f := range []int{1, 7} {
		place(f, 2, Cannon, Black)
		place(f, 7, Cannon, Red)
	}
	for _, f := range []int{0, 2, 4, 6, 8} {
		place(f, 3, Soldier, Black)
		place(f, 6, Soldier, Red)
	}
	return b
}

// Empty returns a board with no pieces, for composing test positions.
func Empty() Board { return Board{} }

// Place returns a copy of b with a fresh piece of the given kind and side
// at p, replacing any occupant. Intended for tests and custom setups.
func (b Board) Place(p Position, k Kind, s Side) Board {
	next := b
	next.cells[p.Rank][p.File] = &Piece{ID: uuid.NewString(), Kind: k, Side: s}
	return next
}
