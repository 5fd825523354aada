// Package rules is the pure xiangqi rules engine: candidate move
// generation per piece kind, legality filtering, check and terminal
// detection. Everything here is deterministic and side-effect free.
package rules

import (
	"fmt"

	"github.com/wuqi/xiangqi-arena/internal/board"
)

var orthogonal = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// CandidateMoves returns pseudo-legal destinations for the piece at from,
// ignoring whether the mover would be left in check. Occupied destinations
// are included regardless of occupant side; friendly-fire filtering happens
// in LegalMoves.
func CandidateMoves(b board.Board, from board.Position) []board.Position {
	pc := b.At(from)
	if pc == nil {
		return nil
	}
	switch pc.Kind {
	case board.Soldier:
		return soldierMoves(from, pc.Side)
	case board.Chariot:
		return chariotMoves(b, from)
	case board.Horse:
		return horseMoves(b, from)
	case board.Cannon:
		return cannonMoves(b, from)
	case board.Advisor:
		return advisorMoves(from, pc.Side)
	case board.Elephant:
		return elephantMoves(b, from, pc.Side)
	case board.General:
		return generalMoves(b, from, pc.Side)
	}
	return nil
}

func soldierMoves(from board.Position, s board.Side) []board.Position {
	var out []board.Position
	add := func(p board.Position) {
		if p.InBounds() {
			out = append(out, p)
		}
	}
	add(board.Position{File: from.File, Rank: from.Rank + s.Forward()})
	// sideways only once across the river
	if from.CrossedRiver(s) {
		add(board.Position{File: from.File - 1, Rank: from.Rank})
		add(board.Position{File: from.File + 1, Rank: from.Rank})
	}
	return out
}

func chariotMoves(b board.Board, from board.Position) []board.Position {
	var out []board.Position
	for _, d := range orthogonal {
		p := from
		for {
			p = board.Position{File: p.File + d[0], Rank: p.Rank + d[1]}
			if !p.InBounds() {
				break
			}
			out = append(out, p)
			if b.At(p) != nil {
				break // first obstacle is capturable, nothing beyond it
			}
		}
	}
	return out
}

var horseOffsets = [8][2]int{
	{1, 2}, {-1, 2}, {1, -2}, {-1, -2},
	{2, 1}, {2, -1}, {-2, 1}, {-2, -1},
}

func horseMoves(b board.Board, from board.Position) []board.Position {
	var out []board.Position
	for _, d := range horseOffsets {
		// the leg is the adjacent cell along the long axis
		leg := board.Position{File: from.File, Rank: from.Rank + sign(d[1])}
		if d[0] == 2 || d[0] == -2 {
			leg = board.Position{File: from.File + sign(d[0]), Rank: from.Rank}
		}
		if !leg.InBounds() || b.At(leg) != nil {
			continue
		}
		to := board.Position{File: from.File + d[0], Rank: from.Rank + d[1]}
		if to.InBounds() {
			out = append(out, to)
		}
	}
	return out
}

func cannonMoves(b board.Board, from board.Position) []board.Position {
	var out []board.Position
	for _, d := range orthogonal {
		p := from
		screened := false
		for {
			p = board.Position{File: p.File + d[0], Rank: p.Rank + d[1]}
			if !p.InBounds() {
				break
			}
			occupied := b.At(p) != nil
			if !screened {
				if occupied {
					screened = true // becomes the screen, not a destination
					continue
				}
				out = append(out, p)
				continue
			}
			// past exactly one screen: the next occupied cell is the
			// only capture target on this line
			if occupied {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func advisorMoves(from board.Position, s board.Side) []board.Position {
	var out []board.Position
	for _, d := range [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}} {
		p := board.Position{File: from.File + d[0], Rank: from.Rank + d[1]}
		if p.InPalace(s) {
			out = append(out, p)
		}
	}
	return out
}

func elephantMoves(b board.Board, from board.Position, s board.Side) []board.Position {
	var out []board.Position
	for _, d := range [4][2]int{{2, 2}, {2, -2}, {-2, 2}, {-2, -2}} {
		eye := board.Position{File: from.File + d[0]/2, Rank: from.Rank + d[1]/2}
		if !eye.InBounds() || b.At(eye) != nil {
			continue
		}
		p := board.Position{File: from.File + d[0], Rank: from.Rank + d[1]}
		if p.InBounds() && p.OwnHalf(s) {
			out = append(out, p)
		}
	}
	return out
}

func generalMoves(b board.Board, from board.Position, s board.Side) []board.Position {
	var out []board.Position
	for _, d := range orthogonal {
		p := board.Position{File: from.File + d[0], Rank: from.Rank + d[1]}
		if p.InPalace(s) {
			out = append(out, p)
		}
	}
	// Flying-general reachability: with an open file between them, each
	// general counts the other as a target. Needed for check detection.
	p := from
	for {
		p = board.Position{File: p.File, Rank: p.Rank + s.Forward()}
		if !p.InBounds() {
			break
		}
		pc := b.At(p)
		if pc == nil {
			continue
		}
		if pc.Kind == board.General && pc.Side != s {
			out = append(out, p)
		}
		break
	}
	return out
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	if n > 0 {
		return 1
	}
	return 0
}

// LegalMoves filters CandidateMoves for the piece at from down to moves
// side may actually play: own piece, no friendly capture, and the mover's
// general not left in check after the move.
func LegalMoves(b board.Board, from board.Position, side board.Side) []board.Position {
	pc := b.At(from)
	if pc == nil || pc.Side != side {
		return nil
	}
	var out []board.Position
	for _, to := range CandidateMoves(b, from) {
		if dst := b.At(to); dst != nil && dst.Side == side {
			continue
		}
		if IsInCheck(b.Apply(from, to), side) {
			continue
		}
		out = append(out, to)
	}
	return out
}

// IsInCheck reports whether side's general is attacked. Candidate
// generation already enforces capture legality (clear chariot path, exactly
// one cannon screen, unblocked horse leg), so membership is sufficient.
func IsInCheck(b board.Board, side board.Side) bool {
	gen, ok := b.FindGeneral(side)
	if !ok {
		return false
	}
	for _, pl := range b.Pieces() {
		if pl.Piece.Side == side {
			continue
		}
		for _, to := range CandidateMoves(b, pl.Pos) {
			if to == gen {
				return true
			}
		}
	}
	return false
}

// GeneralsFacing reports the flying-generals foul: both generals on the
// same file with nothing between them.
func GeneralsFacing(b board.Board) bool {
	rg, okR := b.FindGeneral(board.Red)
	bg, okB := b.FindGeneral(board.Black)
	if !okR || !okB || rg.File != bg.File {
		return false
	}
	lo, hi := bg.Rank, rg.Rank
	if lo > hi {
		lo, hi = hi, lo
	}
	for r := lo + 1; r < hi; r++ {
		if b.At(board.Position{File: rg.File, Rank: r}) != nil {
			return false
		}
	}
	return true
}

// Outcome is the terminal verdict for a position. Winner is empty when the
// game is drawn.
type Outcome struct {
	Over   bool
	Winner board.Side
	Reason string
}

var none = Outcome{}

// GameOver evaluates the position with sideToMove next to act.
//
// A side with no general loses, both generals gone is a draw, and a
// position where the generals face each other on an open file costs the
// side that just moved the game. A side to move with zero legal moves
// loses whether or not its general is attacked; stalemate is a loss here,
// not a draw.
func GameOver(b board.Board, sideToMove board.Side) Outcome {
	opp := sideToMove.Opponent()
	_, ownOK := b.FindGeneral(sideToMove)
	_, oppOK := b.FindGeneral(opp)
	switch {
	case !ownOK && !oppOK:
		return Outcome{Over: true, Reason: "both generals captured"}
	case !ownOK:
		return Outcome{Over: true, Winner: opp, Reason: "general captured"}
	case !oppOK:
		return Outcome{Over: true, Winner: sideToMove, Reason: "general captured"}
	}
	if GeneralsFacing(b) {
		// the previous mover produced the foul position and loses
		return Outcome{Over: true, Winner: sideToMove, Reason: "flying generals"}
	}
	for _, pl := range b.Pieces() {
		if pl.Piece.Side != sideToMove {
			continue
		}
		if len(LegalMoves(b, pl.Pos, sideToMove)) > 0 {
			return none
		}
	}
	return Outcome{Over: true, Winner: opp, Reason: "no legal moves"}
}

// Validate explains why a specific move is illegal, or returns nil if side
// may play from→to. The message is suitable for client display.
func Validate(b board.Board, from, to board.Position, side board.Side) error {
	if !from.InBounds() || !to.InBounds() {
		return fmt.Errorf("position off the board")
	}
	pc := b.At(from)
	if pc == nil {
		return fmt.Errorf("no piece at source square")
	}
	if pc.Side != side {
		return fmt.Errorf("%s belongs to the opponent", pc.Kind)
	}
	if dst := b.At(to); dst != nil && dst.Side == side {
		return fmt.Errorf("destination occupied by own piece")
	}
	reachable := false
	for _, c := range CandidateMoves(b, from) {
		if c == to {
			reachable = true
			break
		}
	}
	if !reachable {
		return fmt.Errorf("%s cannot reach that square", pc.Kind)
	}
	if IsInCheck(b.Apply(from, to), side) {
		return fmt.Errorf("move leaves your general in check")
	}
	return nil
}
