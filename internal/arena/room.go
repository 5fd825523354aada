package arena

import (
	"sync"
	"time"

	"github.com/wuqi/xiangqi-arena/internal/board"
	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

// Status is a room's lifecycle state. Transitions are one-way:
// waiting → playing → finished.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Room is the authoritative state of one battle. All fields behind mu;
// every mutation happens through Registry methods so "validate against
// board X" and "replace board X" are one atomic unit per room.
type Room struct {
	mu sync.Mutex

	id        uint64
	mode      string
	status    Status
	seats     []string // index 0 plays red, index 1 black
	board     board.Board
	turn      board.Side
	moves     []arenadto.MoveRecord
	createdAt time.Time
	winner    string
	finished  time.Time
}

func newRoom(id uint64, mode, creator string) *Room {
	return &Room{
		id:        id,
		mode:      mode,
		status:    StatusWaiting,
		seats:     []string{creator},
		board:     board.Standard(),
		turn:      board.Red,
		createdAt: time.Now(),
	}
}

// seatIndex returns the seat of userID, or -1. Caller holds mu.
func (r *Room) seatIndex(userID string) int {
	for i, s := range r.seats {
		if s == userID {
			return i
		}
	}
	return -1
}

func sideOfSeat(idx int) board.Side {
	if idx == 0 {
		return board.Red
	}
	return board.Black
}

// snapshotLocked projects the room into its wire shape. Caller holds mu.
// The projection is fully derived from room fields; nothing internal leaks.
func (r *Room) snapshotLocked() *arenadto.Snapshot {
	snap := &arenadto.Snapshot{
		RoomID:    r.id,
		Mode:      r.mode,
		Status:    string(r.status),
		Seats:     append([]string(nil), r.seats...),
		Turn:      string(r.turn),
		Moves:     append([]arenadto.MoveRecord(nil), r.moves...),
		CreatedAt: r.createdAt,
		Winner:    r.winner,
	}
	for _, pl := range r.board.Pieces() {
		snap.Pieces = append(snap.Pieces, arenadto.PieceDTO{
			ID:   pl.Piece.ID,
			Kind: string(pl.Piece.Kind),
			Side: string(pl.Piece.Side),
			File: pl.Pos.File,
			Rank: pl.Pos.Rank,
		})
	}
	return snap
}

func toPos(p arenadto.PositionDTO) board.Position {
	return board.Position{File: p.File, Rank: p.Rank}
}
