// Package arena owns the in-memory room registry, the per-room state
// machine and quick-match pairing. It is the only writer of authoritative
// game state.
package arena

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wuqi/xiangqi-arena/internal/board"
	"github.com/wuqi/xiangqi-arena/internal/obslog"
	"github.com/wuqi/xiangqi-arena/internal/rules"
	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

// Sink receives finished games for durable storage. Failures are logged
// and never roll back the in-memory finish.
type Sink interface {
	SaveResult(ctx context.Context, snap *arenadto.Snapshot, method string) error
}

// Registry holds every live room plus the per-mode matchmaking pools.
// Lock order is registry before room, always.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[uint64]*Room
	pool   map[string][]uint64 // mode → waiting room ids, oldest first
	nextID uint64

	sink Sink
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uint64]*Room),
		pool:  make(map[string][]uint64),
	}
}

// AttachSink wires durable storage for finished games.
func (g *Registry) AttachSink(s Sink) {
	if g != nil {
		g.sink = s
	}
}

// CreateRoom allocates a waiting room seeded with the standard layout and
// the creator at seat 0. A duplicate request while the creator already
// owns a solitary waiting room in that mode returns the existing room.
func (g *Registry) CreateRoom(creatorID, mode string) (*arenadto.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r := g.ownWaitingLocked(creatorID, mode); r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.snapshotLocked(), nil
	}
	r := g.createLocked(creatorID, mode)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(), nil
}

// createLocked allocates and enqueues a new waiting room. Caller holds g.mu.
func (g *Registry) createLocked(creatorID, mode string) *Room {
	g.nextID++
	r := newRoom(g.nextID, mode, creatorID)
	g.rooms[r.id] = r
	g.pool[mode] = append(g.pool[mode], r.id)
	obslog.L().Info("room_create",
		zap.Uint64("room_id", r.id),
		zap.String("mode", mode),
		zap.String("creator_id", creatorID),
	)
	return r
}

// ownWaitingLocked finds a solitary waiting room owned by userID in mode.
func (g *Registry) ownWaitingLocked(userID, mode string) *Room {
	for _, id := range g.pool[mode] {
		r, ok := g.rooms[id]
		if !ok {
			continue
		}
		r.mu.Lock()
		match := r.status == StatusWaiting && len(r.seats) == 1 && r.seats[0] == userID
		r.mu.Unlock()
		if match {
			return r
		}
	}
	return nil
}

// Join seats userID in the room. Joining a room the user already sits in
// is a no-op returning the current snapshot. Exactly when the second seat
// fills, the room transitions to playing and leaves its matchmaking pool.
func (g *Registry) Join(userID string, roomID uint64) (*arenadto.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return nil, arenadto.Errorf(arenadto.CodeRoomNotFound, "room not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusFinished {
		return nil, arenadto.Errorf(arenadto.CodeRoomClosed, "room already finished")
	}
	if r.seatIndex(userID) >= 0 {
		return r.snapshotLocked(), nil
	}
	if len(r.seats) >= 2 {
		return nil, arenadto.Errorf(arenadto.CodeRoomFull, "both seats taken")
	}
	r.seats = append(r.seats, userID)
	if len(r.seats) == 2 {
		r.status = StatusPlaying
		g.dropFromPoolLocked(r.mode, r.id)
		obslog.L().Info("room_start",
			zap.Uint64("room_id", r.id),
			zap.String("red_id", r.seats[0]),
			zap.String("black_id", r.seats[1]),
		)
	}
	return r.snapshotLocked(), nil
}

// QuickMatch pairs userID into the oldest compatible waiting room in mode,
// or creates and enqueues a fresh one. Calling it again before a partner
// arrives returns the same room.
func (g *Registry) QuickMatch(userID, mode string) (*arenadto.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r := g.ownWaitingLocked(userID, mode); r != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.snapshotLocked(), nil
	}

	queue := g.pool[mode]
	kept := queue[:0]
	var joined *Room
	for i, id := range queue {
		if joined != nil {
			kept = append(kept, queue[i:]...)
			break
		}
		r, ok := g.rooms[id]
		if !ok {
			continue // stale entry, drop
		}
		r.mu.Lock()
		if r.status != StatusWaiting || len(r.seats) != 1 {
			r.mu.Unlock()
			continue // no longer matchable, drop
		}
		if r.seats[0] == userID {
			r.mu.Unlock()
			kept = append(kept, id)
			continue
		}
		r.seats = append(r.seats, userID)
		r.status = StatusPlaying
		r.mu.Unlock()
		joined = r
	}
	g.pool[mode] = kept

	if joined != nil {
		joined.mu.Lock()
		defer joined.mu.Unlock()
		obslog.L().Info("room_start",
			zap.Uint64("room_id", joined.id),
			zap.String("red_id", joined.seats[0]),
			zap.String("black_id", joined.seats[1]),
		)
		return joined.snapshotLocked(), nil
	}

	r := g.createLocked(userID, mode)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(), nil
}

// CancelWaiting deletes a solitary waiting room owned by userID. The room
// leaves both the registry and its pool; no further reference resolves.
func (g *Registry) CancelWaiting(userID string, roomID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return arenadto.Errorf(arenadto.CodeRoomNotFound, "room not found")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusWaiting || len(r.seats) != 1 {
		return arenadto.Errorf(arenadto.CodeInvalidState, "room is not cancellable")
	}
	if r.seats[0] != userID {
		return arenadto.Errorf(arenadto.CodeForbidden, "only the creator may cancel")
	}
	delete(g.rooms, roomID)
	g.dropFromPoolLocked(r.mode, roomID)
	obslog.L().Info("room_cancel", zap.Uint64("room_id", roomID), zap.String("user_id", userID))
	return nil
}

func (g *Registry) dropFromPoolLocked(mode string, roomID uint64) {
	queue := g.pool[mode]
	for i, id := range queue {
		if id == roomID {
			g.pool[mode] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

func (g *Registry) room(roomID uint64) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	if !ok {
		return nil, arenadto.Errorf(arenadto.CodeRoomNotFound, "room not found")
	}
	return r, nil
}

// ApplyMove validates and applies one move. Nothing mutates unless every
// check passes; a failed call leaves board, turn, status and log untouched.
func (g *Registry) ApplyMove(userID string, roomID uint64, from, to arenadto.PositionDTO) (*arenadto.MoveRecord, *arenadto.Snapshot, error) {
	r, err := g.room(roomID)
	if err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPlaying {
		return nil, nil, arenadto.Errorf(arenadto.CodeInvalidState, "room is not in play")
	}
	seat := r.seatIndex(userID)
	if seat < 0 {
		return nil, nil, arenadto.Errorf(arenadto.CodeForbidden, "not a participant")
	}
	side := sideOfSeat(seat)
	if side != r.turn {
		return nil, nil, arenadto.Errorf(arenadto.CodeOutOfTurn, "not your turn")
	}
	src, dst := toPos(from), toPos(to)
	if verr := rules.Validate(r.board, src, dst, side); verr != nil {
		return nil, nil, arenadto.Errorf(arenadto.CodeIllegalMove, verr.Error())
	}

	captured := ""
	if pc := r.board.At(dst); pc != nil {
		captured = string(pc.Kind)
	}
	r.board = r.board.Apply(src, dst)
	r.turn = side.Opponent()
	rec := arenadto.MoveRecord{
		Seq:      len(r.moves) + 1,
		From:     from,
		To:       to,
		UserID:   userID,
		Side:     string(side),
		Captured: captured,
		Time:     time.Now(),
	}
	r.moves = append(r.moves, rec)

	obslog.L().Info("room_move",
		zap.Uint64("room_id", r.id),
		zap.Int("seq", rec.Seq),
		zap.String("user_id", userID),
		zap.String("side", rec.Side),
	)

	snap := r.snapshotLocked()
	if out := rules.GameOver(r.board, r.turn); out.Over {
		r.finishLocked(out.Winner, out.Reason)
		snap = r.snapshotLocked()
		g.persist(snap, out.Reason)
	}
	return &rec, snap, nil
}

// persist hands a finished room to the sink without blocking the caller.
// Archive failures are logged; the in-memory finish already happened.
func (g *Registry) persist(snap *arenadto.Snapshot, method string) {
	if g.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.sink.SaveResult(ctx, snap, method); err != nil {
			obslog.L().Error("archive_save_error",
				zap.Uint64("room_id", snap.RoomID),
				zap.String("method", method),
				zap.Error(err),
			)
		}
	}()
}

// Resign finishes a playing room in favour of the opponent. It reuses the
// same finish path as a checkmate-producing move.
func (g *Registry) Resign(userID string, roomID uint64) (*arenadto.Snapshot, error) {
	r, err := g.room(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPlaying {
		return nil, arenadto.Errorf(arenadto.CodeInvalidState, "room is not in play")
	}
	seat := r.seatIndex(userID)
	if seat < 0 {
		return nil, arenadto.Errorf(arenadto.CodeForbidden, "not a participant")
	}
	r.finishLocked(sideOfSeat(seat).Opponent(), "resign")
	snap := r.snapshotLocked()
	g.persist(snap, "resign")
	return snap, nil
}

// finishLocked freezes the room and resolves the winning seat.
// winner "" records a draw. Caller holds r.mu.
func (r *Room) finishLocked(winner board.Side, reason string) {
	r.status = StatusFinished
	r.finished = time.Now()
	switch winner {
	case board.Red:
		r.winner = r.seats[0]
	case board.Black:
		if len(r.seats) > 1 {
			r.winner = r.seats[1]
		}
	default:
		r.winner = ""
	}
	obslog.L().Info("room_finish",
		zap.Uint64("room_id", r.id),
		zap.String("winner", r.winner),
		zap.String("reason", reason),
	)
}

// Snapshot returns the current projection of a room.
func (g *Registry) Snapshot(roomID uint64) (*arenadto.Snapshot, error) {
	r, err := g.room(roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(), nil
}
