package arenadto

import (
	"encoding/json"
	"time"
)

// Envelope is the JSON frame exchanged over the live connection.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client → server message types.
const (
	TypeJoin      = "join"
	TypeMove      = "move"
	TypeSnapshot  = "snapshot"
	TypeHeartbeat = "heartbeat"
	TypeResign    = "resign"
)

// Server → client message types.
const (
	TypeSnapshotEvent = "snapshot"
	TypeMoveEvent     = "move"
	TypeReplayEvent   = "replay"
	TypeJoinedEvent   = "player_joined"
	TypeFinishEvent   = "finish"
	TypeAckEvent      = "ack"
	TypeErrorEvent    = "error"
)

type PositionDTO struct {
	File int `json:"file"`
	Rank int `json:"rank"`
}

// PieceDTO is one placed piece inside a snapshot. ID is stable across the
// life of a board so clients can animate moves, it carries no rules meaning.
type PieceDTO struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Side string `json:"side"`
	File int    `json:"file"`
	Rank int    `json:"rank"`
}

type MoveRecord struct {
	Seq      int         `json:"seq"`
	From     PositionDTO `json:"from"`
	To       PositionDTO `json:"to"`
	UserID   string      `json:"user_id"`
	Side     string      `json:"side"`
	Captured string      `json:"captured,omitempty"`
	Time     time.Time   `json:"time"`
}

// Snapshot is the full, self-contained projection of a room. A client that
// missed or misordered events can rebuild its view from a snapshot alone.
type Snapshot struct {
	RoomID    uint64       `json:"room_id"`
	Mode      string       `json:"mode"`
	Status    string       `json:"status"`
	Seats     []string     `json:"seats"`
	Turn      string       `json:"turn"`
	Pieces    []PieceDTO   `json:"pieces"`
	Moves     []MoveRecord `json:"moves"`
	Online    []string     `json:"online,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Winner    string       `json:"winner,omitempty"`
}

type JoinRequest struct {
	RoomID       uint64 `json:"room_id"`
	LastKnownSeq *int   `json:"last_known_seq,omitempty"`
}

type MoveRequest struct {
	RoomID          uint64      `json:"room_id"`
	From            PositionDTO `json:"from"`
	To              PositionDTO `json:"to"`
	ClientRequestID string      `json:"client_request_id,omitempty"`
}

type RoomRequest struct {
	RoomID uint64 `json:"room_id"`
}

type ReplayPayload struct {
	RoomID uint64       `json:"room_id"`
	Moves  []MoveRecord `json:"moves"`
}

type JoinedPayload struct {
	RoomID uint64 `json:"room_id"`
	UserID string `json:"user_id"`
}

type FinishPayload struct {
	RoomID uint64 `json:"room_id"`
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type AckPayload struct {
	Of              string `json:"of"`
	ClientRequestID string `json:"client_request_id,omitempty"`
}

// CreateRoomRequest/Response cover the one request/response action exposed
// outside the live connection: room creation precedes any subscription.
type CreateRoomRequest struct {
	Mode string `json:"mode,omitempty"`
}

type CreateRoomResponse struct {
	RoomID uint64 `json:"room_id"`
	Status string `json:"status"`
}
