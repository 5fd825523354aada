package gateway

import (
	"context"
	"encoding/json"

	"nhooyr.io/websocket"

	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

// session is the per-connection state: the verified user, the joined room
// (0 until a join succeeds) and the outbound queue. Owning this state on
// the connection handler makes cleanup on disconnect structurally obvious.
type session struct {
	conn   *websocket.Conn
	userID string
	roomID uint64
	send   chan []byte
}

func newSession(conn *websocket.Conn, userID string) *session {
	return &session{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 64),
	}
}

// enqueue drops the frame if the client cannot keep up; a lagging client
// self-heals from the next snapshot.
func (s *session) enqueue(frame []byte) {
	select {
	case s.send <- frame:
	default:
	}
}

func (s *session) writeLoop(ctx context.Context) {
	for frame := range s.send {
		if err := s.conn.Write(ctx, websocket.MessageText, frame); err != nil {
			return
		}
	}
}

func encodeEvent(msgType string, payload any) []byte {
	raw, _ := json.Marshal(payload)
	frame, _ := json.Marshal(arenadto.Envelope{Type: msgType, Payload: raw})
	return frame
}
