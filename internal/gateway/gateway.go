// Package gateway bridges live WebSocket connections to the arena. It
// authenticates the handshake, relays client intents, enforces per-user
// rate limits, and keeps every room participant convergent with
// authoritative state via room-scoped broadcasts.
package gateway

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/wuqi/xiangqi-arena/internal/arena"
	"github.com/wuqi/xiangqi-arena/internal/authsvc"
	"github.com/wuqi/xiangqi-arena/internal/config"
	"github.com/wuqi/xiangqi-arena/internal/obslog"
	"github.com/wuqi/xiangqi-arena/pkg/arenadto"
)

type Gateway struct {
	reg      *arena.Registry
	verifier authsvc.Verifier
	limits   config.Limits

	moves *fixedWindow
	beats *fixedWindow

	mu       sync.Mutex
	rooms    map[uint64]map[*session]struct{}
	presence map[uint64]map[string]int // room → user → connection count
}

func New(reg *arena.Registry, verifier authsvc.Verifier, limits config.Limits) *Gateway {
	return &Gateway{
		reg:      reg,
		verifier: verifier,
		limits:   limits,
		moves:    newFixedWindow(limits.MoveRateMax, limits.MoveRateWindow),
		beats:    newFixedWindow(1, limits.HeartbeatWindow),
		rooms:    make(map[uint64]map[*session]struct{}),
		presence: make(map[uint64]map[string]int),
	}
}

// Handler exposes the live protocol at /ws and room creation at /rooms.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms", g.handleCreateRoom)
	mux.HandleFunc("GET /ws", g.handleWS)
	return mux
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (g *Gateway) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, err := g.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err)
		return
	}
	var req arenadto.CreateRoomRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means defaults
	}
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = "standard"
	}
	snap, err := g.reg.CreateRoom(userID, mode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(arenadto.CreateRoomResponse{RoomID: snap.RoomID, Status: snap.Status})
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	de, ok := err.(*arenadto.DomainError)
	if !ok {
		de = arenadto.Errorf(arenadto.CodeBadRequest, err.Error())
	}
	_ = json.NewEncoder(w).Encode(de)
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	// Unauthenticated connections get no further: verification failure is
	// fatal to the connection attempt.
	userID, err := g.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	s := newSession(conn, userID)
	go s.writeLoop(ctx)
	obslog.L().Info("ws_connect", zap.String("user_id", userID))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var env arenadto.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.enqueue(encodeEvent(arenadto.TypeErrorEvent,
				arenadto.Errorf(arenadto.CodeBadRequest, "malformed message")))
			continue
		}
		g.dispatch(s, env)
	}

	g.leave(s)
	close(s.send)
	obslog.L().Info("ws_disconnect", zap.String("user_id", userID))
}

func (g *Gateway) dispatch(s *session, env arenadto.Envelope) {
	switch env.Type {
	case arenadto.TypeJoin:
		var req arenadto.JoinRequest
		if !decodePayload(s, env.Payload, &req) {
			return
		}
		g.handleJoin(s, req)
	case arenadto.TypeMove:
		var req arenadto.MoveRequest
		if !decodePayload(s, env.Payload, &req) {
			return
		}
		g.handleMove(s, req)
	case arenadto.TypeSnapshot:
		var req arenadto.RoomRequest
		if !decodePayload(s, env.Payload, &req) {
			return
		}
		g.handleSnapshot(s, req)
	case arenadto.TypeHeartbeat:
		var req arenadto.RoomRequest
		if !decodePayload(s, env.Payload, &req) {
			return
		}
		g.handleHeartbeat(s, req)
	case arenadto.TypeResign:
		var req arenadto.RoomRequest
		if !decodePayload(s, env.Payload, &req) {
			return
		}
		g.handleResign(s, req)
	default:
		s.enqueue(encodeEvent(arenadto.TypeErrorEvent,
			arenadto.Errorf(arenadto.CodeBadRequest, "unknown message type: "+env.Type)))
	}
}

func decodePayload(s *session, raw json.RawMessage, out any) bool {
	if err := json.Unmarshal(raw, out); err != nil {
		s.enqueue(encodeEvent(arenadto.TypeErrorEvent,
			arenadto.Errorf(arenadto.CodeBadRequest, "malformed payload")))
		return false
	}
	return true
}

func (g *Gateway) sendErr(s *session, err error) {
	de, ok := err.(*arenadto.DomainError)
	if !ok {
		de = arenadto.Errorf(arenadto.CodeBadRequest, err.Error())
	}
	s.enqueue(encodeEvent(arenadto.TypeErrorEvent, de))
}

func (g *Gateway) handleJoin(s *session, req arenadto.JoinRequest) {
	snap, err := g.reg.Join(s.userID, req.RoomID)
	if err != nil {
		g.sendErr(s, err)
		return
	}
	// One room per connection: switching rooms detaches from the old one
	// first, and rejoining the same room must not recount presence.
	rejoining := s.roomID == req.RoomID
	if s.roomID != 0 && !rejoining {
		g.leave(s)
	}
	s.roomID = req.RoomID
	g.subscribe(s)
	if !rejoining {
		g.markOnline(req.RoomID, s.userID)
	}

	snap.Online = g.onlineList(req.RoomID)
	s.enqueue(encodeEvent(arenadto.TypeSnapshotEvent, snap))

	// Bounded catch-up: replay only when the gap fits the cap, otherwise
	// the snapshot alone is the recovery path.
	if req.LastKnownSeq != nil {
		last, n := *req.LastKnownSeq, len(snap.Moves)
		if last >= 0 && last < n && n-last <= g.limits.ReplayCap {
			s.enqueue(encodeEvent(arenadto.TypeReplayEvent, arenadto.ReplayPayload{
				RoomID: req.RoomID,
				Moves:  snap.Moves[last:],
			}))
		}
	}

	g.broadcastExcept(req.RoomID, s, encodeEvent(arenadto.TypeJoinedEvent,
		arenadto.JoinedPayload{RoomID: req.RoomID, UserID: s.userID}))
	g.broadcastSnapshot(req.RoomID)
	obslog.L().Info("ws_join", zap.Uint64("room_id", req.RoomID), zap.String("user_id", s.userID))
}

func (g *Gateway) handleMove(s *session, req arenadto.MoveRequest) {
	if s.roomID != req.RoomID {
		g.sendErr(s, arenadto.Errorf(arenadto.CodeInvalidState, "join the room before moving"))
		return
	}
	if !g.moves.Allow(s.userID, req.RoomID) {
		g.sendErr(s, arenadto.Errorf(arenadto.CodeRateLimited, "too many moves, slow down"))
		return
	}
	rec, snap, err := g.reg.ApplyMove(s.userID, req.RoomID, req.From, req.To)
	if err != nil {
		g.sendErr(s, err)
		return
	}
	s.enqueue(encodeEvent(arenadto.TypeAckEvent,
		arenadto.AckPayload{Of: arenadto.TypeMove, ClientRequestID: req.ClientRequestID}))

	// Delivery order of the move event is not guaranteed; pairing it with
	// a snapshot lets clients reconcile on sequence numbers.
	g.broadcast(req.RoomID, encodeEvent(arenadto.TypeMoveEvent, rec))
	snap.Online = g.onlineList(req.RoomID)
	g.broadcast(req.RoomID, encodeEvent(arenadto.TypeSnapshotEvent, snap))

	if snap.Status == string(arena.StatusFinished) {
		g.broadcast(req.RoomID, encodeEvent(arenadto.TypeFinishEvent,
			arenadto.FinishPayload{RoomID: req.RoomID, Winner: snap.Winner}))
		g.moves.DropRoom(req.RoomID)
		g.beats.DropRoom(req.RoomID)
	}
}

func (g *Gateway) handleSnapshot(s *session, req arenadto.RoomRequest) {
	snap, err := g.reg.Snapshot(req.RoomID)
	if err != nil {
		g.sendErr(s, err)
		return
	}
	snap.Online = g.onlineList(req.RoomID)
	s.enqueue(encodeEvent(arenadto.TypeSnapshotEvent, snap))
}

func (g *Gateway) handleHeartbeat(s *session, req arenadto.RoomRequest) {
	if s.roomID != req.RoomID {
		g.sendErr(s, arenadto.Errorf(arenadto.CodeInvalidState, "join the room before heartbeating"))
		return
	}
	if !g.beats.Allow(s.userID, req.RoomID) {
		// too soon: acknowledged but a no-op
		s.enqueue(encodeEvent(arenadto.TypeAckEvent, arenadto.AckPayload{Of: arenadto.TypeHeartbeat}))
		return
	}
	if g.touchOnline(req.RoomID, s.userID) {
		g.broadcastSnapshot(req.RoomID)
		return
	}
	s.enqueue(encodeEvent(arenadto.TypeAckEvent, arenadto.AckPayload{Of: arenadto.TypeHeartbeat}))
}

func (g *Gateway) handleResign(s *session, req arenadto.RoomRequest) {
	if s.roomID != req.RoomID {
		g.sendErr(s, arenadto.Errorf(arenadto.CodeInvalidState, "join the room before resigning"))
		return
	}
	snap, err := g.reg.Resign(s.userID, req.RoomID)
	if err != nil {
		g.sendErr(s, err)
		return
	}
	snap.Online = g.onlineList(req.RoomID)
	g.broadcast(req.RoomID, encodeEvent(arenadto.TypeSnapshotEvent, snap))
	g.broadcast(req.RoomID, encodeEvent(arenadto.TypeFinishEvent,
		arenadto.FinishPayload{RoomID: req.RoomID, Winner: snap.Winner, Reason: "resign"}))
	g.moves.DropRoom(req.RoomID)
	g.beats.DropRoom(req.RoomID)
}

// leave detaches a disconnecting session: presence goes offline and the
// room sees a refreshed snapshot.
func (g *Gateway) leave(s *session) {
	if s.roomID == 0 {
		return
	}
	g.unsubscribe(s)
	g.moves.DropUser(s.userID, s.roomID)
	g.beats.DropUser(s.userID, s.roomID)
	if g.markOffline(s.roomID, s.userID) {
		g.broadcastSnapshot(s.roomID)
	}
}

func (g *Gateway) subscribe(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	conns := g.rooms[s.roomID]
	if conns == nil {
		conns = make(map[*session]struct{})
		g.rooms[s.roomID] = conns
	}
	conns[s] = struct{}{}
}

func (g *Gateway) unsubscribe(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conns := g.rooms[s.roomID]; conns != nil {
		delete(conns, s)
		if len(conns) == 0 {
			delete(g.rooms, s.roomID)
		}
	}
}

// markOnline reports whether the user transitioned offline → online.
func (g *Gateway) markOnline(roomID uint64, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	users := g.presence[roomID]
	if users == nil {
		users = make(map[string]int)
		g.presence[roomID] = users
	}
	users[userID]++
	return users[userID] == 1
}

// touchOnline restores a lapsed user without disturbing the connection
// refcount. Reports whether the user transitioned offline → online.
func (g *Gateway) touchOnline(roomID uint64, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	users := g.presence[roomID]
	if users == nil {
		users = make(map[string]int)
		g.presence[roomID] = users
	}
	if users[userID] > 0 {
		return false
	}
	users[userID] = 1
	return true
}

// markOffline reports whether the user's last connection went away.
func (g *Gateway) markOffline(roomID uint64, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	users := g.presence[roomID]
	if users == nil {
		return false
	}
	users[userID]--
	if users[userID] <= 0 {
		delete(users, userID)
		if len(users) == 0 {
			delete(g.presence, roomID)
		}
		return true
	}
	return false
}

func (g *Gateway) onlineList(roomID uint64) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	users := g.presence[roomID]
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// broadcast delivers a frame to every connection joined to the room, and
// never anyone else.
func (g *Gateway) broadcast(roomID uint64, frame []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for s := range g.rooms[roomID] {
		s.enqueue(frame)
	}
}

func (g *Gateway) broadcastExcept(roomID uint64, skip *session, frame []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for s := range g.rooms[roomID] {
		if s != skip {
			s.enqueue(frame)
		}
	}
}

func (g *Gateway) broadcastSnapshot(roomID uint64) {
	snap, err := g.reg.Snapshot(roomID)
	if err != nil {
		return
	}
	snap.Online = g.onlineList(roomID)
	g.broadcast(roomID, encodeEvent(arenadto.TypeSnapshotEvent, snap))
}
