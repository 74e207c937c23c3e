package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"canvas-relay/internal/notify"
	"canvas-relay/internal/ratelimit"
	"canvas-relay/internal/snapshot"

	"go.uber.org/zap"
)

// Conn is the transport a Session writes to.
type Conn interface {
	Send(data []byte) error
	Close(code int, text string)
	IsOpen() bool
}

// Session is the protocol state of one socket:
// unauthenticated -> authenticated -> joined to at most one room.
// HandleFrame must be called sequentially by the socket's reader.
type Session struct {
	id      string
	conn    Conn
	relay   *Relay
	limiter *ratelimit.SlidingWindow

	mu            sync.Mutex
	authenticated bool
	tag           string
	room          *Room
	warned        bool
}

func (s *Session) ID() string { return s.id }

func (s *Session) Tag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tag
}

func (s *Session) Send(data []byte) error { return s.conn.Send(data) }

func (s *Session) Close(code int, text string) { s.conn.Close(code, text) }

func (s *Session) IsOpen() bool { return s.conn.IsOpen() }

func (s *Session) Detach(room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == room {
		s.room = nil
	}
}

func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Room returns the room the session is joined to, or nil.
func (s *Session) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// HandleFrame interprets one inbound frame.
func (s *Session) HandleFrame(raw []byte) {
	if !s.conn.IsOpen() {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("panic while handling frame",
				zap.String("session_id", s.id),
				zap.Any("panic", rec))
			s.sendError("Internal server error")
		}
	}()

	if !s.Authenticated() {
		s.handleUnauthenticated(raw)
		return
	}

	if !s.admit() {
		return
	}

	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError("Invalid message format")
		return
	}

	switch msg.Type {
	case TypeAuth:
		s.sendJSON(AuthReply{Type: TypeAuth, Status: "ok"})
	case TypeCreate:
		s.handleCreate(msg)
	case TypeJoin:
		s.handleJoin(msg)
	case TypeUpdate, TypeAwareness:
		s.handleBroadcast(msg)
	case TypeRoomSettings:
		s.handleRoomSettings(msg)
	case TypeSnapshot:
		s.handleSnapshot(msg)
	case TypeCloseRoom:
		s.handleCloseRoom()
	default:
		s.sendError("Unknown message type")
	}
}

// HandleDisconnect leaves the current room, if any, and tells the remaining
// members.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	room := s.room
	s.room = nil
	tag := s.tag
	s.mu.Unlock()

	if room == nil {
		return
	}
	remaining, removed := room.RemoveMember(s)
	if !removed {
		return
	}
	zap.L().Info("client left room",
		zap.String("room_id", room.ID()),
		zap.String("session_id", s.id),
		zap.Int("clients", remaining))
	if remaining > 0 {
		s.broadcastJSON(room, PeerMessage{Type: TypePeerLeft, ClientID: tag, Clients: remaining})
	}
}

func (s *Session) handleUnauthenticated(raw []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != TypeAuth {
		zap.L().Info("frame before auth", zap.String("session_id", s.id))
		s.conn.Close(CodeAuthRequired, TextAuthRequired)
		return
	}
	if !s.relay.verifyKey(msg.Key) {
		zap.L().Warn("invalid shared secret", zap.String("session_id", s.id))
		s.conn.Close(CodeBadSecret, TextBadSecret)
		return
	}

	s.mu.Lock()
	s.authenticated = true
	if msg.ClientID != "" {
		s.tag = msg.ClientID
	}
	s.mu.Unlock()

	s.sendJSON(AuthReply{Type: TypeAuth, Status: "ok"})
}

func (s *Session) admit() bool {
	res := s.limiter.CheckAndRecord()
	if !res.Allowed {
		incRateLimited()
		zap.L().Warn("rate limit exceeded",
			zap.String("session_id", s.id),
			zap.Duration("reset_in", res.ResetIn))
		s.sendError(TextRateLimited)
		s.conn.Close(CodeRateLimited, TextRateLimited)
		return false
	}

	threshold := s.relay.cfg.RateLimitWarn
	if threshold <= 0 {
		return true
	}
	usage := s.limiter.UsageLevel()
	s.mu.Lock()
	crossed := usage >= threshold && !s.warned
	s.warned = usage >= threshold
	s.mu.Unlock()
	if crossed {
		zap.L().Warn("client approaching rate limit",
			zap.String("session_id", s.id),
			zap.Float64("usage", usage),
			zap.Int("remaining", res.Remaining))
	}
	return true
}

func (s *Session) handleCreate(msg InboundMessage) {
	if s.Room() != nil {
		s.sendError("Already in a room")
		return
	}
	if !ValidRoomID(msg.RoomID) {
		s.sendError("Invalid room ID")
		return
	}

	room, err := s.relay.hub.Create(msg.RoomID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoomExists):
			s.sendError("Room already exists")
		case errors.Is(err, ErrRoomLimit):
			s.sendError("Room limit reached")
		default:
			s.sendError("Failed to create room")
		}
		return
	}

	if err := s.enter(room, msg, true); err != nil {
		s.sendError("Room not found")
	}
}

func (s *Session) handleJoin(msg InboundMessage) {
	if s.Room() != nil {
		s.sendError("Already in a room")
		return
	}
	if !ValidRoomID(msg.RoomID) {
		s.sendError("Invalid room ID")
		return
	}

	room, created, ok := s.lookupOrCreate(msg.RoomID)
	if !ok {
		s.sendError("Room limit reached")
		return
	}
	err := s.enter(room, msg, created)
	if errors.Is(err, ErrRoomClosed) {
		// The room was retired between lookup and join; the id is free again.
		room, created, ok = s.lookupOrCreate(msg.RoomID)
		if !ok {
			s.sendError("Room limit reached")
			return
		}
		err = s.enter(room, msg, created)
	}
	if err != nil {
		s.sendError("Room not found")
	}
}

// lookupOrCreate returns the live room with id, creating it when absent and
// the hub has capacity. ok is false when the hub is full.
func (s *Session) lookupOrCreate(id string) (room *Room, created, ok bool) {
	hub := s.relay.hub
	existing, found := hub.Get(id)
	if found && !existing.Closed() {
		return existing, false, true
	}
	// Replacing a retired room does not grow the hub.
	if !found && hub.Full() {
		return nil, false, false
	}
	room, created = hub.GetOrCreate(id)
	return room, created, true
}

// enter adds the session to room and runs the join handshake: joined reply,
// snapshot hydration, then peer-joined to the existing members.
func (s *Session) enter(room *Room, msg InboundMessage, created bool) error {
	// The room is recorded first so a concurrent Close always finds it to
	// detach.
	s.mu.Lock()
	s.room = room
	if msg.ClientID != "" {
		s.tag = msg.ClientID
	}
	tag := s.tag
	s.mu.Unlock()

	clients, isHost, err := room.AddMember(s)
	if err != nil {
		s.Detach(room)
		return err
	}

	s.sendJSON(JoinedMessage{Type: TypeJoined, RoomID: room.ID(), Clients: clients, IsHost: isHost})

	if msg.Type == TypeJoin {
		s.hydrate(room.ID())
	}
	if clients > 1 {
		s.broadcastJSON(room, PeerMessage{Type: TypePeerJoined, ClientID: tag, Clients: clients})
	}
	if created {
		s.relay.notifier.Notify(notify.RoomCreated(room.ID()))
	}

	zap.L().Info("client joined room",
		zap.String("room_id", room.ID()),
		zap.String("session_id", s.id),
		zap.Int("clients", clients),
		zap.Bool("host", isHost))
	return nil
}

func (s *Session) hydrate(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.relay.cfg.StoreTimeout)
	defer cancel()

	snap, err := s.relay.snapshots.Load(ctx, roomID)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			incSnapshotError("load")
			zap.L().Warn("snapshot load failed", zap.String("room_id", roomID), zap.Error(err))
		}
		return
	}
	s.sendJSON(SnapshotMessage{Type: TypeSnapshot, Data: snap.Data, Settings: snap.Settings})
}

func (s *Session) handleBroadcast(msg InboundMessage) {
	room := s.Room()
	if room == nil {
		s.sendError("Not in a room")
		return
	}
	if err := validateBroadcastData(msg.Data, s.relay.cfg.MaxPayloadBytes); err != nil {
		s.sendError("Invalid payload: " + err.Error())
		return
	}
	s.broadcastJSON(room, RelayMessage{Type: msg.Type, ClientID: s.Tag(), Data: msg.Data})
}

func (s *Session) handleRoomSettings(msg InboundMessage) {
	room := s.Room()
	if room == nil {
		s.sendError("Not in a room")
		return
	}
	if len(msg.Settings) == 0 {
		s.sendError("Invalid settings")
		return
	}
	s.broadcastJSON(room, RelayMessage{Type: TypeRoomSettings, ClientID: s.Tag(), Settings: msg.Settings})

	ctx, cancel := context.WithTimeout(context.Background(), s.relay.cfg.StoreTimeout)
	defer cancel()
	if err := s.relay.snapshots.SaveSettings(ctx, room.ID(), msg.Settings); err != nil {
		incSnapshotError("save_settings")
		zap.L().Warn("room settings save failed", zap.String("room_id", room.ID()), zap.Error(err))
	}
}

func (s *Session) handleSnapshot(msg InboundMessage) {
	room := s.Room()
	if room == nil {
		s.sendError("Not in a room")
		return
	}
	snap := snapshot.Snapshot{Data: msg.Data, Settings: msg.Settings}
	if !snap.HasData() {
		s.sendError("Invalid snapshot")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.relay.cfg.StoreTimeout)
	defer cancel()
	if err := s.relay.snapshots.Save(ctx, room.ID(), snap); err != nil {
		incSnapshotError("save")
		zap.L().Warn("snapshot save failed", zap.String("room_id", room.ID()), zap.Error(err))
	}
}

func (s *Session) handleCloseRoom() {
	room := s.Room()
	if room == nil {
		s.sendError("Not in a room")
		return
	}
	if !room.IsHost(s) {
		s.sendError("Only the host can close the room")
		return
	}

	clients := room.MemberCount()
	room.Close(ReasonHostEnded)
	s.relay.notifier.Notify(notify.RoomClosed(room.ID(), clients))
}

func (s *Session) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("marshal outbound frame", zap.String("session_id", s.id), zap.Error(err))
		return
	}
	if err := s.conn.Send(data); err != nil {
		zap.L().Debug("send failed", zap.String("session_id", s.id), zap.Error(err))
	}
}

func (s *Session) sendError(message string) {
	s.sendJSON(ErrorMessage{Type: TypeError, Message: message})
}

func (s *Session) broadcastJSON(room *Room, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("marshal broadcast frame", zap.String("room_id", room.ID()), zap.Error(err))
		return
	}
	room.Broadcast(data, s)
}
