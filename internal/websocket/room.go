package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrRoomClosed = errors.New("room is closed")

// Peer is a room member as seen by the room: something that can receive
// frames and be disconnected.
type Peer interface {
	ID() string
	Tag() string
	Send(data []byte) error
	Close(code int, text string)
	IsOpen() bool
	// Detach tells the peer it is no longer a member of room.
	Detach(room *Room)
}

type Room struct {
	id  string
	hub *Hub

	mu           sync.RWMutex
	members      map[Peer]struct{}
	host         Peer
	lastActivity time.Time
	closed       bool

	emptyTimer    Timer
	snapshotTimer Timer

	emptyTimeout     time.Duration
	snapshotInterval time.Duration
	now              func() time.Time
}

func newRoom(id string, hub *Hub) *Room {
	r := &Room{
		id:               id,
		hub:              hub,
		members:          make(map[Peer]struct{}),
		emptyTimeout:     hub.cfg.EmptyRoomTimeout,
		snapshotInterval: hub.cfg.SnapshotCheckInterval,
		now:              hub.now,
	}
	r.lastActivity = r.now()
	return r
}

func (r *Room) ID() string { return r.id }

// AddMember inserts p, designating it host when the room was empty.
func (r *Room) AddMember(p Peer) (clients int, isHost bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, false, ErrRoomClosed
	}
	if len(r.members) == 0 {
		r.host = p
	}
	r.members[p] = struct{}{}
	r.lastActivity = r.now()

	r.emptyTimer.Cancel()
	if !r.snapshotTimer.Armed() {
		r.snapshotTimer.Every(r.snapshotInterval, r.checkSnapshot)
	}
	return len(r.members), r.host == p, nil
}

// RemoveMember drops p and returns the remaining member count. When the room
// becomes empty the empty-countdown is armed.
func (r *Room) RemoveMember(p Peer) (remaining int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[p]; !ok {
		return len(r.members), false
	}
	delete(r.members, p)
	if r.host == p {
		r.host = nil
	}
	r.lastActivity = r.now()

	if len(r.members) == 0 && !r.closed {
		r.snapshotTimer.Cancel()
		r.emptyTimer.Schedule(r.emptyTimeout, r.expireIfEmpty)
	}
	return len(r.members), true
}

func (r *Room) IsHost(p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.host != nil && r.host == p
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Closed reports whether the room has been closed or retired and no longer
// accepts members.
func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Room) LastActivity() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastActivity
}

// Broadcast delivers payload to every open member except exclude and returns
// how many members accepted it. A failed send never stops delivery to the
// remaining members.
func (r *Room) Broadcast(payload []byte, exclude Peer) int {
	r.mu.Lock()
	r.lastActivity = r.now()
	targets := make([]Peer, 0, len(r.members))
	for p := range r.members {
		if p != exclude {
			targets = append(targets, p)
		}
	}
	r.mu.Unlock()

	delivered := 0
	for _, p := range targets {
		if !p.IsOpen() {
			continue
		}
		if err := p.Send(payload); err != nil {
			zap.L().Debug("broadcast send failed",
				zap.String("room_id", r.id),
				zap.String("session_id", p.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
	return delivered
}

// Close notifies every member with room_closed, disconnects them and removes
// the room from the hub. Closing an already closed room is a no-op.
func (r *Room) Close(reason string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	members := make([]Peer, 0, len(r.members))
	for p := range r.members {
		members = append(members, p)
	}
	r.members = make(map[Peer]struct{})
	r.host = nil
	r.emptyTimer.Cancel()
	r.snapshotTimer.Cancel()
	r.mu.Unlock()

	code, text := closeCodeFor(reason)
	notice, _ := json.Marshal(RoomClosedMessage{Type: TypeRoomClosed, Reason: reason})
	for _, p := range members {
		p.Detach(r)
		if p.IsOpen() {
			_ = p.Send(notice)
		}
		p.Close(code, text)
	}

	r.hub.remove(r)
	zap.L().Info("room closed",
		zap.String("room_id", r.id),
		zap.String("reason", reason),
		zap.Int("clients", len(members)))
}

// markDeleted disarms the room after the hub dropped it.
func (r *Room) markDeleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.emptyTimer.Cancel()
	r.snapshotTimer.Cancel()
}

// retireIf marks the room closed when cond holds for its current state. The
// check and the transition happen under one lock so a concurrent join either
// lands first (and cond fails) or observes ErrRoomClosed.
func (r *Room) retireIf(cond func() bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !cond() {
		return false
	}
	r.closed = true
	r.emptyTimer.Cancel()
	r.snapshotTimer.Cancel()
	return true
}

func (r *Room) expireIfEmpty() {
	retired := r.retireIf(func() bool { return len(r.members) == 0 })
	if retired && r.hub.remove(r) {
		zap.L().Info("empty room expired", zap.String("room_id", r.id))
	}
}

// expireIfIdle retires the room when it is empty and untouched since cutoff.
func (r *Room) expireIfIdle(cutoff time.Time) bool {
	retired := r.retireIf(func() bool {
		return len(r.members) == 0 && r.lastActivity.Before(cutoff)
	})
	return retired && r.hub.remove(r)
}

// checkSnapshot is the periodic watchdog: it stops itself once the room has
// no members. Persistence itself is driven by client snapshot messages.
func (r *Room) checkSnapshot() {
	r.mu.RLock()
	empty := len(r.members) == 0
	r.mu.RUnlock()

	if empty {
		r.snapshotTimer.Cancel()
	}
}

func closeCodeFor(reason string) (int, string) {
	if reason == ReasonHostEnded {
		return CodeRoomClosed, TextRoomClosed
	}
	return CodeShutdown, TextShutdown
}
