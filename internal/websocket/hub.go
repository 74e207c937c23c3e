package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomLimit    = errors.New("room limit reached")
	ErrRoomNotFound = errors.New("room not found")
)

type HubConfig struct {
	MaxRooms              int
	EmptyRoomTimeout      time.Duration
	SnapshotCheckInterval time.Duration
}

// Hub is the directory of live rooms. Callers only reach rooms through its
// methods; the map itself never escapes.
type Hub struct {
	cfg   HubConfig
	now   func() time.Time
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.EmptyRoomTimeout <= 0 {
		cfg.EmptyRoomTimeout = 30 * time.Second
	}
	if cfg.SnapshotCheckInterval <= 0 {
		cfg.SnapshotCheckInterval = 30 * time.Second
	}
	return &Hub{
		cfg:   cfg,
		now:   time.Now,
		rooms: make(map[string]*Room),
	}
}

// GetOrCreate returns the live room with id, creating it when absent. A
// retired room still awaiting removal is replaced. created reports whether
// this call made the room.
func (h *Hub) GetOrCreate(id string) (room *Room, created bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[id]; ok && !r.Closed() {
		return r, false
	}
	r := newRoom(id, h)
	h.rooms[id] = r
	setRooms(len(h.rooms))
	return r, true
}

// Create makes a new room, failing when id is taken or the hub is full.
func (h *Hub) Create(id string) (*Room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	live := len(h.rooms)
	if r, ok := h.rooms[id]; ok {
		if !r.Closed() {
			return nil, ErrRoomExists
		}
		live--
	}
	if h.cfg.MaxRooms > 0 && live >= h.cfg.MaxRooms {
		return nil, ErrRoomLimit
	}
	r := newRoom(id, h)
	h.rooms[id] = r
	setRooms(len(h.rooms))
	return r, nil
}

func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Delete removes the room with id after disarming its timers. Deleting an
// unknown id is a no-op.
func (h *Hub) Delete(id string) {
	h.mu.Lock()
	r, ok := h.rooms[id]
	if ok {
		delete(h.rooms, id)
		setRooms(len(h.rooms))
	}
	h.mu.Unlock()

	if ok {
		r.markDeleted()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Full reports whether creating another room would exceed the capacity.
func (h *Hub) Full() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.MaxRooms > 0 && len(h.rooms) >= h.cfg.MaxRooms
}

// SweepInactive deletes every empty room whose last activity is older than
// idle and returns how many were removed.
func (h *Hub) SweepInactive(idle time.Duration) int {
	cutoff := h.now().Add(-idle)
	removed := 0
	for _, r := range h.snapshot() {
		if r.expireIfIdle(cutoff) {
			removed++
			zap.L().Info("inactive room swept", zap.String("room_id", r.id))
		}
	}
	return removed
}

// RunSweeper calls SweepInactive every interval until ctx is done.
func (h *Hub) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := h.SweepInactive(idle); n > 0 {
				zap.L().Info("room sweep finished", zap.Int("removed", n), zap.Int("rooms", h.Count()))
			}
		}
	}
}

// CloseAll runs the close procedure of every room with reason.
func (h *Hub) CloseAll(reason string) int {
	rooms := h.snapshot()
	for _, r := range rooms {
		r.Close(reason)
	}
	return len(rooms)
}

// Rooms lists the live rooms ordered by id.
func (h *Hub) Rooms() []RoomRes {
	rooms := h.snapshot()
	out := make([]RoomRes, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomRes{
			ID:           r.id,
			Clients:      r.MemberCount(),
			LastActivity: r.LastActivity(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) snapshot() []*Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// remove drops r from the directory only if it is still the room registered
// under its id.
func (h *Hub) remove(r *Room) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.rooms[r.id]; !ok || cur != r {
		return false
	}
	delete(h.rooms, r.id)
	setRooms(len(h.rooms))
	return true
}
