package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"canvas-relay/internal/snapshot"

	"github.com/stretchr/testify/require"
)

var errFakeSend = errors.New("send failed")

// fakeConn records every frame and the close code it was asked to close with.
type fakeConn struct {
	mu        sync.Mutex
	frames    [][]byte
	closed    bool
	closeCode int
	closeText string
	failSends bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.failSends {
		return errFakeSend
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeText = text
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Messages decodes every recorded frame.
func (c *fakeConn) Messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) Last(t *testing.T) map[string]any {
	t.Helper()
	msgs := c.Messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func (c *fakeConn) OfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.Messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// fakePeer is a bare room member.
type fakePeer struct {
	fakeConn
	id       string
	tag      string
	mu       sync.Mutex
	detached []*Room
}

func newFakePeer(id string) *fakePeer {
	return &fakePeer{id: id, tag: id}
}

func (p *fakePeer) ID() string  { return p.id }
func (p *fakePeer) Tag() string { return p.tag }

func (p *fakePeer) Detach(room *Room) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = append(p.detached, room)
}

func (p *fakePeer) Detached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.detached)
}

const testSecret = "secret"

func testRelayConfig() Config {
	return Config{
		Secret: testSecret,
		Hub: HubConfig{
			MaxRooms:              10,
			EmptyRoomTimeout:      time.Minute,
			SnapshotCheckInterval: time.Minute,
		},
		RateLimitWindow: time.Minute,
		RateLimitMax:    1000,
		RateLimitWarn:   0.8,
		StoreTimeout:    time.Second,
	}
}

func newTestRelay(t *testing.T, cfg Config) (*Relay, *snapshot.MemoryStore) {
	t.Helper()
	store := snapshot.NewMemoryStore()
	relay := NewRelay(cfg, snapshot.NewCoordinator(store, snapshot.DefaultTTL), nil)
	return relay, store
}

func frame(t *testing.T, v map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// authed returns a session that already completed auth, with its frames
// cleared.
func authed(t *testing.T, relay *Relay, tag string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := relay.NewSession("", conn)
	s.HandleFrame(frame(t, map[string]any{"type": "auth", "key": testSecret, "clientId": tag}))
	require.True(t, s.Authenticated())
	conn.Reset()
	return s, conn
}

// fakeClock is a settable time source for the hub.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
