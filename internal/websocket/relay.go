package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	internaljwt "canvas-relay/internal/jwt"
	"canvas-relay/internal/notify"
	"canvas-relay/internal/ratelimit"
	"canvas-relay/internal/snapshot"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	Secret          string
	Hub             HubConfig
	RateLimitWindow time.Duration
	RateLimitMax    int
	RateLimitWarn   float64
	MaxPayloadBytes int
	RoomTimeout     time.Duration
	SweepInterval   time.Duration
	ShutdownGrace   time.Duration
	StoreTimeout    time.Duration
	AllowedOrigins  []string
}

func (c *Config) setDefaults() {
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Second
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = 100
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.RoomTimeout <= 0 {
		c.RoomTimeout = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
}

// Relay is the process-wide relay server: it owns the room hub, creates a
// Session per accepted socket and sequences shutdown.
type Relay struct {
	cfg       Config
	hub       *Hub
	snapshots *snapshot.Coordinator
	notifier  notify.Notifier
	verifyKey func(string) bool
	started   time.Time

	mu           sync.Mutex
	clients      map[*WSClient]struct{}
	shuttingDown atomic.Bool
}

func NewRelay(cfg Config, snapshots *snapshot.Coordinator, notifier notify.Notifier) *Relay {
	cfg.setDefaults()
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Relay{
		cfg:       cfg,
		hub:       NewHub(cfg.Hub),
		snapshots: snapshots,
		notifier:  notifier,
		verifyKey: internaljwt.NewSecretMatcher(cfg.Secret),
		started:   time.Now(),
		clients:   make(map[*WSClient]struct{}),
	}
}

func (r *Relay) Hub() *Hub { return r.hub }

func (r *Relay) Uptime() time.Duration { return time.Since(r.started) }

func (r *Relay) RoomCount() int { return r.hub.Count() }

func (r *Relay) Rooms() []RoomRes { return r.hub.Rooms() }

func (r *Relay) AllowedOrigins() []string { return r.cfg.AllowedOrigins }

// NewSession builds the protocol state for a freshly accepted socket.
func (r *Relay) NewSession(id string, conn Conn) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:      id,
		conn:    conn,
		relay:   r,
		limiter: ratelimit.New(r.cfg.RateLimitWindow, r.cfg.RateLimitMax),
	}
}

// Run sweeps inactive rooms until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.hub.RunSweeper(ctx, r.cfg.SweepInterval, r.cfg.RoomTimeout)
}

// Shutdown notifies and closes every room, waits the grace period so close
// frames can flush, then drops every remaining transport. In-flight store
// operations are left to finish on their own.
func (r *Relay) Shutdown(ctx context.Context, signal string) {
	if !r.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	rooms := r.hub.Count()
	zap.L().Info("relay shutting down", zap.String("signal", signal), zap.Int("rooms", rooms))
	r.notifier.Notify(notify.ShuttingDown(signal, rooms))

	r.hub.CloseAll(ReasonShutdown)
	for _, cl := range r.trackedClients() {
		cl.Close(CodeShutdown, TextShutdown)
	}

	if r.cfg.ShutdownGrace > 0 {
		select {
		case <-time.After(r.cfg.ShutdownGrace):
		case <-ctx.Done():
		}
	}

	for _, cl := range r.trackedClients() {
		cl.terminate()
	}
}

func (r *Relay) ShuttingDown() bool { return r.shuttingDown.Load() }

func (r *Relay) track(cl *WSClient) {
	r.mu.Lock()
	r.clients[cl] = struct{}{}
	r.mu.Unlock()
	incConnections()
}

func (r *Relay) untrack(cl *WSClient) {
	r.mu.Lock()
	_, ok := r.clients[cl]
	delete(r.clients, cl)
	r.mu.Unlock()
	if ok {
		decConnections()
	}
}

func (r *Relay) trackedClients() []*WSClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*WSClient, 0, len(r.clients))
	for cl := range r.clients {
		out = append(out, cl)
	}
	return out
}
