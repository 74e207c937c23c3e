package websocket

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrShuttingDown = errors.New("relay is shutting down")

func (r *Relay) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(r.cfg.AllowedOrigins),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and starts the socket's read and write loops.
// It returns as soon as the loops are running.
func (r *Relay) ServeWS(w http.ResponseWriter, req *http.Request) error {
	if r.ShuttingDown() {
		return ErrShuttingDown
	}

	up := r.upgrader()
	conn, err := up.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		zap.L().Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	cl := newWSClient(conn, uuid.NewString())
	session := r.NewSession(cl.ID, cl)
	r.track(cl)

	zap.L().Info("client connected",
		zap.String("session_id", cl.ID),
		zap.String("remote", req.RemoteAddr))

	go cl.writeMessage()
	go cl.readMessage(session, r.readLimit(), func() { r.untrack(cl) })
	return nil
}

func (r *Relay) readLimit() int64 {
	limit := int64(r.cfg.MaxPayloadBytes + readOverhead)
	if limit < snapshotFrameLimit {
		limit = snapshotFrameLimit
	}
	return limit
}
