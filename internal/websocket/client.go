package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 256
	// readOverhead leaves room for the JSON envelope around a maximal payload.
	readOverhead = 16 * 1024
	// snapshotFrameLimit bounds snapshot frames, which carry the whole canvas.
	snapshotFrameLimit = 16 << 20
)

var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

type outbound struct {
	data      []byte
	closeCode int
	closeText string
}

// WSClient owns one gorilla connection. All writes go through the Message
// channel and are performed by writeMessage, so frames reach the peer in the
// order they were queued, a close frame included.
type WSClient struct {
	Conn    *websocket.Conn
	Message chan outbound
	ID      string
	done    chan struct{} // closed when the read loop exits
	mu      sync.Mutex
	// isClosed is set once a close has been requested; no frames are
	// accepted afterwards.
	isClosed bool
}

func newWSClient(conn *websocket.Conn, id string) *WSClient {
	return &WSClient{
		Conn:    conn,
		Message: make(chan outbound, sendBufferSize),
		ID:      id,
		done:    make(chan struct{}),
	}
}

// Send queues a text frame without blocking.
func (cl *WSClient) Send(data []byte) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.isClosed {
		return ErrClientClosed
	}
	select {
	case cl.Message <- outbound{data: data}:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close queues a close frame behind any pending frames. When the buffer is
// full the close frame is written directly instead.
func (cl *WSClient) Close(code int, text string) {
	cl.mu.Lock()
	if cl.isClosed {
		cl.mu.Unlock()
		return
	}
	cl.isClosed = true
	select {
	case cl.Message <- outbound{closeCode: code, closeText: text}:
		cl.mu.Unlock()
	default:
		cl.mu.Unlock()
		cl.writeClose(code, text)
		cl.Conn.Close()
	}
}

func (cl *WSClient) IsOpen() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return !cl.isClosed
}

// terminate drops the transport immediately.
func (cl *WSClient) terminate() {
	cl.mu.Lock()
	cl.isClosed = true
	cl.mu.Unlock()
	cl.Conn.Close()
}

func (cl *WSClient) writeClose(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := cl.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		zap.L().Debug("close frame write failed", zap.String("session_id", cl.ID), zap.Error(err))
	}
}

func (cl *WSClient) writeMessage() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.Conn.Close()
	}()

	for {
		select {
		case <-cl.done:
			return
		case msg := <-cl.Message:
			if msg.closeCode != 0 {
				cl.writeClose(msg.closeCode, msg.closeText)
				return
			}
			cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.Conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				zap.L().Debug("write failed", zap.String("session_id", cl.ID), zap.Error(err))
				cl.terminate()
				return
			}
		case <-ticker.C:
			if err := cl.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				zap.L().Debug("ping failed", zap.String("session_id", cl.ID), zap.Error(err))
				cl.terminate()
				return
			}
		}
	}
}

func (cl *WSClient) readMessage(session *Session, maxFrame int64, onExit func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("recovered from panic in readMessage", zap.Any("panic", r))
		}
		close(cl.done)
		cl.terminate()
		session.HandleDisconnect()
		onExit()
		zap.L().Info("client disconnected", zap.String("session_id", cl.ID))
	}()

	cl.Conn.SetReadLimit(maxFrame)
	cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.Conn.SetPongHandler(func(string) error {
		return cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := cl.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
				CodeAuthRequired, CodeBadSecret, CodeRateLimited) {
				zap.L().Debug("read error", zap.String("session_id", cl.ID), zap.Error(err))
			}
			return
		}
		cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
		session.HandleFrame(message)
	}
}
