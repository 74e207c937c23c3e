package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRelayServer(t *testing.T, relay *Relay) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := relay.ServeWS(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func recv(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func recvClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce
	}
}

func TestServeWSScenario(t *testing.T) {
	relay, _ := newTestRelay(t, testRelayConfig())
	url := startRelayServer(t, relay)

	a := dial(t, url)
	send(t, a, map[string]any{"type": "auth", "key": testSecret})
	assert.Equal(t, map[string]any{"type": "auth", "status": "ok"}, recv(t, a))
	send(t, a, map[string]any{"type": "create", "roomId": "abc-1"})
	joined := recv(t, a)
	assert.Equal(t, "joined", joined["type"])
	assert.Equal(t, true, joined["isHost"])

	b := dial(t, url)
	send(t, b, map[string]any{"type": "auth", "key": testSecret, "clientId": "bob"})
	recv(t, b)
	send(t, b, map[string]any{"type": "join", "roomId": "abc-1"})
	joined = recv(t, b)
	assert.Equal(t, false, joined["isHost"])
	assert.Equal(t, float64(2), joined["clients"])

	peer := recv(t, a)
	assert.Equal(t, "peer-joined", peer["type"])
	assert.Equal(t, float64(2), peer["clients"])

	send(t, b, map[string]any{"type": "update", "data": "AAECAw=="})
	update := recv(t, a)
	assert.Equal(t, "update", update["type"])
	assert.Equal(t, "AAECAw==", update["data"])

	require.NoError(t, b.Close())
	left := recv(t, a)
	assert.Equal(t, "peer-left", left["type"])
	assert.Equal(t, float64(1), left["clients"])
}

func TestServeWSCloseCodes(t *testing.T) {
	relay, _ := newTestRelay(t, testRelayConfig())
	url := startRelayServer(t, relay)

	noAuth := dial(t, url)
	send(t, noAuth, map[string]any{"type": "join", "roomId": "r"})
	assert.Equal(t, CodeAuthRequired, recvClose(t, noAuth).Code)

	badKey := dial(t, url)
	send(t, badKey, map[string]any{"type": "auth", "key": "wrong"})
	ce := recvClose(t, badKey)
	assert.Equal(t, CodeBadSecret, ce.Code)
	assert.Equal(t, TextBadSecret, ce.Text)
}

func TestServeWSHostCloseRoom(t *testing.T) {
	relay, _ := newTestRelay(t, testRelayConfig())
	url := startRelayServer(t, relay)

	host := dial(t, url)
	send(t, host, map[string]any{"type": "auth", "key": testSecret})
	recv(t, host)
	send(t, host, map[string]any{"type": "create", "roomId": "r"})
	recv(t, host)

	guest := dial(t, url)
	send(t, guest, map[string]any{"type": "auth", "key": testSecret})
	recv(t, guest)
	send(t, guest, map[string]any{"type": "join", "roomId": "r"})
	recv(t, guest)
	recv(t, host)

	send(t, host, map[string]any{"type": "close_room"})
	closed := recv(t, guest)
	assert.Equal(t, map[string]any{"type": "room_closed", "reason": "host_ended"}, closed)
	ce := recvClose(t, guest)
	assert.Equal(t, CodeRoomClosed, ce.Code)
	assert.Equal(t, TextRoomClosed, ce.Text)
}

func TestRelayShutdown(t *testing.T) {
	cfg := testRelayConfig()
	cfg.ShutdownGrace = 100 * time.Millisecond
	relay, _ := newTestRelay(t, cfg)
	url := startRelayServer(t, relay)

	inRoom := dial(t, url)
	send(t, inRoom, map[string]any{"type": "auth", "key": testSecret})
	recv(t, inRoom)
	send(t, inRoom, map[string]any{"type": "create", "roomId": "r"})
	recv(t, inRoom)

	idle := dial(t, url)
	send(t, idle, map[string]any{"type": "auth", "key": testSecret})
	recv(t, idle)

	done := make(chan struct{})
	go func() {
		relay.Shutdown(context.Background(), "SIGTERM")
		close(done)
	}()

	notice := recv(t, inRoom)
	assert.Equal(t, "room_closed", notice["type"])
	assert.Equal(t, ReasonShutdown, notice["reason"])
	assert.Equal(t, CodeShutdown, recvClose(t, inRoom).Code)
	assert.Equal(t, CodeShutdown, recvClose(t, idle).Code)

	<-done
	assert.True(t, relay.ShuttingDown())
	assert.Equal(t, 0, relay.RoomCount())

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://draw.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://draw.example")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
