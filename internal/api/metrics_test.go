package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMux() *http.ServeMux {
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ok)
	mux.HandleFunc("/health", ok)
	mux.HandleFunc("/api/v1/rooms", ok)
	return mux
}

func TestRouteLabel(t *testing.T) {
	mux := testMux()
	tests := []struct {
		path string
		want string
	}{
		{"/ws", "/ws"},
		{"/health", "/health"},
		{"/api/v1/rooms", "/api/v1/rooms"},
		{"/api/v1/rooms/abc/def/ghi", unmatchedRoute},
		{"/wp-login.php", unmatchedRoute},
		{"/", unmatchedRoute},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, routeLabel(mux, r))
		})
	}
}

func TestInstrumentCountsByRoute(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())
	h := m.instrument(testMux())

	for _, p := range []string{"/health", "/health", "/random/a", "/random/b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", unmatchedRoute, "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.upgrades.WithLabelValues("upgraded")))
}

func TestInstrumentCountsUpgrades(t *testing.T) {
	m := newMetrics(prometheus.NewRegistry())
	upgrader := gorilla.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return r.Header.Get("Origin") != "http://evil.example" },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	})
	srv := httptest.NewServer(m.instrument(mux))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err := gorilla.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.upgrades.WithLabelValues("upgraded")) == 1 &&
			testutil.ToFloat64(m.upgrades.WithLabelValues("forbidden")) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/ws", "101")))
}

func TestRegisterReusesExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newMetrics(reg)
	second := newMetrics(reg)
	assert.Same(t, first.requests, second.requests)
	assert.Same(t, first.upgrades, second.upgrades)
}
