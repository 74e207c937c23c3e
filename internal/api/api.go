package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"canvas-relay/internal/queue"
	"canvas-relay/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	relay               *websocket.Relay
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
	server              *http.Server
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, relay *websocket.Relay, registrars ...RouteRegistrar) *APIServer {
	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		relay:               relay,
		routeRegistrars:     registrars,
		metrics:             newMetrics(prometheus.DefaultRegisterer),
	}
}

// Handler builds the instrumented mux with every registered route.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	return s.metrics.instrument(mux)
}

// Run serves until Shutdown is called. A clean shutdown returns nil.
func (s *APIServer) Run() error {
	s.server = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	zap.L().Info("server listening", zap.String("addr", s.listenAddr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections. Hijacked websocket connections are
// not tracked by http.Server and must be closed by the relay first.
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *APIServer) Relay() *websocket.Relay {
	return s.relay
}
