package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_relay_ws_connections",
			Help: "Current number of open websocket connections.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_relay_ws_rooms",
			Help: "Current number of live rooms.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "canvas_relay_ws_messages_delivered_total",
			Help: "Total frames fanned out to room members.",
		},
	)
	wsRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "canvas_relay_ws_rate_limited_total",
			Help: "Connections closed for exceeding the message rate limit.",
		},
	)
	snapshotErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canvas_relay_snapshot_errors_total",
			Help: "Snapshot store operations that failed.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsMessagesDelivered, wsRateLimited, snapshotErrors)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}

func incRateLimited() {
	wsRateLimited.Inc()
}

func incSnapshotError(op string) {
	snapshotErrors.WithLabelValues(op).Inc()
}
