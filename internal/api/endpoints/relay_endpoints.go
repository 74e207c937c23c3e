package endpoints

import (
	"errors"
	"net/http"

	"canvas-relay/internal/websocket"
)

type RelayEndpoints interface {
	Websocket(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
}

type RoomsRes struct {
	Count int                 `json:"count"`
	Rooms []websocket.RoomRes `json:"rooms"`
}

type relayEndpoints struct {
	relay *websocket.Relay
}

func NewRelayEndpoints(relay *websocket.Relay) RelayEndpoints {
	return &relayEndpoints{relay: relay}
}

func (h *relayEndpoints) Websocket(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleWebsocket,
	})
}

func (h *relayEndpoints) handleWebsocket(w http.ResponseWriter, r *http.Request) error {
	err := h.relay.ServeWS(w, r)
	if errors.Is(err, websocket.ErrShuttingDown) {
		return &HTTPError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "Server shutting down",
		}
	}
	return err
}

func (h *relayEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListRooms,
	})
}

func (h *relayEndpoints) handleListRooms(w http.ResponseWriter, r *http.Request) error {
	rooms := h.relay.Rooms()
	return WriteJSON(w, http.StatusOK, RoomsRes{Count: len(rooms), Rooms: rooms})
}
