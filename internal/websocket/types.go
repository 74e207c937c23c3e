package websocket

import (
	"encoding/json"
	"time"
)

// Inbound message types.
const (
	TypeAuth         = "auth"
	TypeCreate       = "create"
	TypeJoin         = "join"
	TypeUpdate       = "update"
	TypeAwareness    = "awareness"
	TypeRoomSettings = "room_settings"
	TypeSnapshot     = "snapshot"
	TypeCloseRoom    = "close_room"
)

// Outbound-only message types.
const (
	TypeJoined     = "joined"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"
	TypeRoomClosed = "room_closed"
	TypeError      = "error"
)

// Close codes and reasons sent on the websocket close frame.
const (
	CodeAuthRequired = 4001
	CodeBadSecret    = 4003
	CodeRateLimited  = 4029
	CodeRoomClosed   = 1000
	CodeShutdown     = 1001

	TextAuthRequired = "Authentication required"
	TextBadSecret    = "Invalid key"
	TextRateLimited  = "Rate limit exceeded"
	TextRoomClosed   = "Room closed by host"
	TextShutdown     = "Server shutting down"
)

// Room close reasons carried in room_closed.
const (
	ReasonHostEnded = "host_ended"
	ReasonShutdown  = "server_shutdown"
)

type InboundMessage struct {
	Type     string          `json:"type"`
	Key      string          `json:"key,omitempty"`
	RoomID   string          `json:"roomId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type AuthReply struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type JoinedMessage struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Clients int    `json:"clients"`
	IsHost  bool   `json:"isHost"`
}

type PeerMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	Clients  int    `json:"clients"`
}

type RelayMessage struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type SnapshotMessage struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Settings json.RawMessage `json:"settings"`
}

type RoomClosedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type RoomRes struct {
	ID           string    `json:"id"`
	Clients      int       `json:"clients"`
	LastActivity time.Time `json:"lastActivity"`
}
