package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
)

var (
	roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/_-]+={0,2}$`)

	errPayloadType  = errors.New("payload must be a string")
	errPayloadEmpty = errors.New("payload is empty")
	errPayloadSize  = errors.New("payload too large")
	errPayloadShape = errors.New("payload is neither base64 nor JSON")
)

// DefaultMaxPayloadBytes bounds update and awareness payloads.
const DefaultMaxPayloadBytes = 512 * 1024

func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// validateBroadcastData is a cheap sanity filter for update and awareness
// payloads: a bounded string that looks like base64 or a JSON object/array.
func validateBroadcastData(raw json.RawMessage, maxBytes int) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return errPayloadType
	}
	if s == "" {
		return errPayloadEmpty
	}
	if len(s) > maxBytes {
		return errPayloadSize
	}
	if base64Pattern.MatchString(s) {
		return nil
	}
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return nil
	}
	return errPayloadShape
}
