package relay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Action names the proxy-side operation a message requests.
type Action string

const (
	ActionKickPlayer       Action = "KICK_PLAYER"
	ActionBroadcast        Action = "BROADCAST"
	ActionInvalidatePlayer Action = "INVALIDATE_PLAYER"
)

// Known reports whether receivers understand the action.
func (a Action) Known() bool {
	switch a {
	case ActionKickPlayer, ActionBroadcast, ActionInvalidatePlayer:
		return true
	}
	return false
}

// maxPayload is the largest body the 2-byte length prefix can describe.
const maxPayload = 1<<16 - 1

// Message is a cross-process proxy instruction.
type Message struct {
	Action      Action `json:"action"`
	PlayerName  string `json:"playerName,omitempty"`
	KickMessage string `json:"kickMessage,omitempty"`
	Message     string `json:"message,omitempty"`
	UUID        string `json:"uuid,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

// Kick asks the proxy to disconnect playerName with reason text.
func Kick(playerName, kickMessage string) Message {
	return Message{Action: ActionKickPlayer, PlayerName: playerName, KickMessage: kickMessage}
}

// Broadcast asks the proxy to show text to every connected player.
func Broadcast(text string) Message {
	return Message{Action: ActionBroadcast, Message: text}
}

// Invalidate asks sibling nodes to drop cached punishment state for an identity.
func Invalidate(uuid string) Message {
	return Message{Action: ActionInvalidatePlayer, UUID: uuid}
}

// Encode renders m as a big-endian uint16 length prefix followed by UTF-8 JSON.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal relay message: %w", err)
	}
	if len(body) > maxPayload {
		return nil, fmt.Errorf("relay message too large: %d bytes", len(body))
	}
	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out, uint16(len(body)))
	copy(out[2:], body)
	return out, nil
}

// Decode parses a frame produced by Encode. Trailing bytes past the declared length are rejected.
func Decode(frame []byte) (Message, error) {
	var m Message
	if len(frame) < 2 {
		return m, fmt.Errorf("relay frame too short: %d bytes", len(frame))
	}
	n := int(binary.BigEndian.Uint16(frame))
	if len(frame)-2 != n {
		return m, fmt.Errorf("relay frame length mismatch: header %d, body %d", n, len(frame)-2)
	}
	if err := json.Unmarshal(frame[2:], &m); err != nil {
		return m, fmt.Errorf("unmarshal relay message: %w", err)
	}
	return m, nil
}
