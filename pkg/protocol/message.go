package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType is the Host→Guest message discriminator.
type MessageType uint8

const (
	MsgCallFunction MessageType = iota + 1 // Invoke a registered callback
	MsgHostEvent                           // Deliver a host event
	MsgConfigUpdate                        // Merge a config partial
	MsgDestroy                             // Tear the guest down
)

// String returns the wire tag for the message type.
func (mt MessageType) String() string {
	switch mt {
	case MsgCallFunction:
		return "CALL_FUNCTION"
	case MsgHostEvent:
		return "HOST_EVENT"
	case MsgConfigUpdate:
		return "CONFIG_UPDATE"
	case MsgDestroy:
		return "DESTROY"
	default:
		return "UNKNOWN"
	}
}

// ParseMessageType maps a wire tag back to its message type.
func ParseMessageType(s string) (MessageType, bool) {
	switch s {
	case "CALL_FUNCTION":
		return MsgCallFunction, true
	case "HOST_EVENT":
		return MsgHostEvent, true
	case "CONFIG_UPDATE":
		return MsgConfigUpdate, true
	case "DESTROY":
		return MsgDestroy, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes the message type as its wire tag.
func (mt MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(mt.String())
}

// UnmarshalJSON decodes the message type from its wire tag.
func (mt *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseMessageType(s)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, s)
	}
	*mt = parsed
	return nil
}

// HostMessage is the tagged union delivered from Host to Guest.
// Populated fields depend on Type:
//
//	CALL_FUNCTION  FnID, Args
//	HOST_EVENT     EventName, Payload
//	CONFIG_UPDATE  Config
//	DESTROY        (no fields)
type HostMessage struct {
	Type      MessageType    `json:"type"`
	FnID      string         `json:"fnId,omitempty"`
	Args      []any          `json:"args,omitempty"`
	EventName string         `json:"eventName,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// CallFunction builds a CALL_FUNCTION message.
func CallFunction(fnID string, args []any) HostMessage {
	return HostMessage{Type: MsgCallFunction, FnID: fnID, Args: args}
}

// HostEvent builds a HOST_EVENT message.
func HostEvent(name string, payload any) HostMessage {
	return HostMessage{Type: MsgHostEvent, EventName: name, Payload: payload}
}

// ConfigUpdate builds a CONFIG_UPDATE message.
func ConfigUpdate(config map[string]any) HostMessage {
	return HostMessage{Type: MsgConfigUpdate, Config: config}
}

// Destroy builds a DESTROY message.
func Destroy() HostMessage {
	return HostMessage{Type: MsgDestroy}
}

// GuestEvent is a Guest→Host event delivered via the event channel.
type GuestEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}
