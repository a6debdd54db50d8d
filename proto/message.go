package proto

import (
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Message is the unit of traffic between the browser runtime and the server.
// Payload stays raw so each message type can carry its own schema.
type Message struct {
	Type      string          `cbor:"type"`                // "event", "patch", "reload", "ping", "pong"
	Target    string          `cbor:"target,omitempty"`    // component or handler id the message is addressed to
	Payload   cbor.RawMessage `cbor:"payload,omitempty"`   // raw CBOR; schema depends on Type
	Timestamp int64           `cbor:"timestamp,omitempty"` // UNIX timestamp in milliseconds
}

// EventPayload is sent client -> server when a wired DOM handler fires.
type EventPayload struct {
	Handler string `cbor:"handler"` // exposed handler name, e.g. "increment"
	Args    []any  `cbor:"args,omitempty"`
}

// PatchOp is one DOM mutation. Chunk holds pre-rendered HTML as raw bytes so
// binary-safe content survives the wire untouched.
type PatchOp struct {
	Op     string `cbor:"op"` // "replace", "append", "remove", "attr"
	NodeID string `cbor:"node_id"`
	Name   string `cbor:"name,omitempty"`
	Chunk  []byte `cbor:"chunk,omitempty"`
}

// PatchPayload is sent server -> client after a state change re-renders.
type PatchPayload struct {
	Ops []PatchOp `cbor:"ops"`
}

// NewEvent builds an event message addressed to a component handler.
func NewEvent(target, handler string, args ...any) (Message, error) {
	payload, err := Marshal(EventPayload{Handler: handler, Args: args})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:      "event",
		Target:    target,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// NewPatch builds a patch message for a component.
func NewPatch(target string, ops []PatchOp) (Message, error) {
	payload, err := Marshal(PatchPayload{Ops: ops})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:      "patch",
		Target:    target,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// NewReload builds the dev-server reload broadcast message.
func NewReload() Message {
	return Message{Type: "reload", Timestamp: time.Now().UnixMilli()}
}
