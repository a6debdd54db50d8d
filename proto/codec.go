package proto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Messages travel as CBOR, never text JSON: patch chunks are raw bytes and
// must round-trip without base64 detours or UTF-8 mangling.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("proto: cbor enc mode: %v", err))
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("proto: cbor dec mode: %v", err))
	}
	encMode = em
	decMode = dm
}

// Encode serializes a message into a single wire frame.
func Encode(msg Message) ([]byte, error) {
	data, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode parses a single wire frame back into a message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// Marshal encodes an arbitrary payload value with the wire encoder.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes a raw payload into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
