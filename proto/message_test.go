package proto

import (
	"bytes"
	"io"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg, err := NewPatch("counter-1", []PatchOp{
		{Op: "replace", NodeID: "n1", Chunk: []byte("<span>42</span>")},
		{Op: "attr", NodeID: "n2", Name: "class", Chunk: []byte{0x00, 0xff, 0x80, 0x7f}},
		{Op: "remove", NodeID: "n3"},
	})
	if err != nil {
		t.Fatalf("NewPatch failed: %v", err)
	}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", got, msg)
	}

	var payload PatchPayload
	if err := Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("Unmarshal payload failed: %v", err)
	}

	if len(payload.Ops) != 3 {
		t.Fatalf("Expected 3 ops, got %d", len(payload.Ops))
	}

	if !bytes.Equal(payload.Ops[1].Chunk, []byte{0x00, 0xff, 0x80, 0x7f}) {
		t.Errorf("Binary chunk corrupted: %v", payload.Ops[1].Chunk)
	}
}

func TestEncodeIsNotJSON(t *testing.T) {
	msg := NewReload()

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(data) == 0 || data[0] == '{' {
		t.Errorf("Expected a CBOR frame, looks like JSON: %q", data)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x01}); err == nil {
		t.Error("Expected error decoding malformed frame")
	}
}

func TestEventPayload(t *testing.T) {
	msg, err := NewEvent("form-7", "submit", "hello", int64(3))
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}

	if msg.Type != "event" {
		t.Errorf("Expected type 'event', got %s", msg.Type)
	}

	var payload EventPayload
	if err := Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("Unmarshal payload failed: %v", err)
	}

	if payload.Handler != "submit" {
		t.Errorf("Expected handler 'submit', got %s", payload.Handler)
	}

	if len(payload.Args) != 2 {
		t.Errorf("Expected 2 args, got %d", len(payload.Args))
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	frames := [][]byte{
		[]byte("first"),
		{},
		bytes.Repeat([]byte{0xab}, 300),
	}

	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	for i, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Frame %d mismatch: got %v, want %v", i, got, want)
		}
	}

	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("Expected io.EOF after last frame, got %v", err)
	}
}
