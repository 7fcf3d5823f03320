package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame := &Frame{
		Type:         TypeTransfer,
		SerialNumber: 42,
		Uri:          "user0001",
		Data:         []byte("hello zero"),
	}

	encoded, err := Encode(frame)
	if err != nil {
		t.Fatalf("failed to encode %s", err)
	}

	decoded, consumed, err := Decode(encoded, MaxControlFrameLength)
	if err != nil {
		t.Fatalf("failed to decode %s", err)
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed not match, expect %d, but got %d", len(encoded), consumed)
	}

	if decoded.Type != frame.Type {
		t.Fatalf("Type not match, expect %d, but got %d", frame.Type, decoded.Type)
	}
	if decoded.SerialNumber != frame.SerialNumber {
		t.Fatalf("SerialNumber not match, expect %d, but got %d", frame.SerialNumber, decoded.SerialNumber)
	}
	if decoded.Uri != frame.Uri {
		t.Fatalf("Uri not match, expect %s, but got %s", frame.Uri, decoded.Uri)
	}
	if !bytes.Equal(decoded.Data, frame.Data) {
		t.Fatalf("Data not match, expect %v, but got %v", frame.Data, decoded.Data)
	}
}

func TestEncodeDecodeEmptyUriAndData(t *testing.T) {
	frame := &Frame{Type: TypeHeartbeat, SerialNumber: 7}

	encoded, err := Encode(frame)
	if err != nil {
		t.Fatalf("failed to encode %s", err)
	}

	decoded, _, err := Decode(encoded, MaxControlFrameLength)
	if err != nil {
		t.Fatalf("failed to decode %s", err)
	}
	if decoded.Uri != "" {
		t.Fatalf("expect empty uri, got %q", decoded.Uri)
	}
	if len(decoded.Data) != 0 {
		t.Fatalf("expect empty data, got %v", decoded.Data)
	}
}

func TestConcatenatedFramesDecodeInOrder(t *testing.T) {
	frames := []*Frame{
		{Type: TypeAuth, Uri: "ZC-ABC"},
		{Type: TypeConnect, Uri: "u1:127.0.0.1:80"},
		{Type: TypeTransfer, Uri: "u1", Data: []byte("payload")},
	}

	var stream []byte
	for _, f := range frames {
		encoded, err := Encode(f)
		if err != nil {
			t.Fatalf("failed to encode %s", err)
		}
		stream = append(stream, encoded...)
	}

	d := NewDecoder(MaxControlFrameLength)
	d.Feed(stream)

	for i, want := range frames {
		got, ok, err := d.Next()
		if err != nil {
			t.Fatalf("frame %d: decode error %v", i, err)
		}
		if !ok {
			t.Fatalf("frame %d: expected a complete frame", i)
		}
		if got.Type != want.Type || got.Uri != want.Uri || !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("frame %d mismatch: got %+v, want %+v", i, got, want)
		}
	}

	if _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("expected no more frames, got ok=%v err=%v", ok, err)
	}
}

func TestDecodeShortBufferDoesNotConsume(t *testing.T) {
	frame := &Frame{Type: TypeHeartbeat, Uri: "x", Data: []byte("y")}
	encoded, err := Encode(frame)
	if err != nil {
		t.Fatalf("failed to encode %s", err)
	}

	short := encoded[:len(encoded)-1]
	_, consumed, err := Decode(short, MaxControlFrameLength)
	if err != ErrShortBuffer {
		t.Fatalf("expect ErrShortBuffer, got %v", err)
	}
	if consumed != 0 {
		t.Fatalf("expect 0 bytes consumed, got %d", consumed)
	}
}

func TestEncodeRejectsOversizedUri(t *testing.T) {
	frame := &Frame{Type: TypeConnect, Uri: strings.Repeat("a", MaxURILen+1)}
	if _, err := Encode(frame); err == nil {
		t.Fatalf("expect error encoding a %d-byte uri", MaxURILen+1)
	}
}

func TestEncodeAcceptsMaxUriLength(t *testing.T) {
	frame := &Frame{Type: TypeConnect, Uri: strings.Repeat("a", MaxURILen)}
	encoded, err := Encode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, _, err := Decode(encoded, MaxControlFrameLength)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded.Uri) != MaxURILen {
		t.Fatalf("expect uri length %d, got %d", MaxURILen, len(decoded.Uri))
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	frame := &Frame{Type: TypeTransfer, Data: make([]byte, MaxDataFrameLength+1)}
	encoded, err := Encode(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := Decode(encoded, MaxDataFrameLength); err != ErrFrameTooLarge {
		t.Fatalf("expect ErrFrameTooLarge, got %v", err)
	}
}
