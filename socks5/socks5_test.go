package socks5

import "testing"

func TestHandshakeRejectsNoAuthOnly(t *testing.T) {
	msg, consumed, err := ParseMethodSelection([]byte{0x05, 0x01, 0x00})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != 3 {
		t.Fatalf("expected 3 bytes consumed, got %d", consumed)
	}
	if msg.Supports(MethodUsernamePassword) {
		t.Fatalf("expected no-auth-only selection to not support username/password")
	}
}

func TestHandshakeAcceptsUsernamePassword(t *testing.T) {
	msg, _, err := ParseMethodSelection([]byte{0x05, 0x01, 0x02})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.Supports(MethodUsernamePassword) {
		t.Fatalf("expected selection to support username/password")
	}
}

func TestHandshakeShortBuffer(t *testing.T) {
	if _, _, err := ParseMethodSelection([]byte{0x05}); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	if _, _, err := ParseMethodSelection([]byte{0x05, 0x02, 0x00}); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer for incomplete methods list, got %v", err)
	}
}

func TestUsernamePasswordAuthRoundTrip(t *testing.T) {
	raw := []byte{0x01, 6, 'Z', 'C', '-', 'A', 'B', 'C', 5, '1', '1', '1', '1', '1'}
	auth, consumed, err := ParseUsernamePasswordAuth(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(raw) {
		t.Fatalf("expected %d bytes consumed, got %d", len(raw), consumed)
	}
	if auth.Username != "ZC-ABC" {
		t.Fatalf("expected username ZC-ABC, got %q", auth.Username)
	}
	if auth.Password != "11111" {
		t.Fatalf("expected password 11111, got %q", auth.Password)
	}
}

func TestConnectRequestIPv4(t *testing.T) {
	raw := []byte{0x05, CmdConnect, 0x00, ATypIPv4, 0x7F, 0x00, 0x00, 0x01, 0x00, 0x50}
	req, consumed, err := ParseConnectRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(raw) {
		t.Fatalf("expected %d bytes consumed, got %d", len(raw), consumed)
	}
	if req.Host != "127.0.0.1" || req.Port != 80 {
		t.Fatalf("expected 127.0.0.1:80, got %s:%d", req.Host, req.Port)
	}
}

func TestConnectRequestDomain(t *testing.T) {
	domain := "example.com"
	raw := append([]byte{0x05, CmdConnect, 0x00, ATypDomain, byte(len(domain))}, []byte(domain)...)
	raw = append(raw, 0x01, 0xBB)

	req, consumed, err := ParseConnectRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if consumed != len(raw) {
		t.Fatalf("expected %d bytes consumed, got %d", len(raw), consumed)
	}
	if req.Host != domain || req.Port != 443 {
		t.Fatalf("expected %s:443, got %s:%d", domain, req.Host, req.Port)
	}
}

func TestConnectRequestUnsupportedATyp(t *testing.T) {
	raw := []byte{0x05, CmdConnect, 0x00, 0x99}
	_, _, err := ParseConnectRequest(raw)
	uerr, ok := err.(*UnsupportedATypError)
	if !ok {
		t.Fatalf("expected *UnsupportedATypError, got %v", err)
	}
	if uerr.ATyp != 0x99 {
		t.Fatalf("expected atyp 0x99, got %#x", uerr.ATyp)
	}
}

func TestConnectRequestShortBufferDoesNotPanic(t *testing.T) {
	domain := "example.com"
	raw := append([]byte{0x05, CmdConnect, 0x00, ATypDomain, byte(len(domain))}, []byte(domain)...)
	short := raw[:len(raw)-1]

	if _, _, err := ParseConnectRequest(short); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestEncodeConnectReplyBindsZeroAddress(t *testing.T) {
	reply := EncodeConnectReply(ReplySucceeded)
	want := []byte{0x05, 0x00, 0x00, ATypIPv4, 0, 0, 0, 0, 0, 0}
	if len(reply) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(reply))
	}
	for i := range want {
		if reply[i] != want[i] {
			t.Fatalf("byte %d: expected %#x, got %#x", i, want[i], reply[i])
		}
	}
}
