package client

import (
	"net"
	"testing"
)

func newTestDataChannel(t *testing.T, c *Client) *dataChannel {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() { serverSide.Close() })

	dc := &dataChannel{client: c}
	dc.framedConn = newFramedConn(clientSide, 0, func() {}, func() {})
	return dc
}

func TestPoolReturnThenBorrowReusesChannel(t *testing.T) {
	c := &Client{}
	p := newPool(c)
	c.pool = p

	dc := newTestDataChannel(t, c)
	p.Return(dc)

	if p.Size() != 1 {
		t.Fatalf("expected pool size 1, got %d", p.Size())
	}

	p.mu.Lock()
	got := p.idle[0]
	p.mu.Unlock()
	if got != dc {
		t.Fatalf("expected the returned channel to be the one in the pool")
	}
}

func TestPoolReturnAtCapacityCloses(t *testing.T) {
	c := &Client{}
	p := newPool(c)
	c.pool = p

	for i := 0; i < MaxIdleDataChannels; i++ {
		p.Return(newTestDataChannel(t, c))
	}
	if p.Size() != MaxIdleDataChannels {
		t.Fatalf("expected pool at capacity %d, got %d", MaxIdleDataChannels, p.Size())
	}

	extra := newTestDataChannel(t, c)
	p.Return(extra)

	if p.Size() != MaxIdleDataChannels {
		t.Fatalf("expected pool to remain at capacity %d, got %d", MaxIdleDataChannels, p.Size())
	}
}

func TestPoolRemoveDropsSpecificChannel(t *testing.T) {
	c := &Client{}
	p := newPool(c)
	c.pool = p

	a := newTestDataChannel(t, c)
	b := newTestDataChannel(t, c)
	p.Return(a)
	p.Return(b)

	p.Remove(a)
	if p.Size() != 1 {
		t.Fatalf("expected pool size 1 after Remove, got %d", p.Size())
	}

	p.mu.Lock()
	remaining := p.idle[0]
	p.mu.Unlock()
	if remaining != b {
		t.Fatalf("expected remaining channel to be b")
	}
}
