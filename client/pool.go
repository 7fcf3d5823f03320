package client

import (
	"sync"

	"github.com/go-zoox/retry"
)

// MaxIdleDataChannels bounds how many unused data channels the pool
// keeps alive; a Return beyond this closes the channel instead.
const MaxIdleDataChannels = 100

// Pool is the client's FIFO cache of idle data channels, safe for
// concurrent Borrow/Return/Remove from many real-server flows at once.
type Pool struct {
	client *Client

	mu    sync.Mutex
	idle  []*dataChannel
	index map[*dataChannel]struct{}
}

func newPool(c *Client) *Pool {
	return &Pool{client: c, index: make(map[*dataChannel]struct{})}
}

// Borrow returns the head of the idle queue, or dials a fresh data
// channel if the pool is empty. Dialing is retried a few times since a
// freshly reconnected server may briefly refuse new connections.
func (p *Pool) Borrow() (*dataChannel, error) {
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		dc := p.idle[0]
		p.idle = p.idle[1:]
		delete(p.index, dc)
		p.mu.Unlock()
		return dc, nil
	}
	p.mu.Unlock()

	var dc *dataChannel
	err := retry.Retry(func() error {
		d, err := dialDataChannel(p.client)
		if err != nil {
			return err
		}
		dc = d
		return nil
	}, 3)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// Return hands a now-unbound data channel back to the pool, unless it
// is already at capacity, in which case the channel is closed.
func (p *Pool) Return(dc *dataChannel) {
	p.mu.Lock()
	if _, already := p.index[dc]; already {
		p.mu.Unlock()
		return
	}
	if len(p.idle) >= MaxIdleDataChannels {
		p.mu.Unlock()
		dc.close()
		return
	}

	p.idle = append(p.idle, dc)
	p.index[dc] = struct{}{}
	p.mu.Unlock()
}

// Remove drops dc from the idle set without closing it again; used when
// a channel has already died on its own.
func (p *Pool) Remove(dc *dataChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.index[dc]; !ok {
		return
	}
	delete(p.index, dc)
	for i, v := range p.idle {
		if v == dc {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
}

// Size reports the number of currently idle channels.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}
