package client

import (
	"net"
	"sync"

	"github.com/go-zoox/gztun/protocol"
)

// realServerChannel is the client-side TCP connection to the actual
// target inside the private network, bound 1:1 to a data channel for
// the lifetime of one user flow.
type realServerChannel struct {
	conn   net.Conn
	userID string
	dc     *dataChannel
	client *Client

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newRealServerChannel(conn net.Conn, userID string, dc *dataChannel, c *Client) *realServerChannel {
	tuneTCP(conn)
	return &realServerChannel{conn: conn, userID: userID, dc: dc, client: c}
}

func (r *realServerChannel) writeRaw(b []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_, err := r.conn.Write(b)
	return err
}

// readLoop pumps bytes from the real target into TRANSFER frames on the
// bound data channel until the target closes or the channel fails, then
// reports DISCONNECT and returns the data channel to the pool.
func (r *realServerChannel) readLoop() {
	defer r.finish()

	buf := make([]byte, 32*1024)
	for {
		n, err := r.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if werr := r.dc.writeFrame(&protocol.Frame{Type: protocol.TypeTransfer, Uri: r.userID, Data: chunk}); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// finish runs when the real target's connection ends on its own: tell
// the server, then give the data channel back to the pool.
func (r *realServerChannel) finish() {
	r.closeOnce.Do(func() {
		r.client.realServers.Remove(r.userID)
		r.dc.writeFrame(&protocol.Frame{Type: protocol.TypeDisconnect, Uri: r.userID})
		r.conn.Close()

		dc := r.dc
		dc.unbind()
		r.client.pool.Return(dc)
	})
}

// closeWithoutNotify is used when the server side has already told us
// the flow is over (DISCONNECT received, or the data channel itself
// died): there is nothing left to report.
func (r *realServerChannel) closeWithoutNotify() {
	r.closeOnce.Do(func() {
		r.client.realServers.Remove(r.userID)
		r.conn.Close()
	})
}

func (r *realServerChannel) close() {
	r.closeWithoutNotify()
}
