// Package client implements the private-network daemon: it dials out to
// the server's control port, authenticates, and on each CONNECT request
// dials the real target and relays bytes back through a pooled data
// channel.
package client

import (
	"net"
	"sync"

	"github.com/go-zoox/gztun/idle"
	"github.com/go-zoox/gztun/protocol"
)

// framedConn is the shared plumbing behind both the control channel and
// every data channel: a TCP connection to the server carrying the
// tunnel's frame protocol, with idle tracking and a dispatch loop.
type framedConn struct {
	conn           net.Conn
	maxFrameLength int

	writeMu   sync.Mutex
	idleTimer *idle.Detector
	closeOnce sync.Once
	onClose   func()
}

func newFramedConn(conn net.Conn, maxFrameLength int, onWriteIdle func(), onClose func()) *framedConn {
	tuneTCP(conn)

	fc := &framedConn{conn: conn, maxFrameLength: maxFrameLength, onClose: onClose}
	fc.idleTimer = idle.New()
	fc.idleTimer.OnWriteIdle = onWriteIdle
	fc.idleTimer.OnReadIdle = fc.close
	return fc
}

func (fc *framedConn) writeFrame(frame *protocol.Frame) error {
	encoded, err := protocol.Encode(frame)
	if err != nil {
		return err
	}

	fc.writeMu.Lock()
	defer fc.writeMu.Unlock()
	_, err = fc.conn.Write(encoded)
	if err == nil {
		fc.idleTimer.MarkWrite()
	}
	return err
}

// serve runs the frame dispatch loop until the connection fails or
// dispatch asks to stop. It blocks; call it from its own goroutine.
func (fc *framedConn) serve(dispatch func(*protocol.Frame) bool) {
	fc.idleTimer.Start()
	defer fc.idleTimer.Stop()
	defer fc.close()

	decoder := protocol.NewDecoder(fc.maxFrameLength)
	buf := make([]byte, 64*1024)

	for {
		n, err := fc.conn.Read(buf)
		if n > 0 {
			fc.idleTimer.MarkRead()
			decoder.Feed(buf[:n])

			for {
				frame, ok, derr := decoder.Next()
				if derr != nil {
					return
				}
				if !ok {
					break
				}
				if !dispatch(frame) {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (fc *framedConn) close() {
	fc.closeOnce.Do(func() {
		fc.conn.Close()
		if fc.onClose != nil {
			fc.onClose()
		}
	})
}

func tuneTCP(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tcpConn.SetNoDelay(true)
	tcpConn.SetReadBuffer(1024 * 1024)
	tcpConn.SetWriteBuffer(1024 * 1024)
}
