// Package server implements the publicly reachable daemon: it accepts
// client control/data connections on one TCP listener and external SOCKS5
// users on another, and routes frames between them per the tunnel's
// four-way binding model.
package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-zoox/gztun/idle"
	"github.com/go-zoox/gztun/protocol"
	"github.com/go-zoox/gztun/registry"
	"github.com/go-zoox/logger"
)

// role identifies what a client-facing connection has turned into after
// its first frame. It starts unknown and is fixed forever after that.
type role int32

const (
	roleUnknown role = iota
	roleControl
	roleData
)

// clientChannel is any TCP connection dialed in by a client daemon. It
// starts with role unknown; its first frame decides whether it becomes
// the client's control channel (AUTH) or one of its data channels
// (CONNECT-ack). Modeling both as the same type mirrors the wire
// protocol's own "thisChannel" framing: HEARTBEAT and DISCONNECT are
// handled the same way for both roles, while TRANSFER is routed by its
// userId on a control channel and to the bound user channel on a data
// channel.
type clientChannel struct {
	conn   net.Conn
	server *Server

	role      atomic.Int32
	clientKey string

	// set once role becomes roleControl.
	userChannels *registry.Map[*userChannel]

	// set once role becomes roleData.
	userID string
	bound  *userChannel

	writeMu   sync.Mutex
	idle      *idle.Detector
	decoder   *protocol.Decoder
	closeOnce sync.Once
}

func newClientChannel(conn net.Conn, s *Server) *clientChannel {
	tuneTCP(conn)

	c := &clientChannel{conn: conn, server: s}
	c.decoder = protocol.NewDecoder(protocol.MaxControlFrameLength)
	c.idle = idle.New()
	c.idle.OnReadIdle = func() {
		logger.Info("[server][%s] read idle, closing", conn.RemoteAddr())
		c.close()
	}
	return c
}

func (c *clientChannel) serve() {
	c.idle.Start()
	defer c.idle.Stop()
	defer c.close()

	buf := make([]byte, 64*1024)

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.idle.MarkRead()
			c.decoder.Feed(buf[:n])

			for {
				frame, ok, derr := c.decoder.Next()
				if derr != nil {
					logger.Warn("[server][%s] frame decode error: %v", c.conn.RemoteAddr(), derr)
					return
				}
				if !ok {
					break
				}
				if !c.dispatch(frame) {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *clientChannel) dispatch(frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.TypeHeartbeat:
		c.writeFrame(&protocol.Frame{Type: protocol.TypeHeartbeat, SerialNumber: frame.SerialNumber})
		return true

	case protocol.TypeAuth:
		return c.handleAuth(frame)

	case protocol.TypeConnect:
		return c.handleConnectAck(frame)

	case protocol.TypeDisconnect:
		c.handleDisconnect(frame)
		return false

	case protocol.TypeTransfer:
		c.handleTransfer(frame)
		return true

	default:
		logger.Warn("[server][%s] unknown frame type %s", c.conn.RemoteAddr(), frame.Type)
		return false
	}
}

func (c *clientChannel) writeFrame(frame *protocol.Frame) error {
	encoded, err := protocol.Encode(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(encoded)
	if err == nil {
		c.idle.MarkWrite()
	}
	return err
}

// handleAuth turns this connection into the client's control channel.
// uri = clientKey.
func (c *clientChannel) handleAuth(frame *protocol.Frame) bool {
	if role(c.role.Load()) != roleUnknown {
		logger.Warn("[server][%s] AUTH on an already-typed channel", c.conn.RemoteAddr())
		return false
	}

	clientKey := frame.Uri
	if c.server.requireKeyPrefix && !hasClientKeyPrefix(clientKey) {
		logger.Warn("[server][%s] rejected clientKey without required prefix: %s", c.conn.RemoteAddr(), clientKey)
		return false
	}

	c.clientKey = clientKey
	c.userChannels = registry.New[*userChannel]()

	if !c.server.clients.SetIfAbsent(clientKey, c) {
		logger.Warn("[server][%s] duplicate clientKey %s, rejecting", c.conn.RemoteAddr(), clientKey)
		return false
	}

	c.role.Store(int32(roleControl))
	logger.Info("[server][%s] control channel authenticated as %s", c.conn.RemoteAddr(), clientKey)
	return true
}

// handleConnectAck turns this connection into a data channel bound to
// the user channel named by uri = "userId@clientKey".
func (c *clientChannel) handleConnectAck(frame *protocol.Frame) bool {
	if role(c.role.Load()) != roleUnknown {
		logger.Warn("[server][%s] unexpected CONNECT on a typed channel", c.conn.RemoteAddr())
		return false
	}

	userID, clientKey, ok := splitUserAtClientKey(frame.Uri)
	if !ok {
		logger.Warn("[server][%s] malformed CONNECT-ack uri %q", c.conn.RemoteAddr(), frame.Uri)
		return false
	}

	control, ok := c.server.clients.Get(clientKey)
	if !ok {
		logger.Warn("[server][%s] CONNECT-ack for unknown clientKey %s", c.conn.RemoteAddr(), clientKey)
		return false
	}

	uc, ok := control.userChannels.Get(userID)
	if !ok {
		logger.Warn("[server][%s] CONNECT-ack for unknown userId %s", c.conn.RemoteAddr(), userID)
		return false
	}

	c.clientKey = clientKey
	c.userID = userID
	c.bound = uc
	c.decoder.SetMaxFrameLength(protocol.MaxDataFrameLength)
	c.role.Store(int32(roleData))

	uc.bind(c)
	return true
}

// handleDisconnect removes and closes the named user channel; dispatch
// then returns false, so serve closes this connection. The
// close-thisChannel-too behavior is the
// server's own, regardless of whether this is the control channel or a
// data channel; see DESIGN.md for why that's kept rather than "fixed".
func (c *clientChannel) handleDisconnect(frame *protocol.Frame) {
	userID := frame.Uri

	control := c.controlChannel()
	if control == nil {
		return
	}

	lock := c.server.userLocks.Lock(control.clientKey + "/" + userID)
	uc, ok := control.userChannels.Remove(userID)
	lock.Unlock()

	if ok {
		uc.closeSilently()
	}
}

func (c *clientChannel) handleTransfer(frame *protocol.Frame) {
	switch role(c.role.Load()) {
	case roleControl:
		uc, ok := c.userChannels.Get(frame.Uri)
		if !ok {
			logger.Warn("[server][%s] TRANSFER for unknown userId %s", c.conn.RemoteAddr(), frame.Uri)
			return
		}
		uc.writeRaw(frame.Data)
	case roleData:
		if c.bound == nil {
			logger.Warn("[server][%s] TRANSFER on unbound data channel", c.conn.RemoteAddr())
			return
		}
		c.bound.writeRaw(frame.Data)
	default:
		logger.Warn("[server][%s] TRANSFER before AUTH/CONNECT", c.conn.RemoteAddr())
	}
}

// controlChannel resolves the control channel this connection's frames
// should be interpreted against: itself if it is the control channel,
// otherwise the registered owner of its clientKey.
func (c *clientChannel) controlChannel() *clientChannel {
	if role(c.role.Load()) == roleControl {
		return c
	}
	if c.clientKey == "" {
		return nil
	}
	control, ok := c.server.clients.Get(c.clientKey)
	if !ok {
		return nil
	}
	return control
}

func (c *clientChannel) close() {
	c.closeOnce.Do(func() {
		switch role(c.role.Load()) {
		case roleControl:
			if stored, ok := c.server.clients.Get(c.clientKey); ok && stored == c {
				c.server.clients.Remove(c.clientKey)
			}
			c.userChannels.Range(func(_ string, uc *userChannel) {
				uc.closeSilently()
			})
			logger.Info("[server][%s] control channel %s closed", c.conn.RemoteAddr(), c.clientKey)

		case roleData:
			if c.bound != nil {
				c.bound.unbindAndClose()
			}
		}

		c.conn.Close()
	})
}

func hasClientKeyPrefix(key string) bool {
	const prefix = "ZC-"
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}

// splitUserAtClientKey parses "userId@clientKey".
func splitUserAtClientKey(uri string) (userID, clientKey string, ok bool) {
	for i := 0; i < len(uri); i++ {
		if uri[i] == '@' {
			return uri[:i], uri[i+1:], true
		}
	}
	return "", "", false
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
