package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-zoox/gztun/protocol"
	"github.com/go-zoox/logger"
)

// controlChannel is the client's single persistent outbound connection.
// Its lifetime is owned by Client's reconnect loop: once it dies, the
// loop dials a fresh one.
type controlChannel struct {
	*framedConn
	client *Client
}

func dialControlChannel(c *Client) (*controlChannel, error) {
	conn, err := net.Dial("tcp", c.cfg.Addr())
	if err != nil {
		return nil, err
	}

	cc := &controlChannel{client: c}
	cc.framedConn = newFramedConn(conn, protocol.MaxControlFrameLength, cc.sendHeartbeat, c.onControlClosed)

	if err := cc.writeFrame(&protocol.Frame{Type: protocol.TypeAuth, Uri: c.clientKey}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("client: failed to send AUTH: %v", err)
	}

	return cc, nil
}

func (cc *controlChannel) sendHeartbeat() {
	if err := cc.writeFrame(&protocol.Frame{Type: protocol.TypeHeartbeat}); err != nil {
		logger.Warn("[client] heartbeat failed, closing control channel: %v", err)
		cc.close()
	}
}

func (cc *controlChannel) dispatch(frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.TypeHeartbeat:
		return true

	case protocol.TypeConnect:
		cc.handleConnect(frame)
		return true

	case protocol.TypeDisconnect:
		cc.client.handleDisconnect(frame.Uri)
		return true

	default:
		logger.Warn("[client] unexpected frame %s on control channel", frame.Type)
		return true
	}
}

// handleConnect parses "userId:host:port", dials the real target and,
// on success, binds a pooled data channel to it; on failure it reports
// back over the control channel per the wire protocol.
func (cc *controlChannel) handleConnect(frame *protocol.Frame) {
	userID, host, port, ok := splitConnectURI(frame.Uri)
	if !ok {
		logger.Warn("[client] malformed CONNECT uri %q", frame.Uri)
		return
	}

	target := net.JoinHostPort(host, port)
	realConn, err := net.Dial("tcp", target)
	if err != nil {
		logger.Warn("[client] failed to dial real server %s for user %s: %v", target, userID, err)
		cc.reportFailure(userID)
		return
	}

	dc, err := cc.client.pool.Borrow()
	if err != nil {
		logger.Warn("[client] failed to borrow data channel for user %s: %v", userID, err)
		realConn.Close()
		cc.reportFailure(userID)
		return
	}

	real := newRealServerChannel(realConn, userID, dc, cc.client)
	dc.bindReal(real)
	cc.client.realServers.Set(userID, real)

	if err := dc.writeFrame(&protocol.Frame{Type: protocol.TypeConnect, Uri: userID + "@" + cc.client.clientKey}); err != nil {
		logger.Warn("[client] failed to send CONNECT-ack for user %s: %v", userID, err)
		real.closeWithoutNotify()
		cc.client.realServers.Remove(userID)
		cc.reportFailure(userID)
		return
	}

	go real.readLoop()
}

func (cc *controlChannel) reportFailure(userID string) {
	if err := cc.writeFrame(&protocol.Frame{Type: protocol.TypeDisconnect, Uri: userID}); err != nil {
		logger.Warn("[client] failed to report dial failure for user %s: %v", userID, err)
	}
}

func splitConnectURI(uri string) (userID, host, port string, ok bool) {
	first := strings.IndexByte(uri, ':')
	if first < 0 {
		return "", "", "", false
	}
	userID = uri[:first]
	rest := uri[first+1:]

	last := strings.LastIndexByte(rest, ':')
	if last < 0 {
		return "", "", "", false
	}
	host = rest[:last]
	port = rest[last+1:]
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", "", false
	}
	return userID, host, port, true
}
