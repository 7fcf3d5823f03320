package server

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/go-zoox/gztun/idgen"
	"github.com/go-zoox/gztun/protocol"
	"github.com/go-zoox/gztun/socks5"
	"github.com/go-zoox/logger"
)

type socksState int

const (
	stateHandshake socksState = iota
	stateAuth
	stateReadyNotConnected
	stateReadyConnected
)

// userChannel is the server-side end of one external SOCKS5 user's TCP
// connection. It runs the SOCKS5 handshake/auth/connect state machine
// itself, then becomes a plain byte pipe once bound to a data channel.
type userChannel struct {
	conn   net.Conn
	server *Server

	state     socksState
	clientKey string
	userID    string
	control   *clientChannel

	next *clientChannel // bound data channel; nil until the client's CONNECT-ack arrives

	writeMu    sync.Mutex
	closeOnce  sync.Once
	bindSignal chan struct{}
	bindOnce   sync.Once
}

func newUserChannel(conn net.Conn, s *Server) *userChannel {
	tuneTCP(conn)
	return &userChannel{
		conn:       conn,
		server:     s,
		bindSignal: make(chan struct{}),
	}
}

func (uc *userChannel) serve() {
	defer uc.close()

	reader := newBufferedReader(uc.conn)

	if !uc.handshake(reader) {
		return
	}
	if !uc.authenticate(reader) {
		return
	}
	if !uc.handleConnect(reader) {
		return
	}

	uc.forward(reader)
}

func (uc *userChannel) handshake(r *bufferedReader) bool {
	for {
		msg, _, err := socks5.ParseMethodSelection(r.Peek())
		if err == socks5.ErrShortBuffer {
			if !r.fill() {
				return false
			}
			continue
		}
		if err != nil {
			logger.Warn("[server][%s] bad handshake: %v", uc.conn.RemoteAddr(), err)
			return false
		}

		consumed := 0
		_, consumed, _ = socks5.ParseMethodSelection(r.Peek())
		r.Advance(consumed)

		if !msg.Supports(socks5.MethodUsernamePassword) {
			uc.writeRaw(socks5.EncodeMethodReply(socks5.MethodNoAcceptable))
			return false
		}

		if err := uc.writeRaw(socks5.EncodeMethodReply(socks5.MethodUsernamePassword)); err != nil {
			return false
		}
		uc.state = stateAuth
		return true
	}
}

func (uc *userChannel) authenticate(r *bufferedReader) bool {
	for {
		auth, consumed, err := socks5.ParseUsernamePasswordAuth(r.Peek())
		if err == socks5.ErrShortBuffer {
			if !r.fill() {
				return false
			}
			continue
		}
		if err != nil {
			logger.Warn("[server][%s] bad auth: %v", uc.conn.RemoteAddr(), err)
			return false
		}
		r.Advance(consumed)

		control, ok := uc.server.clients.Get(auth.Username)
		if !ok || auth.Password != uc.server.cfg.Socks.Password {
			uc.writeRaw(socks5.EncodeAuthReply(socks5.AuthFailure))
			return false
		}

		userID, err := idgen.NewUserID()
		if err != nil {
			logger.Error("[server][%s] failed to generate userId: %v", uc.conn.RemoteAddr(), err)
			uc.writeRaw(socks5.EncodeAuthReply(socks5.AuthFailure))
			return false
		}

		uc.clientKey = auth.Username
		uc.userID = userID
		uc.control = control

		// Registered before the success reply is written, so nothing can
		// observe this userId before the reply has gone out.
		control.userChannels.Set(userID, uc)

		if err := uc.writeRaw(socks5.EncodeAuthReply(socks5.AuthSuccess)); err != nil {
			return false
		}
		uc.state = stateReadyNotConnected
		return true
	}
}

func (uc *userChannel) handleConnect(r *bufferedReader) bool {
	for {
		req, consumed, err := socks5.ParseConnectRequest(r.Peek())
		if err == socks5.ErrShortBuffer {
			if !r.fill() {
				return false
			}
			continue
		}
		if uerr, ok := err.(*socks5.UnsupportedATypError); ok {
			logger.Warn("[server][%s] %v", uc.conn.RemoteAddr(), uerr)
			uc.writeRaw(socks5.EncodeConnectReply(socks5.ReplyAddressNotSupported))
			return false
		}
		if err != nil {
			logger.Warn("[server][%s] bad connect request: %v", uc.conn.RemoteAddr(), err)
			return false
		}
		r.Advance(consumed)

		if req.Command != socks5.CmdConnect {
			uc.writeRaw(socks5.EncodeConnectReply(socks5.ReplyCommandNotSupported))
			return false
		}

		connectURI := fmt.Sprintf("%s:%s:%s", uc.userID, req.Host, strconv.Itoa(int(req.Port)))
		if err := uc.control.writeFrame(&protocol.Frame{Type: protocol.TypeConnect, Uri: connectURI}); err != nil {
			logger.Warn("[server][%s] failed to forward CONNECT to client: %v", uc.conn.RemoteAddr(), err)
			return false
		}

		if err := uc.writeRaw(socks5.EncodeConnectReply(socks5.ReplySucceeded)); err != nil {
			return false
		}
		uc.state = stateReadyConnected

		// Auto-read is effectively suspended here: we don't touch the
		// socket again until the client's CONNECT-ack binds a data
		// channel to us.
		<-uc.bindSignal
		return uc.next != nil
	}
}

func (uc *userChannel) forward(r *bufferedReader) {
	for {
		chunk, err := r.ReadChunk()
		if err != nil {
			return
		}
		if len(chunk) == 0 {
			continue
		}
		if err := uc.next.writeFrame(&protocol.Frame{Type: protocol.TypeTransfer, Uri: uc.userID, Data: chunk}); err != nil {
			return
		}
	}
}

// bind attaches a data channel once the client's CONNECT-ack arrives.
func (uc *userChannel) bind(dc *clientChannel) {
	uc.next = dc
	uc.bindOnce.Do(func() { close(uc.bindSignal) })
}

// writeRaw delivers bytes coming from the bound data channel straight to
// the external SOCKS5 user's socket.
func (uc *userChannel) writeRaw(b []byte) error {
	uc.writeMu.Lock()
	defer uc.writeMu.Unlock()
	_, err := uc.conn.Write(b)
	return err
}

// unbindAndClose is called by a dying data channel on its bound user
// channel: the data channel is already gone, so there is nothing left
// to notify, just tear down.
func (uc *userChannel) unbindAndClose() {
	uc.next = nil
	uc.close()
}

// closeSilently is used when this user channel is being removed as part
// of tearing down its owning control channel, or in response to an
// explicit DISCONNECT frame: no further frame needs to be sent, the
// caller already knows.
func (uc *userChannel) closeSilently() {
	uc.next = nil
	uc.close()
}

func (uc *userChannel) close() {
	uc.closeOnce.Do(func() {
		uc.bindOnce.Do(func() { close(uc.bindSignal) })

		if uc.control != nil && uc.userID != "" {
			lock := uc.control.server.userLocks.Lock(uc.control.clientKey + "/" + uc.userID)
			uc.control.userChannels.Remove(uc.userID)
			lock.Unlock()
		}

		if uc.next != nil {
			dc := uc.next
			uc.next = nil
			dc.writeFrame(&protocol.Frame{Type: protocol.TypeDisconnect, Uri: uc.userID})
		}

		// Flush an empty write before closing so a half-sent HTTP/1.0
		// response on this socket isn't truncated by an abrupt RST.
		uc.conn.Write(nil)
		uc.conn.Close()
	})
}
