package client

import (
	"net"

	"github.com/go-zoox/gztun/protocol"
	"github.com/go-zoox/logger"
)

// dataChannel is one outbound connection from the pool. It carries
// TRANSFER/DISCONNECT frames for exactly one real-server binding at a
// time; between bindings it sits idle in the pool, kept alive by its own
// write-idle heartbeat.
type dataChannel struct {
	*framedConn
	client *Client
	real   *realServerChannel
}

func dialDataChannel(c *Client) (*dataChannel, error) {
	conn, err := net.Dial("tcp", c.cfg.Addr())
	if err != nil {
		return nil, err
	}

	dc := &dataChannel{client: c}
	dc.framedConn = newFramedConn(conn, protocol.MaxDataFrameLength, dc.sendHeartbeat, dc.onDeath)

	go dc.serve(dc.dispatch)
	return dc, nil
}

func (dc *dataChannel) sendHeartbeat() {
	if err := dc.writeFrame(&protocol.Frame{Type: protocol.TypeHeartbeat}); err != nil {
		logger.Warn("[client] data channel heartbeat failed: %v", err)
		dc.close()
	}
}

func (dc *dataChannel) bindReal(r *realServerChannel) {
	dc.real = r
}

func (dc *dataChannel) unbind() {
	dc.real = nil
}

func (dc *dataChannel) dispatch(frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.TypeHeartbeat:
		return true

	case protocol.TypeDisconnect:
		if dc.real != nil {
			dc.real.closeWithoutNotify()
		}
		dc.unbind()
		dc.client.pool.Return(dc)
		return true

	case protocol.TypeTransfer:
		if dc.real == nil {
			logger.Warn("[client] TRANSFER on unbound data channel")
			return true
		}
		if err := dc.real.writeRaw(frame.Data); err != nil {
			dc.real.closeWithoutNotify()
			dc.unbind()
			dc.client.pool.Return(dc)
		}
		return true

	default:
		logger.Warn("[client] unexpected frame %s on data channel", frame.Type)
		return true
	}
}

// onDeath runs when the underlying TCP connection itself dies (network
// error, or the server closing it after processing a DISCONNECT we
// sent). It is not returned to the pool — a dead socket is of no use
// there, and attempting to reuse it would just surface on the next
// Borrow as a write failure anyway.
func (dc *dataChannel) onDeath() {
	dc.client.pool.Remove(dc)
	if dc.real != nil {
		dc.real.closeWithoutNotify()
		dc.unbind()
	}
}
