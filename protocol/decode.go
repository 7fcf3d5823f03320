package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned by Decode when buf does not yet hold a
// complete frame. The caller must read more bytes and retry; no input is
// consumed.
var ErrShortBuffer = errors.New("protocol: need more data")

// ErrFrameTooLarge is returned when a declared frame Length exceeds
// maxFrameLength. The connection must be disconnected; the frame is not
// recoverable.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds max length")

// Decode attempts to parse one frame from the head of buf. It returns the
// frame, the number of bytes consumed from buf, and an error.
//
// On ErrShortBuffer, consumed is always 0 and buf is left untouched so the
// caller can append more bytes and retry. On any other error the stream is
// unrecoverable and the connection must be closed.
func Decode(buf []byte, maxFrameLength int) (frame *Frame, consumed int, err error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortBuffer
	}

	bodyLength := int(binary.BigEndian.Uint32(buf[0:4]))
	if bodyLength < headerSize {
		return nil, 0, fmt.Errorf("protocol: declared length %d shorter than header", bodyLength)
	}
	if bodyLength > maxFrameLength {
		return nil, 0, ErrFrameTooLarge
	}

	total := 4 + bodyLength
	if len(buf) < total {
		return nil, 0, ErrShortBuffer
	}

	typ := Type(buf[4])
	serialNumber := binary.BigEndian.Uint64(buf[5:13])
	uriLen := int(buf[13])

	cursor := 14
	if cursor+uriLen > total {
		return nil, 0, fmt.Errorf("protocol: uri length %d overruns frame", uriLen)
	}
	uri := string(buf[cursor : cursor+uriLen])
	cursor += uriLen

	data := make([]byte, total-cursor)
	copy(data, buf[cursor:total])

	return &Frame{
		Type:         typ,
		SerialNumber: serialNumber,
		Uri:          uri,
		Data:         data,
	}, total, nil
}

// Decoder accumulates bytes read off a socket and yields complete frames,
// buffering whatever partial frame has not yet arrived. One Decoder is
// owned by exactly one connection's worker; it is not safe for concurrent
// use.
type Decoder struct {
	maxFrameLength int
	buf            []byte
}

// NewDecoder creates a Decoder that rejects any frame whose declared
// length exceeds maxFrameLength.
func NewDecoder(maxFrameLength int) *Decoder {
	return &Decoder{maxFrameLength: maxFrameLength}
}

// SetMaxFrameLength changes the cap applied to frames decoded from this
// point on. Used when a connection's role is resolved after some frames
// have already been read under a provisional cap.
func (d *Decoder) SetMaxFrameLength(maxFrameLength int) {
	d.maxFrameLength = maxFrameLength
}

// Feed appends newly read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Next pops the next complete frame out of the buffer, if any. ok is false
// (with err nil) when more bytes are needed; err is non-nil only for a
// protocol violation, in which case the caller must disconnect.
func (d *Decoder) Next() (frame *Frame, ok bool, err error) {
	frame, consumed, err := Decode(d.buf, d.maxFrameLength)
	if err == ErrShortBuffer {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	remaining := len(d.buf) - consumed
	copy(d.buf, d.buf[consumed:])
	d.buf = d.buf[:remaining]

	return frame, true, nil
}
