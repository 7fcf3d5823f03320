package protocol

import (
	"encoding/binary"
	"fmt"
)

// Encode renders f as wire bytes, including the 4-byte Length prefix.
func Encode(f *Frame) ([]byte, error) {
	if len(f.Uri) > MaxURILen {
		return nil, fmt.Errorf("protocol: uri too long (%d > %d)", len(f.Uri), MaxURILen)
	}

	bodyLength := f.BodyLength()
	buf := make([]byte, 4+bodyLength)

	binary.BigEndian.PutUint32(buf[0:4], uint32(bodyLength))
	buf[4] = byte(f.Type)
	binary.BigEndian.PutUint64(buf[5:13], f.SerialNumber)
	buf[13] = byte(len(f.Uri))

	cursor := 14
	cursor += copy(buf[cursor:], f.Uri)
	copy(buf[cursor:], f.Data)

	return buf, nil
}
