package ws

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const headerSize = 8

var ErrShortFrame = errors.New("ws: frame shorter than header")

// Call is one decoded request frame.
type Call struct {
	OpID     uint32
	Control  []byte
	ZeroCopy []byte
}

// DecodeCall splits a request frame. The returned slices alias frame.
func DecodeCall(frame []byte) (Call, error) {
	if len(frame) < headerSize {
		return Call{}, ErrShortFrame
	}
	opID := binary.BigEndian.Uint32(frame[0:4])
	n := binary.BigEndian.Uint32(frame[4:8])
	body := frame[headerSize:]
	if uint64(n) > uint64(len(body)) {
		return Call{}, fmt.Errorf("ws: control length %d exceeds frame payload %d", n, len(body))
	}

	c := Call{OpID: opID, Control: body[:n]}
	if rest := body[n:]; len(rest) > 0 {
		c.ZeroCopy = rest
	}
	return c, nil
}

// EncodeCall builds a request frame.
func EncodeCall(opID uint32, control, zeroCopy []byte) []byte {
	frame := make([]byte, headerSize, headerSize+len(control)+len(zeroCopy))
	binary.BigEndian.PutUint32(frame[0:4], opID)
	binary.BigEndian.PutUint32(frame[4:8], uint32(len(control)))
	frame = append(frame, control...)
	return append(frame, zeroCopy...)
}

// EncodeReply builds a response frame.
func EncodeReply(opID uint32, buf []byte) []byte {
	frame := make([]byte, 4, 4+len(buf))
	binary.BigEndian.PutUint32(frame, opID)
	return append(frame, buf...)
}

// DecodeReply splits a response frame.
func DecodeReply(frame []byte) (uint32, []byte, error) {
	if len(frame) < 4 {
		return 0, nil, ErrShortFrame
	}
	return binary.BigEndian.Uint32(frame[0:4]), frame[4:], nil
}
