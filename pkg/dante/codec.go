package dante

import (
	"encoding/binary"
)

type Frame struct {
	Magic   uint16
	Length  uint16
	Seq     uint16
	Command uint16
	Body    []byte
}

// Marshal builds a control frame. Length covers the header.
func Marshal(cmd, seq uint16, body []byte) []byte {
	b := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(b, Magic)
	binary.BigEndian.PutUint16(b[2:], uint16(len(b)))
	binary.BigEndian.PutUint16(b[4:], seq)
	binary.BigEndian.PutUint16(b[6:], cmd)
	copy(b[HeaderSize:], body)
	return b
}

// Unmarshal checks magic and length against the datagram size. Truncated
// input is an error, never a panic.
func Unmarshal(b []byte) (*Frame, error) {
	if len(b) < HeaderSize {
		return nil, ErrMalformed
	}

	f := &Frame{
		Magic:   binary.BigEndian.Uint16(b),
		Length:  binary.BigEndian.Uint16(b[2:]),
		Seq:     binary.BigEndian.Uint16(b[4:]),
		Command: binary.BigEndian.Uint16(b[6:]),
		Body:    b[HeaderSize:],
	}

	if f.Magic != Magic || int(f.Length) != len(b) {
		return nil, ErrMalformed
	}

	return f, nil
}
