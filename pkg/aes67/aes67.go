// Package aes67 covers the AES67 side of a Dante network: SAP stream
// discovery, SDP parsing and the subscription command that binds an RX
// channel to an announced multicast flow.
package aes67

import (
	"errors"
	"strings"
)

const (
	SAPMulticast = "239.255.255.255"
	SAPPort      = 9875

	// the subscribe command uses its own magic and framing, distinct
	// from the native control protocol
	Port       = 4440
	Magic      = uint16(0x2809)
	ReplyMagic = uint16(0x2801)

	CmdSubscribe = uint16(0x3201)

	frameSize = 112
)

var (
	ErrParse   = errors.New("aes67: bad session description")
	ErrCommand = errors.New("aes67: subscribe rejected")
)

// sample encoding byte of the subscribe command, derived from the codec
// prefix of the rtpmap line
var encodings = map[string]byte{
	"L16": 0x06,
	"L24": 0x08,
	"L32": 0x0A,
}

func encodingByte(codec string) byte {
	name, _, _ := strings.Cut(codec, "/")
	if b, ok := encodings[name]; ok {
		return b
	}
	return encodings["L24"]
}
