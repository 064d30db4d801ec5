package aes67

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/siegeld/dantectl/pkg/core"
	"github.com/siegeld/dantectl/pkg/udp"
)

type Client struct {
	IP      string
	Port    int
	Timeout time.Duration
}

func NewClient(ip string) *Client {
	return &Client{IP: ip, Port: Port, Timeout: 2 * time.Second}
}

// Subscribe binds rxChannel of the device to one channel of an announced
// flow. flowChannel is 1-based (1 = left, 2 = right for stereo).
func (c *Client) Subscribe(rxChannel uint16, flowChannel int, stream *core.Stream) error {
	pkt, err := MarshalSubscribe(uint16(rand.Intn(0xFFFF)), rxChannel, flowChannel, stream)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
	res, err := udp.Request(addr, pkt, c.Timeout)
	if err != nil {
		return err
	}

	if len(res) < 10 || binary.BigEndian.Uint16(res) != ReplyMagic {
		return fmt.Errorf("%w: unexpected response", ErrCommand)
	}
	if status := binary.BigEndian.Uint16(res[8:]); status != 1 {
		return fmt.Errorf("%w: status %d", ErrCommand, status)
	}

	return nil
}

// MarshalSubscribe builds the 112-byte subscribe frame. The interior
// constants come from Dante Controller captures.
func MarshalSubscribe(seq, rxChannel uint16, flowChannel int, stream *core.Stream) ([]byte, error) {
	src := net.ParseIP(stream.Origin).To4()
	if src == nil {
		return nil, fmt.Errorf("aes67: bad origin ip %q", stream.Origin)
	}
	dst := net.ParseIP(stream.Multicast).To4()
	if dst == nil {
		return nil, fmt.Errorf("aes67: bad multicast ip %q", stream.Multicast)
	}

	count := len(stream.Channels)

	b := make([]byte, frameSize)

	// header
	binary.BigEndian.PutUint16(b, Magic)
	binary.BigEndian.PutUint16(b[2:], frameSize)
	binary.BigEndian.PutUint16(b[4:], seq)
	binary.BigEndian.PutUint16(b[6:], CmdSubscribe)

	// flags/version
	b[10], b[11] = 0x01, 0x01
	b[12], b[13] = 0x00, 0x10

	// record type + count + offset
	binary.BigEndian.PutUint16(b[18:], 0x4202)
	binary.BigEndian.PutUint16(b[28:], 0x0001)
	binary.BigEndian.PutUint16(b[34:], 0x0068)

	// sub-record structure
	binary.BigEndian.PutUint16(b[44:], 0x0003)
	binary.BigEndian.PutUint16(b[46:], 0x0040)
	binary.BigEndian.PutUint16(b[52:], 0x0002)
	binary.BigEndian.PutUint16(b[54:], 0x0060)

	// flow source
	binary.BigEndian.PutUint16(b[64:], 0x1000)
	binary.BigEndian.PutUint16(b[66:], 0x000B)
	copy(b[68:72], src)
	binary.BigEndian.PutUint32(b[76:], uint32(stream.ID))

	// channel mapping
	binary.BigEndian.PutUint16(b[96:], rxChannel)
	binary.BigEndian.PutUint16(b[98:], uint16(count))
	b[102] = byte(flowChannel)
	b[104] = encodingByte(stream.Codec)
	b[105] = byte(count)
	binary.BigEndian.PutUint16(b[106:], uint16(stream.Port))
	copy(b[108:112], dst)

	return b, nil
}
