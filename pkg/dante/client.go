package dante

import (
	"bytes"
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
	IP           string
	ControlPort  int
	SettingsPort int
	Timeout      time.Duration

	seq uint16
}

func NewClient(ip string) *Client {
	return &Client{
		IP:           ip,
		ControlPort:  PortControl,
		SettingsPort: PortSettings,
		Timeout:      2 * time.Second,
		seq:          uint16(rand.Intn(0xFFFF)),
	}
}

// request sends one command and verifies the response echo. Commands on one
// client run sequentially, the sequence number only correlates the reply.
func (c *Client) request(port int, cmd uint16, body []byte) ([]byte, error) {
	c.seq++
	seq := c.seq

	addr := net.JoinHostPort(c.IP, strconv.Itoa(port))
	res, err := udp.Request(addr, Marshal(cmd, seq, body), c.Timeout)
	if err != nil {
		return nil, err
	}

	f, err := Unmarshal(res)
	if err != nil {
		return nil, err
	}
	if f.Command != cmd || f.Seq != seq {
		return nil, fmt.Errorf("%w: cmd=%04X seq=%d", ErrCommand, f.Command, f.Seq)
	}

	return f.Body, nil
}

// Info - device identity plus the volatile fields reported with it.
// Short responses leave the trailing fields empty.
type Info struct {
	Name         string
	Manufacturer string
	Model        string
	ModelID      string
	Software     string
	MAC          string
	SampleRate   uint32
	LatencyUS    uint32
}

func (c *Client) DeviceInfo() (*Info, error) {
	b, err := c.request(c.ControlPort, CmdDeviceInfo, nil)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Name:         cstring(b, 0, 32),
		Manufacturer: cstring(b, 32, 32),
		Model:        cstring(b, 64, 32),
		ModelID:      cstring(b, 96, 16),
	}
	if len(b) >= 116 {
		info.Software = fmt.Sprintf("%d.%d.%d", b[112], b[113], b[114])
	}
	if len(b) >= 122 {
		info.MAC = net.HardwareAddr(b[116:122]).String()
	}
	if len(b) >= 126 {
		info.SampleRate = binary.BigEndian.Uint32(b[122:])
	}
	if len(b) >= 130 {
		info.LatencyUS = binary.BigEndian.Uint32(b[126:])
	}

	return info, nil
}

func (c *Client) RxChannels() ([]core.Channel, error) {
	return c.channels(CmdRxChannels)
}

func (c *Client) TxChannels() ([]core.Channel, error) {
	return c.channels(CmdTxChannels)
}

func (c *Client) channels(cmd uint16) ([]core.Channel, error) {
	b, err := c.request(c.ControlPort, cmd, nil)
	if err != nil {
		return nil, err
	}
	return parseChannels(b), nil
}

// Subscriptions returns one entry per bound RX channel. Unbound channels
// are simply absent from the response.
func (c *Client) Subscriptions() ([]core.Subscription, error) {
	b, err := c.request(c.ControlPort, CmdSubscriptions, nil)
	if err != nil {
		return nil, err
	}
	return parseSubscriptions(b), nil
}

// Subscribe binds an RX channel to a TX channel of another device. The
// device replaces any previous subscription on that channel.
func (c *Client) Subscribe(rxChannel uint16, txDevice, txChannel string) error {
	body := make([]byte, 2, 2+len(txDevice)+len(txChannel)+2)
	binary.BigEndian.PutUint16(body, rxChannel)
	body = append(body, txDevice...)
	body = append(body, 0)
	body = append(body, txChannel...)
	body = append(body, 0)

	_, err := c.request(c.ControlPort, CmdSetSubscription, body)
	return err
}

// Unsubscribe clears the RX channel binding. On the wire this is a
// subscribe command with empty names.
func (c *Client) Unsubscribe(rxChannel uint16) error {
	return c.Subscribe(rxChannel, "", "")
}

func (c *Client) SetSampleRate(rate uint32) error {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, rate)
	_, err := c.request(c.SettingsPort, CmdSampleRate, body)
	return err
}

func (c *Client) SetLatency(us uint32) error {
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, us)
	_, err := c.request(c.SettingsPort, CmdLatency, body)
	return err
}

func (c *Client) SetEncoding(bits uint16) error {
	body := make([]byte, 2)
	binary.BigEndian.PutUint16(body, bits)
	_, err := c.request(c.SettingsPort, CmdEncoding, body)
	return err
}

// SetGain sets an analog gain level (1..5, meaning depends on AVIO model).
func (c *Client) SetGain(direction byte, channel uint16, level byte) error {
	body := make([]byte, 4)
	body[0] = direction
	binary.BigEndian.PutUint16(body[1:], channel)
	body[3] = level
	_, err := c.request(c.SettingsPort, CmdGain, body)
	return err
}

// Identify makes the device blink its LEDs.
func (c *Client) Identify() error {
	_, err := c.request(c.SettingsPort, CmdIdentify, nil)
	return err
}

// body parsers, defensive against short buffers

func parseChannels(b []byte) []core.Channel {
	if len(b) < 2 {
		return nil
	}

	count := int(binary.BigEndian.Uint16(b))
	b = b[2:]

	channels := make([]core.Channel, 0, count)
	for i := 0; i < count && len(b) > 2; i++ {
		num := binary.BigEndian.Uint16(b)
		j := bytes.IndexByte(b[2:], 0)
		if j < 0 {
			break
		}
		channels = append(channels, core.Channel{Number: num, Name: string(b[2 : 2+j])})
		b = b[2+j+1:]
	}

	return channels
}

func parseSubscriptions(b []byte) []core.Subscription {
	if len(b) < 2 {
		return nil
	}

	count := int(binary.BigEndian.Uint16(b))
	b = b[2:]

	subs := make([]core.Subscription, 0, count)
	for i := 0; i < count && len(b) > 3; i++ {
		sub := core.Subscription{
			RxChannel: binary.BigEndian.Uint16(b),
			Status:    b[2],
		}
		b = b[3:]

		j := bytes.IndexByte(b, 0)
		if j < 0 {
			break
		}
		sub.TxDevice, b = string(b[:j]), b[j+1:]

		if j = bytes.IndexByte(b, 0); j < 0 {
			break
		}
		sub.TxChannel, b = string(b[:j]), b[j+1:]

		subs = append(subs, sub)
	}

	return subs
}

func cstring(b []byte, off, size int) string {
	if off >= len(b) {
		return ""
	}
	if off+size > len(b) {
		size = len(b) - off
	}
	s := b[off : off+size]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}
