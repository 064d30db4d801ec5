package core

import (
	"strconv"
	"time"
)

// Endpoint - network identity of a Dante device, filled by mDNS discovery.
// Read-only for everyone except the discovery code.
type Endpoint struct {
	Name         string `json:"name"`
	IP           string `json:"ip"`
	ControlPort  int    `json:"control_port,omitempty"`
	SettingsPort int    `json:"settings_port,omitempty"`
	MAC          string `json:"mac,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	ModelID      string `json:"model_id,omitempty"`
	Software     string `json:"software,omitempty"`

	// hints from mDNS TXT records, used until the first successful poll
	SampleRate uint32 `json:"-"`
	LatencyUS  uint32 `json:"-"`
}

// Status - volatile device state, replaced on every poll cycle.
type Status struct {
	SampleRate uint32 `json:"sample_rate,omitempty"`
	LatencyUS  uint32 `json:"latency_us,omitempty"`
	RxCount    int    `json:"rx_count"`
	TxCount    int    `json:"tx_count"`
}

type Channel struct {
	Number uint16 `json:"number"`
	Name   string `json:"name"`
}

// Subscription - RX channel bound to a TX channel, reported by the device.
// A channel has at most one subscription, keyed by its number.
type Subscription struct {
	RxChannel uint16 `json:"rx_channel"`
	TxDevice  string `json:"tx_device"`
	TxChannel string `json:"tx_channel"`
	Status    uint8  `json:"status"`
}

type Device struct {
	Endpoint
	Status

	RxChannels    []Channel      `json:"rx_channels,omitempty"`
	TxChannels    []Channel      `json:"tx_channels,omitempty"`
	Subscriptions []Subscription `json:"subscriptions,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	Stale     bool      `json:"stale,omitempty"`
}

func (d *Device) Clone() *Device {
	dev := *d
	dev.RxChannels = append([]Channel(nil), d.RxChannels...)
	dev.TxChannels = append([]Channel(nil), d.TxChannels...)
	dev.Subscriptions = append([]Subscription(nil), d.Subscriptions...)
	return &dev
}

// Stream - one announced AES67 multicast flow, keyed by session name.
type Stream struct {
	Name      string    `json:"name"`
	ID        uint64    `json:"id"`
	Origin    string    `json:"origin"`
	Multicast string    `json:"multicast"`
	Port      int       `json:"port"`
	Codec     string    `json:"codec"`
	Channels  []string  `json:"channels"`
	LastSeen  time.Time `json:"last_seen"`
}

func (s *Stream) Clone() *Stream {
	stream := *s
	stream.Channels = append([]string(nil), s.Channels...)
	return &stream
}

// Selection - RX channel bound to an AES67 flow channel. The native
// subscription query can't see AES67 bindings, so selections override
// whatever the device reports.
type Selection struct {
	Stream  string `json:"stream"`
	Channel int    `json:"channel"` // 1-based index within the flow
}

// SelectionKey builds the selections map key for a device RX channel.
func SelectionKey(device string, rxChannel uint16) string {
	return device + "/" + strconv.Itoa(int(rxChannel))
}
