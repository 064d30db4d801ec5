package core

import "time"

const (
	SourceNone  = "none"
	SourceDante = "dante"
	SourceAES67 = "aes67"
)

// Source - effective audio source of one RX channel.
type Source struct {
	Type      string `json:"type"`
	TxDevice  string `json:"tx_device,omitempty"`
	TxChannel string `json:"tx_channel,omitempty"`
	Stream    string `json:"stream,omitempty"`
	Index     int    `json:"index,omitempty"`
}

// Snapshot - one consistent view of the whole network, published atomically
// at the end of a poll cycle. Immutable after publish.
type Snapshot struct {
	Devices    map[string]*Device   `json:"devices"`
	Streams    map[string]*Stream   `json:"streams"`
	Selections map[string]Selection `json:"selections"`
	Taken      time.Time            `json:"taken"`
}

// EffectiveSource resolves the current source of an RX channel. A selection
// always wins over the device-reported subscription.
func (s *Snapshot) EffectiveSource(device string, rxChannel uint16) Source {
	if sel, ok := s.Selections[SelectionKey(device, rxChannel)]; ok {
		return Source{Type: SourceAES67, Stream: sel.Stream, Index: sel.Channel}
	}

	if dev := s.Devices[device]; dev != nil {
		for _, sub := range dev.Subscriptions {
			if sub.RxChannel == rxChannel && sub.TxDevice != "" {
				return Source{Type: SourceDante, TxDevice: sub.TxDevice, TxChannel: sub.TxChannel}
			}
		}
	}

	return Source{Type: SourceNone}
}
