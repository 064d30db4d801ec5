package aes67

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
	"github.com/siegeld/dantectl/pkg/core"
)

// ParseSDP turns an announced session description into a Stream. Required
// lines: s= (cache key), o= (flow id + origin IP), c=, m=, a=rtpmap.
func ParseSDP(b []byte) (*core.Stream, error) {
	names, b := splitInfoLines(b)
	b = fixSDP(b)

	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrParse, err)
	}

	if sd.SessionName == "" {
		return nil, fmt.Errorf("%w: no session name", ErrParse)
	}
	if sd.Origin.UnicastAddress == "" {
		return nil, fmt.Errorf("%w: no origin", ErrParse)
	}
	if len(sd.MediaDescriptions) == 0 {
		return nil, fmt.Errorf("%w: no media", ErrParse)
	}

	md := sd.MediaDescriptions[0]

	ci := sd.ConnectionInformation
	if ci == nil {
		ci = md.ConnectionInformation
	}
	if ci == nil || ci.Address == nil {
		return nil, fmt.Errorf("%w: no connection address", ErrParse)
	}

	// pion keeps the TTL suffix out of the address, but older Dante
	// firmware SDP has been seen with it glued on
	multicast, _, _ := strings.Cut(ci.Address.Address, "/")

	rtpmap, ok := md.Attribute("rtpmap")
	if !ok {
		return nil, fmt.Errorf("%w: no rtpmap", ErrParse)
	}

	// "97 L24/48000/2" -> codec string + channel count
	_, codec, ok := strings.Cut(rtpmap, " ")
	if !ok {
		return nil, fmt.Errorf("%w: bad rtpmap", ErrParse)
	}

	channels := 1
	if parts := strings.Split(codec, "/"); len(parts) >= 3 {
		if n, err := strconv.Atoi(parts[2]); err == nil && n > 0 {
			channels = n
		}
	}

	return &core.Stream{
		Name:      string(sd.SessionName),
		ID:        sd.Origin.SessionID,
		Origin:    sd.Origin.UnicastAddress,
		Multicast: multicast,
		Port:      md.MediaName.Port.Value,
		Codec:     codec,
		Channels:  channelNames(names, channels),
		LastSeen:  time.Now(),
	}, nil
}

// splitInfoLines pulls every i= line out of the raw SDP. Dante announces
// one i= line per flow channel, which the SDP grammar does not allow, so
// they have to go before the real parser sees the text.
func splitInfoLines(b []byte) (names []string, out []byte) {
	out = make([]byte, 0, len(b))

	for _, line := range bytes.Split(b, []byte{'\n'}) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("i=")) {
			names = append(names, string(line[2:]))
			continue
		}
		out = append(out, line...)
		out = append(out, '\r', '\n')
	}

	return
}

// fixSDP patches announcements that skip mandatory v= or t= lines
func fixSDP(b []byte) []byte {
	if !bytes.HasPrefix(b, []byte("v=")) {
		b = append([]byte("v=0\r\n"), b...)
	}

	if !bytes.Contains(b, []byte("\nt=")) {
		if i := bytes.Index(b, []byte("\nm=")); i >= 0 {
			fixed := make([]byte, 0, len(b)+7)
			fixed = append(fixed, b[:i+1]...)
			fixed = append(fixed, "t=0 0\r\n"...)
			b = append(fixed, b[i+1:]...)
		} else {
			b = append(b, "t=0 0\r\n"...)
		}
	}

	return b
}

// channelNames resolves per-channel display names. Accepts one name per
// i= line, or the aggregate "2 channels: Tx Left, Tx Right" form, with
// generic fallbacks when neither matches the channel count.
func channelNames(info []string, count int) []string {
	if len(info) == 1 && strings.Contains(info[0], ":") {
		_, after, _ := strings.Cut(info[0], ":")
		var names []string
		for _, s := range strings.Split(after, ",") {
			if s = strings.TrimSpace(s); s != "" {
				names = append(names, s)
			}
		}
		if len(names) == count {
			return names
		}
	} else if len(info) == count {
		return info
	}

	switch count {
	case 1:
		return []string{"Mono"}
	case 2:
		return []string{"Left", "Right"}
	}

	names := make([]string, count)
	for i := range names {
		names[i] = "Ch" + strconv.Itoa(i+1)
	}
	return names
}
