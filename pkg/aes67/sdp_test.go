package aes67

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const studioSDP = "v=0\r\n" +
	"o=- 821074694 1 IN IP4 10.11.7.75\r\n" +
	"s=Studio1\r\n" +
	"c=IN IP4 239.69.85.220/32\r\n" +
	"t=0 0\r\n" +
	"m=audio 5004 RTP/AVP 97\r\n" +
	"i=Tx Left\r\n" +
	"i=Tx Right\r\n" +
	"a=rtpmap:97 L24/48000/2\r\n"

func TestParseSDP(t *testing.T) {
	stream, err := ParseSDP([]byte(studioSDP))
	require.Nil(t, err)

	require.Equal(t, "Studio1", stream.Name)
	require.Equal(t, uint64(821074694), stream.ID)
	require.Equal(t, "10.11.7.75", stream.Origin)
	require.Equal(t, "239.69.85.220", stream.Multicast)
	require.Equal(t, 5004, stream.Port)
	require.Equal(t, "L24/48000/2", stream.Codec)
	require.Equal(t, []string{"Tx Left", "Tx Right"}, stream.Channels)
}

func TestParseSDPNoTiming(t *testing.T) {
	// some firmware skips the mandatory t= line
	sdp := "v=0\r\n" +
		"o=nax 821074694 127 IN IP4 10.11.7.71\r\n" +
		"s=nax-mix\r\n" +
		"c=IN IP4 239.69.1.2\r\n" +
		"m=audio 5004 RTP/AVP 97\r\n" +
		"a=rtpmap:97 L24/48000/1\r\n"

	stream, err := ParseSDP([]byte(sdp))
	require.Nil(t, err)
	require.Equal(t, "nax-mix", stream.Name)
	require.Equal(t, 5004, stream.Port)
	require.Equal(t, []string{"Mono"}, stream.Channels)
}

func TestParseSDPAggregateNames(t *testing.T) {
	sdp := "v=0\r\n" +
		"o=- 7 1 IN IP4 10.0.0.5\r\n" +
		"s=Desk\r\n" +
		"i=2 channels: Desk L, Desk R\r\n" +
		"c=IN IP4 239.10.0.5\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 96\r\n" +
		"a=rtpmap:96 L16/48000/2\r\n"

	stream, err := ParseSDP([]byte(sdp))
	require.Nil(t, err)
	require.Equal(t, []string{"Desk L", "Desk R"}, stream.Channels)
}

func TestParseSDPFallbackNames(t *testing.T) {
	sdp := "v=0\r\n" +
		"o=- 7 1 IN IP4 10.0.0.5\r\n" +
		"s=Stage\r\n" +
		"c=IN IP4 239.10.0.6\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 98\r\n" +
		"a=rtpmap:98 L24/96000/4\r\n"

	stream, err := ParseSDP([]byte(sdp))
	require.Nil(t, err)
	require.Equal(t, "L24/96000/4", stream.Codec)
	require.Equal(t, []string{"Ch1", "Ch2", "Ch3", "Ch4"}, stream.Channels)
}

func TestParseSDPMissingLines(t *testing.T) {
	// no rtpmap
	sdp := "v=0\r\n" +
		"o=- 7 1 IN IP4 10.0.0.5\r\n" +
		"s=Stage\r\n" +
		"c=IN IP4 239.10.0.6\r\n" +
		"t=0 0\r\n" +
		"m=audio 5004 RTP/AVP 98\r\n"
	_, err := ParseSDP([]byte(sdp))
	require.ErrorIs(t, err, ErrParse)

	// no media section
	sdp = "v=0\r\n" +
		"o=- 7 1 IN IP4 10.0.0.5\r\n" +
		"s=Stage\r\n" +
		"c=IN IP4 239.10.0.6\r\n" +
		"t=0 0\r\n"
	_, err = ParseSDP([]byte(sdp))
	require.ErrorIs(t, err, ErrParse)

	// not SDP at all
	_, err = ParseSDP([]byte("hello world"))
	require.ErrorIs(t, err, ErrParse)
}

func TestChannelNames(t *testing.T) {
	require.Equal(t, []string{"A", "B"}, channelNames([]string{"A", "B"}, 2))
	require.Equal(t, []string{"Left", "Right"}, channelNames(nil, 2))
	require.Equal(t, []string{"Mono"}, channelNames(nil, 1))
	require.Equal(t, []string{"Mic"}, channelNames([]string{"Mic"}, 1))
	// aggregate line that disagrees with the count falls back
	require.Equal(t, []string{"Left", "Right"}, channelNames([]string{"3 channels: a, b, c"}, 2))
}
