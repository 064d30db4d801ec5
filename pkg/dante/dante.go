// Package dante speaks the native device control protocol. One UDP
// request/response per command, big-endian framing, command code echoed
// back on success.
package dante

import "errors"

const (
	Magic      = uint16(0x2712)
	HeaderSize = 8

	PortControl  = 4440 // channels, subscriptions, device info
	PortSettings = 8700 // sample rate, latency, encoding, gain, identify
)

// command codes are fixed by the device firmware
const (
	CmdDeviceInfo      = uint16(0x1003)
	CmdTxChannels      = uint16(0x2000)
	CmdRxChannels      = uint16(0x3000)
	CmdSubscriptions   = uint16(0x3010)
	CmdSetSubscription = uint16(0x3014)

	CmdSampleRate = uint16(0x0081)
	CmdLatency    = uint16(0x0082)
	CmdEncoding   = uint16(0x0083)
	CmdGain       = uint16(0x0084)
	CmdIdentify   = uint16(0x0063)
)

const (
	GainInput  = byte(0)
	GainOutput = byte(1)
)

var (
	ErrMalformed = errors.New("dante: malformed frame")
	ErrCommand   = errors.New("dante: command rejected")
)
