package dante

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/siegeld/dantectl/pkg/core"
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

func testEndpoint(name string) *core.Endpoint {
	return &core.Endpoint{Name: name, IP: "10.0.0.1"}
}

func testDevice(name string, subs ...core.Subscription) *core.Device {
	return &core.Device{
		Endpoint: core.Endpoint{Name: name, IP: "10.0.0.1"},
		RxChannels: []core.Channel{
			{Number: 1, Name: "ch1"},
			{Number: 2, Name: "ch2"},
		},
		Subscriptions: subs,
	}
}

// fakeNetwork drives a coordinator without any real sockets.
type fakeNetwork struct {
	endpoints []*core.Endpoint
	devices   map[string]*core.Device
	failing   map[string]bool
	sdp       [][]byte
}

func newTestCoordinator(fake *fakeNetwork) *Coordinator {
	cfg := Config{
		Interval:  time.Hour,
		MissLimit: 3,
		Discover: func(time.Duration) ([]*core.Endpoint, error) {
			return fake.endpoints, nil
		},
		Poll: func(_ context.Context, ep *core.Endpoint, _ time.Duration) (*core.Device, error) {
			if fake.failing[ep.Name] {
				return nil, errors.New("timeout")
			}
			dev := fake.devices[ep.Name]
			if dev == nil {
				return nil, errors.New("unknown device")
			}
			return dev.Clone(), nil
		},
		Capture: func(context.Context, string, time.Duration) ([][]byte, error) {
			return fake.sdp, nil
		},
	}
	return NewCoordinator(cfg, zerolog.Nop())
}

func TestCyclePublishesSnapshot(t *testing.T) {
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-out"), testEndpoint("avio-in")},
		devices: map[string]*core.Device{
			"avio-out": testDevice("avio-out"),
			"avio-in": testDevice("avio-in",
				core.Subscription{RxChannel: 1, TxDevice: "avio-out", TxChannel: "ch1"},
			),
		},
		sdp: [][]byte{[]byte(studioSDP)},
	}

	c := newTestCoordinator(fake)
	require.Positive(t, c.cycle())

	snap := c.Snapshot()
	require.Len(t, snap.Devices, 2)
	require.Len(t, snap.Streams, 1)
	require.Contains(t, snap.Streams, "Studio1")
	require.Equal(t, []string{"Tx Left", "Tx Right"}, snap.Streams["Studio1"].Channels)

	src := snap.EffectiveSource("avio-in", 1)
	require.Equal(t, core.SourceDante, src.Type)
	require.Equal(t, "avio-out", src.TxDevice)
	require.Equal(t, "ch1", src.TxChannel)

	require.Equal(t, core.SourceNone, snap.EffectiveSource("avio-in", 2).Type)
}

func TestSelectionOverridesSubscription(t *testing.T) {
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-in")},
		devices: map[string]*core.Device{
			"avio-in": testDevice("avio-in",
				core.Subscription{RxChannel: 1, TxDevice: "avio-out", TxChannel: "ch1"},
			),
		},
	}

	c := newTestCoordinator(fake)
	c.selections[core.SelectionKey("avio-in", 1)] = core.Selection{Stream: "Studio1", Channel: 2}
	c.cycle()

	src := c.Snapshot().EffectiveSource("avio-in", 1)
	require.Equal(t, core.SourceAES67, src.Type)
	require.Equal(t, "Studio1", src.Stream)
	require.Equal(t, 2, src.Index)
}

func TestSelectionSurvivesPolling(t *testing.T) {
	// flow bindings don't show up in the native subscription report, so a
	// device with an empty report must not cost the channel its selection
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-in")},
		devices:   map[string]*core.Device{"avio-in": testDevice("avio-in")},
	}

	c := newTestCoordinator(fake)
	c.selections[core.SelectionKey("avio-in", 1)] = core.Selection{Stream: "Studio1", Channel: 1}

	for i := 0; i < 3; i++ {
		c.cycle()
		src := c.Snapshot().EffectiveSource("avio-in", 1)
		require.Equal(t, core.SourceAES67, src.Type)
		require.Equal(t, "Studio1", src.Stream)
	}
}

func TestReconcileSeedsSelections(t *testing.T) {
	// some firmware reports a flow binding natively with the flow's
	// multicast or origin IP as the TX device name
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-in")},
		devices: map[string]*core.Device{
			"avio-in": testDevice("avio-in",
				core.Subscription{RxChannel: 1, TxDevice: "239.69.85.220", TxChannel: "2"},
				core.Subscription{RxChannel: 2, TxDevice: "10.11.7.75", TxChannel: "bogus"},
			),
		},
		sdp: [][]byte{[]byte(studioSDP)},
	}

	c := newTestCoordinator(fake)
	c.cycle()

	snap := c.Snapshot()
	require.Equal(t, core.Selection{Stream: "Studio1", Channel: 2},
		snap.Selections[core.SelectionKey("avio-in", 1)])
	// origin IP matches too, unparseable TX channel falls back to 1
	require.Equal(t, core.Selection{Stream: "Studio1", Channel: 1},
		snap.Selections[core.SelectionKey("avio-in", 2)])
}

func TestReconcileKeepsRecordedSelection(t *testing.T) {
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-in")},
		devices: map[string]*core.Device{
			"avio-in": testDevice("avio-in",
				core.Subscription{RxChannel: 1, TxDevice: "239.69.85.220", TxChannel: "2"},
			),
		},
		sdp: [][]byte{[]byte(studioSDP)},
	}

	c := newTestCoordinator(fake)
	c.selections[core.SelectionKey("avio-in", 1)] = core.Selection{Stream: "Studio1", Channel: 1}
	c.cycle()

	require.Equal(t, core.Selection{Stream: "Studio1", Channel: 1},
		c.Snapshot().Selections[core.SelectionKey("avio-in", 1)])
}

func TestRemoveSelectionIsLocal(t *testing.T) {
	fake := &fakeNetwork{}

	c := newTestCoordinator(fake)
	c.selections[core.SelectionKey("gone-device", 1)] = core.Selection{Stream: "Studio1", Channel: 1}

	// no device table entry, no network, still removes the record
	require.NoError(t, c.UnsubscribeAES67("gone-device", 1))
	c.cycle()
	require.Empty(t, c.Snapshot().Selections)
}

func TestPartialFailureKeepsDevice(t *testing.T) {
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-out"), testEndpoint("avio-in")},
		devices: map[string]*core.Device{
			"avio-out": testDevice("avio-out"),
			"avio-in":  testDevice("avio-in"),
		},
	}

	c := newTestCoordinator(fake)
	c.cycle()
	require.Len(t, c.Snapshot().Devices, 2)

	fake.failing = map[string]bool{"avio-in": true}
	c.cycle()

	snap := c.Snapshot()
	require.Len(t, snap.Devices, 2)
	require.False(t, snap.Devices["avio-out"].Stale)
	require.True(t, snap.Devices["avio-in"].Stale)
}

func TestDeviceDroppedAfterMissLimit(t *testing.T) {
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-in")},
		devices: map[string]*core.Device{
			"avio-in": testDevice("avio-in",
				core.Subscription{RxChannel: 1, TxDevice: "x", TxChannel: "y"},
			),
		},
	}

	c := newTestCoordinator(fake)
	c.cycle()
	c.selections[core.SelectionKey("avio-in", 1)] = core.Selection{Stream: "Studio1", Channel: 1}

	fake.failing = map[string]bool{"avio-in": true}
	for i := 0; i < 2; i++ {
		c.cycle()
		require.Len(t, c.Snapshot().Devices, 1)
	}

	c.cycle() // third miss hits the limit
	snap := c.Snapshot()
	require.Empty(t, snap.Devices)
	require.Empty(t, snap.Selections)
}

func TestSnapshotIsolation(t *testing.T) {
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-in")},
		devices:   map[string]*core.Device{"avio-in": testDevice("avio-in")},
	}

	c := newTestCoordinator(fake)
	c.cycle()

	snap := c.Snapshot()
	snap.Devices["avio-in"].RxChannels[0].Name = "mutated"

	c.cycle()
	require.Equal(t, "ch1", c.Snapshot().Devices["avio-in"].RxChannels[0].Name)
}

func TestOnPublish(t *testing.T) {
	fake := &fakeNetwork{}

	c := newTestCoordinator(fake)

	var published *core.Snapshot
	c.OnPublish = func(snap *core.Snapshot) { published = snap }

	c.cycle()
	require.NotNil(t, published)
	require.Same(t, c.Snapshot(), published)
}

func TestStopAbandonsCycle(t *testing.T) {
	fake := &fakeNetwork{
		endpoints: []*core.Endpoint{testEndpoint("avio-in")},
		devices:   map[string]*core.Device{"avio-in": testDevice("avio-in")},
	}

	c := newTestCoordinator(fake)

	poll := c.cfg.Poll
	c.cfg.Poll = func(ctx context.Context, ep *core.Endpoint, timeout time.Duration) (*core.Device, error) {
		c.cancel() // shutdown arrives mid-poll
		return poll(ctx, ep, timeout)
	}

	require.Zero(t, c.cycle())

	// partial results discarded, nothing published
	require.Empty(t, c.Snapshot().Devices)
}
