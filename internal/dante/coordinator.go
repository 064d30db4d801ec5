package dante

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/siegeld/dantectl/pkg/aes67"
	"github.com/siegeld/dantectl/pkg/core"
	"github.com/siegeld/dantectl/pkg/dante"
	"github.com/siegeld/dantectl/pkg/mdns"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrStreamNotFound = errors.New("stream not found")
)

type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	Workers     int
	MDNSTimeout time.Duration
	SAPWindow   time.Duration
	SAPBind     string
	StreamTTL   time.Duration
	MissLimit   int

	// collaborators, replaceable in tests
	Discover func(timeout time.Duration) ([]*core.Endpoint, error)
	Poll     func(ctx context.Context, ep *core.Endpoint, timeout time.Duration) (*core.Device, error)
	Capture  func(ctx context.Context, bind string, window time.Duration) ([][]byte, error)
}

// Coordinator runs the poll cycle: mDNS discovery, per-device polls and SAP
// capture in parallel, then one atomic snapshot at the end. Control commands
// go straight to the device and trigger an early cycle.
type Coordinator struct {
	cfg Config
	log zerolog.Logger

	cache  *aes67.Cache
	worker *core.Worker

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	devices    map[string]*core.Device
	misses     map[string]int
	selections map[string]core.Selection
	snapshot   *core.Snapshot

	OnPublish func(*core.Snapshot)
}

func NewCoordinator(cfg Config, log zerolog.Logger) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MDNSTimeout <= 0 {
		cfg.MDNSTimeout = 5 * time.Second
	}
	if cfg.SAPWindow <= 0 {
		cfg.SAPWindow = 10 * time.Second
	}
	if cfg.MissLimit <= 0 {
		cfg.MissLimit = 10
	}

	if cfg.Discover == nil {
		cfg.Discover = mdns.DiscoverEndpoints
	}
	if cfg.Poll == nil {
		cfg.Poll = pollDevice
	}
	if cfg.Capture == nil {
		cfg.Capture = aes67.Listen
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		cfg:        cfg,
		log:        log,
		cache:      aes67.NewCache(),
		ctx:        ctx,
		cancel:     cancel,
		devices:    map[string]*core.Device{},
		misses:     map[string]int{},
		selections: map[string]core.Selection{},
		snapshot:   emptySnapshot(),
	}
}

func (c *Coordinator) Start() {
	c.worker = core.NewWorker(0, c.cycle)
}

func (c *Coordinator) Stop() {
	c.cancel()
	c.worker.Stop()
}

// Refresh schedules an immediate cycle.
func (c *Coordinator) Refresh() {
	c.worker.Do()
}

// Snapshot returns the last published state. Never nil.
func (c *Coordinator) Snapshot() *core.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Coordinator) cycle() time.Duration {
	if c.ctx.Err() != nil {
		return 0
	}

	started := time.Now()

	// SAP capture runs alongside discovery and the polls
	sapDone := make(chan [][]byte, 1)
	go func() {
		packets, err := c.cfg.Capture(c.ctx, c.cfg.SAPBind, c.cfg.SAPWindow)
		if err != nil && c.ctx.Err() == nil {
			c.log.Warn().Err(err).Msg("[dante] sap listen")
		}
		sapDone <- packets
	}()

	endpoints, err := c.cfg.Discover(c.cfg.MDNSTimeout)
	if err != nil {
		c.log.Warn().Err(err).Msg("[dante] mdns discovery")
	}

	// devices missing from this round of answers still get polled,
	// they only drop out after MissLimit failed cycles
	seen := map[string]bool{}
	for _, ep := range endpoints {
		seen[ep.Name] = true
	}
	c.mu.RLock()
	for name, dev := range c.devices {
		if !seen[name] {
			ep := dev.Endpoint
			endpoints = append(endpoints, &ep)
		}
	}
	c.mu.RUnlock()

	polled := c.pollAll(endpoints)
	payloads := <-sapDone

	// shutdown mid-cycle discards everything collected so far
	if c.ctx.Err() != nil {
		return 0
	}

	// Capture already stripped the SAP framing, payloads are raw SDP
	for _, sdp := range payloads {
		stream, err := aes67.ParseSDP(sdp)
		if err != nil {
			c.log.Debug().Err(err).Msg("[dante] parse sdp")
			continue
		}
		c.cache.Merge(stream)
	}
	if n := c.cache.Prune(c.cfg.StreamTTL); n > 0 {
		c.log.Debug().Int("count", n).Msg("[dante] prune streams")
	}

	c.publish(polled)

	c.log.Debug().
		Int("devices", len(polled)).Int("streams", c.cache.Len()).
		Dur("elapsed", time.Since(started)).Msg("[dante] cycle")

	return c.cfg.Interval
}

func (c *Coordinator) pollAll(endpoints []*core.Endpoint) map[string]*core.Device {
	polled := make(map[string]*core.Device, len(endpoints))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.cfg.Workers)

	for _, ep := range endpoints {
		wg.Add(1)
		sem <- struct{}{}
		go func(ep *core.Endpoint) {
			defer wg.Done()
			defer func() { <-sem }()

			if c.ctx.Err() != nil {
				return
			}

			dev, err := c.cfg.Poll(c.ctx, ep, c.cfg.Timeout)
			if err != nil {
				c.log.Debug().Err(err).Str("device", ep.Name).Msg("[dante] poll")
				return
			}

			mu.Lock()
			polled[dev.Name] = dev
			mu.Unlock()
		}(ep)
	}

	wg.Wait()
	return polled
}

// publish merges poll results into the device table, reconciles selections
// and swaps in a new snapshot.
func (c *Coordinator) publish(polled map[string]*core.Device) {
	now := time.Now()

	c.mu.Lock()

	for name, dev := range polled {
		dev.UpdatedAt = now
		c.devices[name] = dev
		delete(c.misses, name)
	}

	for name, dev := range c.devices {
		if _, ok := polled[name]; ok {
			continue
		}
		if c.misses[name]++; c.misses[name] >= c.cfg.MissLimit {
			c.log.Info().Str("device", name).Msg("[dante] device dropped")
			delete(c.devices, name)
			delete(c.misses, name)
			for key := range c.selections {
				if strings.HasPrefix(key, name+"/") {
					delete(c.selections, key)
				}
			}
			continue
		}
		dev.Stale = true
	}

	streams := c.cache.All()

	// flow bindings are invisible to the native subscription query on most
	// firmware, so polling can never prove a selection gone; selections only
	// leave through an explicit removal. Some firmware does surface a binding
	// as a subscription whose TX device is the flow's origin or multicast IP,
	// seed the matching selection from those. Recorded selections win.
	for name, dev := range polled {
		for _, sub := range dev.Subscriptions {
			if sub.TxDevice == "" {
				continue
			}
			key := core.SelectionKey(name, sub.RxChannel)
			if _, ok := c.selections[key]; ok {
				continue
			}
			stream := matchStream(streams, sub.TxDevice)
			if stream == nil {
				continue
			}
			channel := 1
			if n, err := strconv.Atoi(sub.TxChannel); err == nil && n >= 1 && n <= len(stream.Channels) {
				channel = n
			}
			c.log.Debug().Str("key", key).Str("stream", stream.Name).Msg("[dante] selection seeded")
			c.selections[key] = core.Selection{Stream: stream.Name, Channel: channel}
		}
	}

	snap := &core.Snapshot{
		Devices:    make(map[string]*core.Device, len(c.devices)),
		Streams:    streams,
		Selections: make(map[string]core.Selection, len(c.selections)),
		Taken:      now,
	}
	for name, dev := range c.devices {
		snap.Devices[name] = dev.Clone()
	}
	for key, sel := range c.selections {
		snap.Selections[key] = sel
	}
	c.snapshot = snap

	c.mu.Unlock()

	if c.OnPublish != nil {
		c.OnPublish(snap)
	}
}

// control operations

// Subscribe binds an RX channel to a native TX channel. Empty txDevice
// clears the binding. Either way any AES67 selection on the channel is gone.
func (c *Coordinator) Subscribe(device string, rxChannel uint16, txDevice, txChannel string) error {
	dev, err := c.device(device)
	if err != nil {
		return err
	}

	if err = c.client(dev).Subscribe(rxChannel, txDevice, txChannel); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.selections, core.SelectionKey(device, rxChannel))
	c.mu.Unlock()

	c.Refresh()
	return nil
}

func (c *Coordinator) Unsubscribe(device string, rxChannel uint16) error {
	return c.Subscribe(device, rxChannel, "", "")
}

// SubscribeAES67 binds an RX channel to one channel of an announced flow
// and records the selection, since the native subscription query can't
// report AES67 bindings.
func (c *Coordinator) SubscribeAES67(device string, rxChannel uint16, streamName string, flowChannel int) error {
	dev, err := c.device(device)
	if err != nil {
		return err
	}

	stream := c.cache.Get(streamName)
	if stream == nil {
		return fmt.Errorf("%w: %q", ErrStreamNotFound, streamName)
	}
	if flowChannel < 1 || flowChannel > len(stream.Channels) {
		return fmt.Errorf("flow channel %d out of range 1..%d", flowChannel, len(stream.Channels))
	}

	cl := aes67.NewClient(dev.IP)
	cl.Timeout = c.cfg.Timeout
	if err = cl.Subscribe(rxChannel, flowChannel, stream); err != nil {
		return err
	}

	c.mu.Lock()
	c.selections[core.SelectionKey(device, rxChannel)] = core.Selection{
		Stream:  stream.Name,
		Channel: flowChannel,
	}
	c.mu.Unlock()

	c.Refresh()
	return nil
}

// UnsubscribeAES67 deletes the override record. Local bookkeeping only,
// no frames are sent; use a native unsubscribe to tear the flow down on
// the device.
func (c *Coordinator) UnsubscribeAES67(device string, rxChannel uint16) error {
	c.mu.Lock()
	delete(c.selections, core.SelectionKey(device, rxChannel))
	c.mu.Unlock()

	c.Refresh()
	return nil
}

func (c *Coordinator) SetSampleRate(device string, rate uint32) error {
	return c.settings(device, func(cl *dante.Client) error {
		return cl.SetSampleRate(rate)
	})
}

func (c *Coordinator) SetLatency(device string, us uint32) error {
	return c.settings(device, func(cl *dante.Client) error {
		return cl.SetLatency(us)
	})
}

func (c *Coordinator) SetEncoding(device string, bits uint16) error {
	return c.settings(device, func(cl *dante.Client) error {
		return cl.SetEncoding(bits)
	})
}

func (c *Coordinator) SetGain(device, direction string, channel uint16, level byte) error {
	var dir byte
	switch direction {
	case "input":
		dir = dante.GainInput
	case "output":
		dir = dante.GainOutput
	default:
		return fmt.Errorf("bad gain direction %q", direction)
	}

	return c.settings(device, func(cl *dante.Client) error {
		return cl.SetGain(dir, channel, level)
	})
}

func (c *Coordinator) Identify(device string) error {
	dev, err := c.device(device)
	if err != nil {
		return err
	}
	return c.client(dev).Identify()
}

func (c *Coordinator) settings(device string, f func(*dante.Client) error) error {
	dev, err := c.device(device)
	if err != nil {
		return err
	}
	if err = f(c.client(dev)); err != nil {
		return err
	}
	c.Refresh()
	return nil
}

func (c *Coordinator) device(name string) (*core.Device, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dev := c.devices[name]
	if dev == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	return dev, nil
}

func (c *Coordinator) client(dev *core.Device) *dante.Client {
	cl := dante.NewClient(dev.IP)
	if dev.ControlPort > 0 {
		cl.ControlPort = dev.ControlPort
	}
	if dev.SettingsPort > 0 {
		cl.SettingsPort = dev.SettingsPort
	}
	cl.Timeout = c.cfg.Timeout
	return cl
}

// pollDevice reads the full state of one device. Any failed query fails the
// whole poll, the device keeps its previous state and gets a miss. A
// cancelled ctx stops the remaining queries between commands.
func pollDevice(ctx context.Context, ep *core.Endpoint, timeout time.Duration) (*core.Device, error) {
	cl := dante.NewClient(ep.IP)
	if ep.ControlPort > 0 {
		cl.ControlPort = ep.ControlPort
	}
	if ep.SettingsPort > 0 {
		cl.SettingsPort = ep.SettingsPort
	}
	cl.Timeout = timeout

	info, err := cl.DeviceInfo()
	if err != nil {
		return nil, err
	}

	dev := &core.Device{Endpoint: *ep}
	if dev.Name == "" {
		dev.Name = info.Name
	}
	if info.Manufacturer != "" {
		dev.Manufacturer = info.Manufacturer
	}
	if info.Model != "" {
		dev.Model = info.Model
	}
	if info.ModelID != "" {
		dev.ModelID = info.ModelID
	}
	if info.Software != "" {
		dev.Software = info.Software
	}
	if info.MAC != "" {
		dev.MAC = info.MAC
	}

	// mDNS TXT hints fill the gaps of a short info response
	if dev.Status.SampleRate = info.SampleRate; dev.Status.SampleRate == 0 {
		dev.Status.SampleRate = ep.SampleRate
	}
	if dev.Status.LatencyUS = info.LatencyUS; dev.Status.LatencyUS == 0 {
		dev.Status.LatencyUS = ep.LatencyUS
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if dev.RxChannels, err = cl.RxChannels(); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if dev.TxChannels, err = cl.TxChannels(); err != nil {
		return nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, err
	}
	if dev.Subscriptions, err = cl.Subscriptions(); err != nil {
		return nil, err
	}

	dev.Status.RxCount = len(dev.RxChannels)
	dev.Status.TxCount = len(dev.TxChannels)

	return dev, nil
}

func matchStream(streams map[string]*core.Stream, addr string) *core.Stream {
	for _, stream := range streams {
		if stream.Origin == addr || stream.Multicast == addr {
			return stream
		}
	}
	return nil
}

func emptySnapshot() *core.Snapshot {
	return &core.Snapshot{
		Devices:    map[string]*core.Device{},
		Streams:    map[string]*core.Stream{},
		Selections: map[string]core.Selection{},
		Taken:      time.Now(),
	}
}
