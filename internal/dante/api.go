package dante

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/siegeld/dantectl/internal/api"
	"github.com/siegeld/dantectl/pkg/core"
)

var errBadEncoding = errors.New("encoding must be 16, 24 or 32 bits")

func devicesHandler(w http.ResponseWriter, r *http.Request) {
	snap := coord.Snapshot()

	devices := make([]*core.Device, 0, len(snap.Devices))
	for _, dev := range snap.Devices {
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})

	api.ResponseJSON(w, devices)
}

func streamsHandler(w http.ResponseWriter, r *http.Request) {
	snap := coord.Snapshot()

	streams := make([]*core.Stream, 0, len(snap.Streams))
	for _, stream := range snap.Streams {
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, j int) bool {
		return streams[i].Name < streams[j].Name
	})

	api.ResponseJSON(w, streams)
}

type route struct {
	Device    string      `json:"device"`
	RxChannel uint16      `json:"rx_channel"`
	RxName    string      `json:"rx_name,omitempty"`
	Source    core.Source `json:"source"`
}

// routingHandler resolves every RX channel of every device to its
// effective source, selections override native subscriptions.
func routingHandler(w http.ResponseWriter, r *http.Request) {
	snap := coord.Snapshot()

	var routes []route
	for name, dev := range snap.Devices {
		for _, ch := range dev.RxChannels {
			routes = append(routes, route{
				Device:    name,
				RxChannel: ch.Number,
				RxName:    ch.Name,
				Source:    snap.EffectiveSource(name, ch.Number),
			})
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Device != routes[j].Device {
			return routes[i].Device < routes[j].Device
		}
		return routes[i].RxChannel < routes[j].RxChannel
	})

	api.ResponseJSON(w, routes)
}

func subscribeHandler(w http.ResponseWriter, r *http.Request) {
	device, rxChannel, ok := deviceChannel(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	var err error
	switch r.Method {
	case "POST":
		// empty tx_device clears the binding
		err = coord.Subscribe(device, rxChannel, query.Get("tx_device"), query.Get("tx_channel"))
	case "DELETE":
		err = coord.Unsubscribe(device, rxChannel)
	default:
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if err != nil {
		api.Error(w, err)
		return
	}
	api.Response(w, "OK", api.MimeText)
}

func aes67SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	device, rxChannel, ok := deviceChannel(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	stream := query.Get("stream")
	if stream == "" {
		http.Error(w, "stream required", http.StatusBadRequest)
		return
	}

	flowChannel := 1
	if s := query.Get("flow_channel"); s != "" {
		var err error
		if flowChannel, err = strconv.Atoi(s); err != nil {
			http.Error(w, "bad flow_channel", http.StatusBadRequest)
			return
		}
	}

	if err := coord.SubscribeAES67(device, rxChannel, stream, flowChannel); err != nil {
		api.Error(w, err)
		return
	}
	api.Response(w, "OK", api.MimeText)
}

func aes67UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	device, rxChannel, ok := deviceChannel(w, r)
	if !ok {
		return
	}

	if err := coord.UnsubscribeAES67(device, rxChannel); err != nil {
		api.Error(w, err)
		return
	}
	api.Response(w, "OK", api.MimeText)
}

func samplerateHandler(w http.ResponseWriter, r *http.Request) {
	settingsHandler(w, r, "rate", func(device string, value uint64) error {
		return coord.SetSampleRate(device, uint32(value))
	})
}

func latencyHandler(w http.ResponseWriter, r *http.Request) {
	settingsHandler(w, r, "latency_us", func(device string, value uint64) error {
		return coord.SetLatency(device, uint32(value))
	})
}

func encodingHandler(w http.ResponseWriter, r *http.Request) {
	settingsHandler(w, r, "bits", func(device string, value uint64) error {
		switch value {
		case 16, 24, 32:
		default:
			return errBadEncoding
		}
		return coord.SetEncoding(device, uint16(value))
	})
}

func gainHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	device, channel, ok := deviceChannel(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	level, err := strconv.ParseUint(query.Get("level"), 10, 8)
	if err != nil || level < 1 || level > 5 {
		http.Error(w, "level must be in the range [1, 5]", http.StatusBadRequest)
		return
	}

	if err = coord.SetGain(device, query.Get("direction"), channel, byte(level)); err != nil {
		api.Error(w, err)
		return
	}
	api.Response(w, "OK", api.MimeText)
}

func identifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	device := r.URL.Query().Get("device")
	if device == "" {
		http.Error(w, "device required", http.StatusBadRequest)
		return
	}

	if err := coord.Identify(device); err != nil {
		api.Error(w, err)
		return
	}
	api.Response(w, "OK", api.MimeText)
}

func settingsHandler(w http.ResponseWriter, r *http.Request, param string, f func(string, uint64) error) {
	if r.Method != "POST" {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	device := query.Get("device")
	if device == "" {
		http.Error(w, "device required", http.StatusBadRequest)
		return
	}

	value, err := strconv.ParseUint(query.Get(param), 10, 32)
	if err != nil {
		http.Error(w, "bad "+param, http.StatusBadRequest)
		return
	}

	if err = f(device, value); err != nil {
		api.Error(w, err)
		return
	}
	api.Response(w, "OK", api.MimeText)
}

func deviceChannel(w http.ResponseWriter, r *http.Request) (string, uint16, bool) {
	query := r.URL.Query()

	device := query.Get("device")
	if device == "" {
		http.Error(w, "device required", http.StatusBadRequest)
		return "", 0, false
	}

	channel, err := strconv.ParseUint(query.Get("channel"), 10, 16)
	if err != nil || channel == 0 {
		http.Error(w, "bad channel", http.StatusBadRequest)
		return "", 0, false
	}

	return device, uint16(channel), true
}
