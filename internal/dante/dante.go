package dante

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/siegeld/dantectl/internal/api"
	"github.com/siegeld/dantectl/internal/api/ws"
	"github.com/siegeld/dantectl/internal/app"
	"github.com/siegeld/dantectl/pkg/core"
)

func Init() {
	var cfg struct {
		Mod struct {
			Interval    string `yaml:"interval"`
			Timeout     string `yaml:"timeout"`
			Workers     int    `yaml:"workers"`
			MDNSTimeout string `yaml:"mdns_timeout"`
			SAPWindow   string `yaml:"sap_window"`
			SAPBind     string `yaml:"sap_bind"`
			StreamTTL   string `yaml:"stream_ttl"`
			MissLimit   int    `yaml:"miss_limit"`
		} `yaml:"dante"`
	}

	app.LoadConfig(&cfg)

	log = app.GetLogger("dante")

	conf := Config{
		Interval:    parseDur(cfg.Mod.Interval, 30*time.Second),
		Timeout:     parseDur(cfg.Mod.Timeout, 2*time.Second),
		Workers:     cfg.Mod.Workers,
		MDNSTimeout: parseDur(cfg.Mod.MDNSTimeout, 5*time.Second),
		SAPWindow:   parseDur(cfg.Mod.SAPWindow, 10*time.Second),
		SAPBind:     cfg.Mod.SAPBind,
		StreamTTL:   parseDur(cfg.Mod.StreamTTL, 0),
		MissLimit:   cfg.Mod.MissLimit,
	}

	coord = NewCoordinator(conf, log)
	coord.OnPublish = func(snap *core.Snapshot) {
		ws.Broadcast(&ws.Message{Type: "snapshot", Value: snap})
	}

	api.HandleFunc("api/devices", devicesHandler)
	api.HandleFunc("api/streams", streamsHandler)
	api.HandleFunc("api/routing", routingHandler)
	api.HandleFunc("api/subscribe", subscribeHandler)
	api.HandleFunc("api/aes67/subscribe", aes67SubscribeHandler)
	api.HandleFunc("api/aes67/unsubscribe", aes67UnsubscribeHandler)
	api.HandleFunc("api/samplerate", samplerateHandler)
	api.HandleFunc("api/latency", latencyHandler)
	api.HandleFunc("api/encoding", encodingHandler)
	api.HandleFunc("api/gain", gainHandler)
	api.HandleFunc("api/identify", identifyHandler)

	ws.HandleFunc("snapshot", wsSnapshot)

	coord.Start()
}

func Stop() {
	if coord != nil {
		coord.Stop()
	}
}

var coord *Coordinator
var log zerolog.Logger

func wsSnapshot(tr *ws.Transport, _ *ws.Message) error {
	tr.Write(&ws.Message{Type: "snapshot", Value: coord.Snapshot()})
	return nil
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Str("value", s).Msg("[dante] bad duration in config")
		return def
	}
	return d
}
