package mdns

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/siegeld/dantectl/pkg/core"
)

// DiscoverEndpoints browses all Dante service types in parallel and merges
// answers that belong to the same device. A device advertises its identity
// spread over several services, so a single browse is never enough.
func DiscoverEndpoints(timeout time.Duration) ([]*core.Endpoint, error) {
	var mu sync.Mutex
	byHost := map[string]*core.Endpoint{}

	var wg sync.WaitGroup
	for _, service := range Services {
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			_ = Discovery(service, timeout, func(entry *ServiceEntry) bool {
				if !entry.Complete() || entry.Host == "" {
					return false
				}
				mu.Lock()
				mergeEntry(byHost, entry)
				mu.Unlock()
				return false
			})
		}(service)
	}
	wg.Wait()

	endpoints := make([]*core.Endpoint, 0, len(byHost))
	for _, endpoint := range byHost {
		endpoints = append(endpoints, endpoint)
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Name < endpoints[j].Name
	})
	return endpoints, nil
}

func mergeEntry(byHost map[string]*core.Endpoint, entry *ServiceEntry) {
	endpoint := byHost[entry.Host]
	if endpoint == nil {
		endpoint = &core.Endpoint{Name: entry.Host}
		byHost[entry.Host] = endpoint
	}

	if endpoint.IP == "" {
		endpoint.IP = entry.IP.String()
	}

	switch entry.Service {
	case ServiceARC:
		endpoint.ControlPort = int(entry.Port)
	case ServiceCMC:
		// only the CMC instance name carries the MAC address
		if endpoint.MAC == "" {
			endpoint.MAC = macFromID(entry.Info["id"])
		}
	}

	applyInfo(endpoint, entry.Info)
}

func applyInfo(endpoint *core.Endpoint, info map[string]string) {
	if info == nil {
		return
	}

	if v := info["mf"]; v != "" && endpoint.Manufacturer == "" {
		endpoint.Manufacturer = v
	}
	if v := info["model"]; v != "" && endpoint.ModelID == "" {
		endpoint.ModelID = v
	}
	if v := info["rate"]; v != "" && endpoint.SampleRate == 0 {
		if rate, err := strconv.ParseUint(v, 10, 32); err == nil {
			endpoint.SampleRate = uint32(rate)
		}
	}
	if v := info["latency_ns"]; v != "" && endpoint.LatencyUS == 0 {
		if ns, err := strconv.ParseUint(v, 10, 64); err == nil {
			endpoint.LatencyUS = uint32(ns / 1000)
		}
	}
	if v := info["router_info"]; v != "" && endpoint.Software == "" {
		endpoint.Software = strings.Trim(v, `"`)
	}
}

// macFromID converts the CMC "id" property (raw hex) into colon notation.
func macFromID(id string) string {
	if len(id) < 12 {
		return ""
	}
	id = strings.ToLower(id[:12])
	parts := make([]string, 6)
	for i := range parts {
		parts[i] = id[i*2 : i*2+2]
	}
	return strings.Join(parts, ":")
}
