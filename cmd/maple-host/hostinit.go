package main

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/maple-host/internal/maple"
	"github.com/kstaniek/maple-host/internal/maple/hwbus"
)

// initHost opens one serial-backed bus per configured device and registers
// it with a new Host, applying the bit-timing overrides and (if set) the
// single-sender addressing shortcut to every bus pump.
func initHost(cfg *appConfig, l *slog.Logger) (*maple.Host, func(), error) {
	timing := maple.DefaultBitTiming()
	timing.CPUFreqMHz = cfg.cpuFreqMHz
	timing.MinClockPeriodNs = cfg.minClockPeriodNs
	timing.OpenLineCheckTimeUs = cfg.lineCheckUs
	timing.WriteTimeoutExtraPercent = cfg.writeTimeoutExtraPercent
	timing.InterWordReadTimeoutUs = cfg.interWordReadTimeoutUs

	h := maple.NewHost()
	var phys []*hwbus.SerialPHY
	cleanup := func() {
		for _, p := range phys {
			_ = p.Close()
		}
	}

	for i, dev := range cfg.serialDevs {
		name := fmt.Sprintf("bus%d", i)
		phy, err := hwbus.Open(dev, cfg.baud, cfg.serialReadTO)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open %s (%s): %w", name, dev, err)
		}
		phys = append(phys, phy)

		bus, err := h.AddBus(name, phy, timing)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("register %s: %w", name, err)
		}
		phy.Attach(bus.Driver)
		if cfg.singleSenderAddr >= 0 {
			bus.Pump.SetSingleSender(uint8(cfg.singleSenderAddr))
		}
		l.Info("bus_attached", "bus", name, "device", dev, "baud", cfg.baud)
	}

	l.Info("build_info", "version", version, "commit", commit, "date", date)
	return h, cleanup, nil
}

// applyTopology creates a fixed-priority EndpointScheduler for each endpoint
// named in a loaded topology config, returning them keyed by bus name and
// recipient address so command parsers (out of this module's scope) can
// look them up later. It adds no Transmissions; an endpoint's
// auto_repeat_us is only logged.
func applyTopology(h *maple.Host, top *topologyConfig, l *slog.Logger) map[string]*maple.EndpointScheduler {
	endpoints := make(map[string]*maple.EndpointScheduler, len(top.Endpoints))
	for _, ep := range top.Endpoints {
		bus, ok := h.Bus(ep.Bus)
		if !ok {
			l.Warn("topology_unknown_bus", "bus", ep.Bus, "recipient", ep.Recipient)
			continue
		}
		key := fmt.Sprintf("%s/%#02x", ep.Bus, ep.Recipient)
		endpoints[key] = bus.Endpoint(uint8(ep.Priority))
		l.Info("endpoint_configured", "bus", ep.Bus, "recipient", ep.Recipient, "priority", ep.Priority, "auto_repeat_us", ep.AutoRepeatUs)
	}
	return endpoints
}
