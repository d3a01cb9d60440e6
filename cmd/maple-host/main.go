package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/maple-host/internal/maple"
	"github.com/kstaniek/maple-host/internal/metrics"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("maple-host %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	top, err := loadTopology(cfg.configFile)
	if err != nil {
		l.Error("topology_load_error", "error", err)
		os.Exit(1)
	}

	h, cleanupBuses, err := initHost(cfg, l)
	if err != nil {
		l.Error("host_init_error", "error", err)
		metrics.IncError(metrics.ErrHWBusOpen)
		os.Exit(1)
	}
	applyTopology(h, top, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	startMetricsLogger(ctx, h, cfg.logMetricsEvery, l, &wg)
	runBuses(ctx, h, &wg)

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	if cfg.mdnsEnable {
		port := mdnsPortFrom(cfg.metricsAddr)
		cleanupMDNS, err := startMDNS(ctx, cfg, port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
		} else {
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", port)
			defer cleanupMDNS()
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	cleanupBuses()
	wg.Wait()
}

// runBuses starts one goroutine per registered bus, each driving its
// MainNode's Tick loop at a fixed polling cadence until ctx is canceled,
// mirroring spec §5's "the pump is a tight polling loop" run one goroutine
// per bus to avoid cross-bus locking.
func runBuses(ctx context.Context, h *maple.Host, wg *sync.WaitGroup) {
	const pumpInterval = 200 * time.Microsecond
	for _, bus := range h.Buses() {
		bus := bus
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTicker(pumpInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					bus.Pump.Tick(maple.NowMicros())
				}
			}
		}()
	}
}

// mdnsPortFrom extracts the numeric port from a "host:port" or ":port"
// listen address, defaulting to 0 if unparsable or empty.
func mdnsPortFrom(addr string) int {
	if addr == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, perr := strconv.Atoi(p); perr == nil {
			return pn
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if pn, perr := strconv.Atoi(addr[i+1:]); perr == nil {
			return pn
		}
	}
	return 0
}
