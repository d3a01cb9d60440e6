package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/maple-host/internal/maple"
	"github.com/kstaniek/maple-host/internal/metrics"
)

// startMetricsLogger periodically publishes every bus's Stats snapshot to
// the Prometheus gauges and, if interval > 0, also logs the summed counters
// for deployments without a Prometheus scraper.
func startMetricsLogger(ctx context.Context, h *maple.Host, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	pollEvery := interval
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(pollEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				buses := h.Buses()
				stats := make([]metrics.BusStats, 0, len(buses))
				for _, b := range buses {
					s := b.Stats.Snapshot()
					stats = append(stats, metrics.BusStats{
						Bus:            b.Name,
						TxStarted:      s.TxStarted,
						TxComplete:     s.TxComplete,
						TxFailed:       s.TxFailed,
						CRCFailures:    s.CRCFailures,
						Timeouts:       s.Timeouts,
						Overflows:      s.Overflows,
						Resends:        s.Resends,
						AutoRepeats:    s.AutoRepeats,
						SchedulerDepth: uint64(b.Scheduler.Depth()),
					})
				}
				metrics.RecordBusStats(stats)
				if interval > 0 {
					snap := metrics.Snap()
					l.Info("metrics_snapshot",
						"tx_started", snap.TxStarted,
						"tx_complete", snap.TxComplete,
						"tx_failed", snap.TxFailed,
						"crc_failures", snap.CRCFailures,
						"timeouts", snap.Timeouts,
						"overflows", snap.Overflows,
						"resends", snap.Resends,
						"auto_repeats", snap.AutoRepeats,
						"errors", snap.Errors,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
