package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/maple-host/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus gauges, one series per bus via the "bus" label. They mirror
// internal/maple.Stats.Snapshot, which is already a cumulative total, so
// each poll simply Sets the current value rather than computing a delta.
var (
	TxStarted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_tx_started_total",
		Help: "Total Transmissions started.",
	}, []string{"bus"})
	TxComplete = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_tx_complete_total",
		Help: "Total Transmissions that completed (with or without a response).",
	}, []string{"bus"})
	TxFailed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_tx_failed_total",
		Help: "Total Transmissions that failed terminally.",
	}, []string{"bus"})
	CRCFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_crc_failures_total",
		Help: "Total responses rejected for CRC mismatch.",
	}, []string{"bus"})
	Timeouts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_timeouts_total",
		Help: "Total write or read phases that hit their deadline.",
	}, []string{"bus"})
	Overflows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_rx_overflows_total",
		Help: "Total reads that exhausted the RX capture buffer.",
	}, []string{"bus"})
	Resends = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_resends_total",
		Help: "Total resend-request responses honored.",
	}, []string{"bus"})
	AutoRepeats = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_auto_repeats_total",
		Help: "Total Transmissions re-armed by their auto-repeat cadence.",
	}, []string{"bus"})
	SchedulerDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maple_scheduler_depth",
		Help: "Pending (non-canceled) Transmissions currently queued.",
	}, []string{"bus"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrHWBusOpen  = "hwbus_open"
	ErrHWBusWrite = "hwbus_write"
	ErrHWBusRead  = "hwbus_read"
	ErrMDNS       = "mdns"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on addr, using a new mux of its own.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, summed across all buses at the last poll, for
// cheap periodic logging without scraping Prometheus in-process.
var (
	localTxStarted   uint64
	localTxComplete  uint64
	localTxFailed    uint64
	localCRCFailures uint64
	localTimeouts    uint64
	localOverflows   uint64
	localResends     uint64
	localAutoRepeats uint64
	localErrors      uint64
)

// Snapshot is a cheap copy of the local mirrored counters.
type Snapshot struct {
	TxStarted   uint64
	TxComplete  uint64
	TxFailed    uint64
	CRCFailures uint64
	Timeouts    uint64
	Overflows   uint64
	Resends     uint64
	AutoRepeats uint64
	Errors      uint64
}

func Snap() Snapshot {
	return Snapshot{
		TxStarted:   atomic.LoadUint64(&localTxStarted),
		TxComplete:  atomic.LoadUint64(&localTxComplete),
		TxFailed:    atomic.LoadUint64(&localTxFailed),
		CRCFailures: atomic.LoadUint64(&localCRCFailures),
		Timeouts:    atomic.LoadUint64(&localTimeouts),
		Overflows:   atomic.LoadUint64(&localOverflows),
		Resends:     atomic.LoadUint64(&localResends),
		AutoRepeats: atomic.LoadUint64(&localAutoRepeats),
		Errors:      atomic.LoadUint64(&localErrors),
	}
}

// BusStats is what RecordBusStats publishes for one bus: the counters of
// internal/maple.Stats.Snapshot plus the bus scheduler's depth; named
// separately so internal/metrics has no import on internal/maple.
type BusStats struct {
	Bus                              string
	TxStarted, TxComplete, TxFailed  uint64
	CRCFailures, Timeouts, Overflows uint64
	Resends, AutoRepeats             uint64
	SchedulerDepth                   uint64
}

// RecordBusStats publishes every bus's cumulative counters to the per-bus
// Prometheus gauges, and folds their sum into the local mirror polled by
// Snap. Called once per metrics poll tick with every registered bus's
// snapshot together, so the cross-bus sum reflects one consistent instant.
func RecordBusStats(buses []BusStats) {
	var sum BusStats
	for _, s := range buses {
		TxStarted.WithLabelValues(s.Bus).Set(float64(s.TxStarted))
		TxComplete.WithLabelValues(s.Bus).Set(float64(s.TxComplete))
		TxFailed.WithLabelValues(s.Bus).Set(float64(s.TxFailed))
		CRCFailures.WithLabelValues(s.Bus).Set(float64(s.CRCFailures))
		Timeouts.WithLabelValues(s.Bus).Set(float64(s.Timeouts))
		Overflows.WithLabelValues(s.Bus).Set(float64(s.Overflows))
		Resends.WithLabelValues(s.Bus).Set(float64(s.Resends))
		AutoRepeats.WithLabelValues(s.Bus).Set(float64(s.AutoRepeats))
		SchedulerDepth.WithLabelValues(s.Bus).Set(float64(s.SchedulerDepth))

		sum.TxStarted += s.TxStarted
		sum.TxComplete += s.TxComplete
		sum.TxFailed += s.TxFailed
		sum.CRCFailures += s.CRCFailures
		sum.Timeouts += s.Timeouts
		sum.Overflows += s.Overflows
		sum.Resends += s.Resends
		sum.AutoRepeats += s.AutoRepeats
	}

	atomic.StoreUint64(&localTxStarted, sum.TxStarted)
	atomic.StoreUint64(&localTxComplete, sum.TxComplete)
	atomic.StoreUint64(&localTxFailed, sum.TxFailed)
	atomic.StoreUint64(&localCRCFailures, sum.CRCFailures)
	atomic.StoreUint64(&localTimeouts, sum.Timeouts)
	atomic.StoreUint64(&localOverflows, sum.Overflows)
	atomic.StoreUint64(&localResends, sum.Resends)
	atomic.StoreUint64(&localAutoRepeats, sum.AutoRepeats)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrHWBusOpen, ErrHWBusWrite, ErrHWBusRead, ErrMDNS} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
