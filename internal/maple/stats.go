package maple

import "sync/atomic"

// Stats holds local atomic counters mirroring the teacher's
// internal/metrics local-mirror pattern (metrics.Snap()): a cheap snapshot
// command parsers and other out-of-scope collaborators can poll without
// touching Prometheus.
type Stats struct {
	txStarted   atomic.Uint64
	txComplete  atomic.Uint64
	txFailed    atomic.Uint64
	crcFailures atomic.Uint64
	timeouts    atomic.Uint64
	overflows   atomic.Uint64
	resends     atomic.Uint64
	autoRepeats atomic.Uint64
}

// Snapshot is a point-in-time copy of Stats' counters.
type Snapshot struct {
	TxStarted   uint64
	TxComplete  uint64
	TxFailed    uint64
	CRCFailures uint64
	Timeouts    uint64
	Overflows   uint64
	Resends     uint64
	AutoRepeats uint64
}

// Snapshot returns a cheap copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		TxStarted:   s.txStarted.Load(),
		TxComplete:  s.txComplete.Load(),
		TxFailed:    s.txFailed.Load(),
		CRCFailures: s.crcFailures.Load(),
		Timeouts:    s.timeouts.Load(),
		Overflows:   s.overflows.Load(),
		Resends:     s.resends.Load(),
		AutoRepeats: s.autoRepeats.Load(),
	}
}

func (s *Stats) recordFailure(reason FailureReason) {
	switch reason {
	case ReasonCRCInvalid:
		s.crcFailures.Add(1)
	case ReasonTimeout:
		s.timeouts.Add(1)
	case ReasonBufferOverflow:
		s.overflows.Add(1)
	}
}
