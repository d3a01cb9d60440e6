package maple

import "sync/atomic"

// Transmission is a scheduled packet plus the metadata the scheduler and
// pump need to deliver it and, optionally, keep re-sending it (spec §3).
// A Transmission is shared between the scheduler's queue and the callbacks
// invoked on its Transmitter. After construction the pump rewrites
// NextTxTime (auto-repeat) and the packet's addressing (single-sender
// shortcut) only while it holds the popped Transmission; the canceled flag
// is accessed atomically so cancellation from a producer goroutine never
// races the pump.
type Transmission struct {
	ID          uint32
	Priority    uint8
	NextTxTime  uint64
	Packet      MaplePacket
	Transmitter Transmitter

	ExpectResponse        bool
	ExpectedResponseWords uint32

	AutoRepeatUs    uint64
	AutoRepeatEndUs uint64

	canceled atomic.Bool
}

// Canceled reports whether this Transmission has been marked canceled.
func (t *Transmission) Canceled() bool { return t.canceled.Load() }

// cancel marks the Transmission canceled; idempotent.
func (t *Transmission) cancel() { t.canceled.Store(true) }
