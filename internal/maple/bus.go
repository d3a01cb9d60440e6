package maple

import (
	"sync/atomic"

	"github.com/kstaniek/maple-host/internal/logging"
	"github.com/kstaniek/maple-host/internal/metrics"
)

// Phase is the Bus Driver's transmit/receive state (spec §3).
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseWriteInProgress
	PhaseWaitingForReadStart
	PhaseReadInProgress
	PhaseReadComplete
	PhaseWriteComplete
	PhaseReadFailed
	PhaseWriteFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseWriteInProgress:
		return "WRITE_IN_PROGRESS"
	case PhaseWaitingForReadStart:
		return "WAITING_FOR_READ_START"
	case PhaseReadInProgress:
		return "READ_IN_PROGRESS"
	case PhaseReadComplete:
		return "READ_COMPLETE"
	case PhaseWriteComplete:
		return "WRITE_COMPLETE"
	case PhaseReadFailed:
		return "READ_FAILED"
	case PhaseWriteFailed:
		return "WRITE_FAILED"
	default:
		return "UNKNOWN"
	}
}

func (p Phase) Terminal() bool {
	switch p {
	case PhaseReadComplete, PhaseWriteComplete, PhaseReadFailed, PhaseWriteFailed:
		return true
	default:
		return false
	}
}

// Status is what ProcessEvents reports back to the pump.
type Status struct {
	Phase  Phase
	Reason FailureReason
	Packet MaplePacket // valid when Phase == PhaseReadComplete
}

// BusDriver owns a single physical two-wire bus endpoint: it serializes a
// packet to line edges via a PHY, receives a response, and reports
// phase/failure via polled ProcessEvents (spec §4.4). Its Phase field is
// written by both the polling caller and by the PHY's interrupt callbacks;
// all such access goes through atomics so ISRs never block on a lock, per
// spec §5.
type BusDriver struct {
	// Name identifies this driver in log lines and is purely cosmetic;
	// Host.AddBus sets it to the registered bus name.
	Name string

	phy    PHY
	timing BitTiming

	phase        atomic.Int32
	procKillTime atomic.Uint64

	expectResponse    atomic.Bool
	responseTimeoutUs atomic.Uint64

	// lastWordCount/lastWordTime are read-modify-write only from
	// ProcessEvents, which is only ever called from the single pump
	// goroutine, so they need no synchronization of their own.
	lastWordCount int
	lastWordTime  uint64
}

// NewBusDriver constructs a driver idle and ready to write or read.
func NewBusDriver(phy PHY, timing BitTiming) *BusDriver {
	return &BusDriver{phy: phy, timing: timing}
}

// Phase returns the current bus phase.
func (b *BusDriver) Phase() Phase { return Phase(b.phase.Load()) }

func (b *BusDriver) setPhase(p Phase) { b.phase.Store(int32(p)) }

// lineCheck busy-polls both lines for the configured open-line window,
// aborting as soon as either line reads low.
func (b *BusDriver) lineCheck() bool {
	start := NowMicros()
	for {
		if !b.phy.LinesHigh() {
			return false
		}
		if NowMicros()-start >= b.timing.OpenLineCheckTimeUs {
			return true
		}
	}
}

// Write builds the wire buffer for packet and hands it to the PHY,
// optionally pre-arming a response read. It fails (returns false) if the
// bus is not idle or the pre-write line check fails; phase is left
// unchanged in that case (spec §4.4).
func (b *BusDriver) Write(packet MaplePacket, autostartRead bool, readTimeoutUs uint64, delay DelayDef) bool {
	if b.Phase() != PhaseIdle {
		logging.L().Debug("maple_bus_busy", "bus", b.Name, "phase", b.Phase().String())
		metrics.IncError(mapErrToMetric(ErrBusBusy))
		return false
	}
	if !b.lineCheck() {
		logging.L().Warn("maple_line_check_failed", "bus", b.Name)
		metrics.IncError(mapErrToMetric(ErrLineCheckFailed))
		return false
	}

	buf := buildWriteBuffer(packet, delay)
	b.expectResponse.Store(autostartRead)
	b.responseTimeoutUs.Store(readTimeoutUs)

	b.phy.SetDirection(true)
	if autostartRead {
		b.phy.ArmRX(true)
	}
	if err := b.phy.SubmitTX(buf); err != nil {
		return false
	}
	b.lastWordCount = -1
	b.setPhase(PhaseWriteInProgress)
	deadline := b.timing.WriteDeadlineUs(buf.TotalBits) + buf.chunkDelayTotalUs()
	b.procKillTime.Store(NowMicros() + deadline)
	return true
}

// StartRead arms the RX side for an unsolicited read (not preceded by a
// write on this driver), e.g. when operating as a responding peripheral.
func (b *BusDriver) StartRead(readTimeoutUs uint64) bool {
	if b.Phase() != PhaseIdle {
		return false
	}
	b.phy.SetDirection(false)
	b.phy.ArmRX(false)
	b.lastWordCount = -1
	b.setPhase(PhaseWaitingForReadStart)
	if readTimeoutUs == NoTimeout {
		b.procKillTime.Store(NoTimeout)
	} else {
		b.procKillTime.Store(NowMicros() + readTimeoutUs)
	}
	return true
}

// HandleTXEnd is the TX near-end interrupt: called by the PHY just as its
// program reaches the end sequence. ISRs only mutate phase and timestamps;
// the heavy validation lives in ProcessEvents (spec §4.4).
func (b *BusDriver) HandleTXEnd() {
	if b.expectResponse.Load() {
		b.phy.SetDirection(false)
		b.phy.ArmRX(true)
		b.setPhase(PhaseWaitingForReadStart)
		timeout := b.responseTimeoutUs.Load()
		if timeout == NoTimeout {
			b.procKillTime.Store(NoTimeout)
		} else {
			b.procKillTime.Store(NowMicros() + timeout)
		}
	} else {
		b.setPhase(PhaseWriteComplete)
	}
}

// HandleRXStart is the RX start-seen interrupt.
func (b *BusDriver) HandleRXStart() {
	b.setPhase(PhaseReadInProgress)
}

// HandleRXEnd is the RX end-seen interrupt.
func (b *BusDriver) HandleRXEnd() {
	b.phy.StopRX()
	b.setPhase(PhaseReadComplete)
}

// ProcessEvents is polled by the owner to advance the state machine and
// surface terminal outcomes (spec §4.4). Non-terminal phases other than
// READ_IN_PROGRESS/WAITING_FOR_READ_START/WRITE_IN_PROGRESS are returned
// unchanged.
func (b *BusDriver) ProcessEvents(now uint64) Status {
	switch b.Phase() {
	case PhaseReadComplete:
		return b.finishRead()
	case PhaseWriteComplete:
		b.setPhase(PhaseIdle)
		return Status{Phase: PhaseWriteComplete}
	case PhaseReadInProgress:
		return b.pollReadInProgress(now)
	case PhaseWaitingForReadStart:
		if now >= b.procKillTime.Load() {
			b.phy.StopRX()
			return b.terminate(PhaseReadFailed, ReasonTimeout)
		}
		return Status{Phase: PhaseWaitingForReadStart}
	case PhaseWriteInProgress:
		if now >= b.procKillTime.Load() {
			b.phy.StopTX()
			b.phy.StopRX()
			b.phy.SetDirection(false)
			return b.terminate(PhaseWriteFailed, ReasonTimeout)
		}
		return Status{Phase: PhaseWriteInProgress}
	default:
		return Status{Phase: b.Phase()}
	}
}

// pollReadInProgress implements the inter-word silence / overflow watchdog.
// procKillTime is deliberately ignored here: only inter-word silence and
// buffer overflow end an in-progress read (spec §4.4).
func (b *BusDriver) pollReadInProgress(now uint64) Status {
	words, residual := b.phy.ReadRX()
	if residual == 0 {
		return b.terminate(PhaseReadFailed, ReasonBufferOverflow)
	}
	n := len(words)
	if n != b.lastWordCount {
		b.lastWordCount = n
		b.lastWordTime = now
		return Status{Phase: PhaseReadInProgress}
	}
	if now-b.lastWordTime >= b.timing.InterWordReadTimeoutUs {
		b.phy.StopRX()
		return b.terminate(PhaseReadFailed, ReasonTimeout)
	}
	return Status{Phase: PhaseReadInProgress}
}

func (b *BusDriver) finishRead() Status {
	words, residual := b.phy.ReadRX()
	b.lastWordCount = 0
	if residual == 0 {
		logging.L().Debug("maple_rx_overflow", "bus", b.Name, "words", len(words))
		return b.terminate(PhaseReadFailed, ReasonBufferOverflow)
	}
	if len(words) < 2 {
		logging.L().Debug("maple_rx_missing_data", "bus", b.Name, "words", len(words))
		return b.terminate(PhaseReadFailed, ReasonMissingData)
	}
	frame := FrameFromWord(words[0])
	length := int(frame.Length)
	if length > len(words)-2 {
		logging.L().Debug("maple_rx_missing_data", "bus", b.Name, "want", length, "have", len(words)-2)
		return b.terminate(PhaseReadFailed, ReasonMissingData)
	}
	var pkt MaplePacket
	pkt.Set(words, 1+length)
	computed := pkt.CRC()
	received := uint8(words[len(words)-1])
	if computed != received {
		logging.L().Debug("maple_crc_mismatch", "bus", b.Name, "computed", computed, "received", received)
		return b.terminate(PhaseReadFailed, ReasonCRCInvalid)
	}
	b.setPhase(PhaseIdle)
	return Status{Phase: PhaseReadComplete, Packet: pkt}
}

// terminate resets phase to IDLE (the owner has now consumed the terminal
// outcome), logs and classifies the reason for Prometheus, and returns the
// terminal Status describing what happened.
func (b *BusDriver) terminate(terminal Phase, reason FailureReason) Status {
	b.setPhase(PhaseIdle)
	if err := reasonError(reason); err != nil {
		logging.L().Warn("maple_bus_terminal", "bus", b.Name, "phase", terminal.String(), "reason", reason.String())
		metrics.IncError(mapErrToMetric(err))
	}
	return Status{Phase: terminal, Reason: reason}
}
