package maple

import "github.com/kstaniek/maple-host/internal/logging"

// DefaultResponseTimeoutUs bounds how long the bus driver waits for a
// response to start arriving after a write completes.
const DefaultResponseTimeoutUs = 1000

// MainNode is the per-bus pump from spec §4.6: it pops the next due
// Transmission from the bus's scheduler, drives the Bus Driver through a
// write/read cycle, dispatches the Transmitter callbacks, handles the
// resend opcode, and reinserts auto-repeat entries. One MainNode owns one
// BusDriver and polls it from a single goroutine (spec §5: "the pump is a
// tight polling loop").
type MainNode struct {
	Bus               *BusDriver
	Scheduler         *PrioritizedScheduler
	Timing            BitTiming
	ResponseTimeoutUs uint64

	// Stats, when set, receives diagnostic counters for every dispatched
	// outcome (see internal/maple/stats.go).
	Stats *Stats

	// singleSender, when set, enables the single-sender shortcut (spec
	// §4.6): clients may post packets without knowing their port
	// assignment, and the pump fills in sender/recipient addressing.
	singleSender   *uint8
	singleSenderOK bool

	current        *Transmission
	lastSentPacket MaplePacket
	haveLastSent   bool
}

// NewMainNode constructs a pump bound to bus and scheduler.
func NewMainNode(bus *BusDriver, scheduler *PrioritizedScheduler, timing BitTiming) *MainNode {
	return &MainNode{
		Bus:               bus,
		Scheduler:         scheduler,
		Timing:            timing,
		ResponseTimeoutUs: DefaultResponseTimeoutUs,
	}
}

// SetSingleSender enables the single-sender shortcut with the given fixed
// sender address.
func (m *MainNode) SetSingleSender(addr uint8) {
	a := addr
	m.singleSender = &a
	m.singleSenderOK = true
}

// Tick runs one pump cycle: if idle, it tries to start the next due
// Transmission; if a Transmission is in flight, it polls the bus driver and
// dispatches terminal outcomes. Callers poll Tick continuously with an
// advancing monotonic clock (e.g. NowMicros()).
func (m *MainNode) Tick(now uint64) {
	if m.current == nil {
		m.startNext(now)
		return
	}
	status := m.Bus.ProcessEvents(now)
	if !status.Phase.Terminal() {
		return
	}
	m.handleTerminal(status, now)
}

func (m *MainNode) startNext(now uint64) {
	if m.Bus.Phase() != PhaseIdle {
		return
	}
	tx := m.Scheduler.PopNext(now)
	if tx == nil {
		return
	}
	m.applySingleSenderShortcut(tx)

	m.current = tx
	tx.Transmitter.TxStarted(tx)
	if m.Stats != nil {
		m.Stats.txStarted.Add(1)
	}
	m.lastSentPacket = tx.Packet
	m.haveLastSent = true

	if !m.Bus.Write(tx.Packet, tx.ExpectResponse, m.ResponseTimeoutUs, DelayDef{}) {
		m.fail(tx, true, false, ReasonTimeout, now)
	}
}

func (m *MainNode) handleTerminal(status Status, now uint64) {
	tx := m.current
	switch status.Phase {
	case PhaseWriteComplete:
		m.complete(tx, MaplePacket{}, now)
	case PhaseReadComplete:
		if status.Packet.Frame.Command == ReservedCommandResendRequest && m.haveLastSent {
			if m.Stats != nil {
				m.Stats.resends.Add(1)
			}
			m.resend()
			return
		}
		m.complete(tx, status.Packet, now)
	case PhaseWriteFailed:
		m.fail(tx, true, false, status.Reason, now)
	case PhaseReadFailed:
		m.fail(tx, false, true, status.Reason, now)
	}
}

func (m *MainNode) fail(tx *Transmission, writeFailed, readFailed bool, reason FailureReason, now uint64) {
	logging.L().Warn("maple_tx_failed", "bus", m.Bus.Name, "tx_id", tx.ID,
		"write_failed", writeFailed, "read_failed", readFailed, "reason", reason.String())
	tx.Transmitter.TxFailed(writeFailed, readFailed, tx)
	if m.Stats != nil {
		m.Stats.txFailed.Add(1)
		m.Stats.recordFailure(reason)
	}
	m.current = nil
	m.maybeAutoRepeat(tx, now)
}

func (m *MainNode) complete(tx *Transmission, response MaplePacket, now uint64) {
	tx.Transmitter.TxComplete(response, tx)
	if m.Stats != nil {
		m.Stats.txComplete.Add(1)
	}
	m.current = nil
	m.maybeAutoRepeat(tx, now)
}

// resend retransmits the last buffered packet verbatim without consulting
// the scheduler (spec §4.6.3, §7, testable scenario S6).
func (m *MainNode) resend() {
	logging.L().Debug("maple_resend", "bus", m.Bus.Name, "tx_id", m.current.ID)
	m.Bus.Write(m.lastSentPacket, m.current.ExpectResponse, m.ResponseTimeoutUs, DelayDef{})
}

func (m *MainNode) maybeAutoRepeat(tx *Transmission, now uint64) {
	if tx.AutoRepeatUs == 0 {
		return
	}
	if tx.AutoRepeatEndUs != 0 && now >= tx.AutoRepeatEndUs {
		return
	}
	if tx.Canceled() {
		logging.L().Debug("maple_autorepeat_skipped", "bus", m.Bus.Name, "tx_id", tx.ID, "error", ErrTxCanceled)
		return
	}
	tx.NextTxTime = ComputeNextTimeCadence(now, tx.AutoRepeatUs, tx.NextTxTime)
	if m.Stats != nil {
		m.Stats.autoRepeats.Add(1)
	}
	m.Scheduler.addExisting(tx)
}

// applySingleSenderShortcut rewrites the packet's sender address to the
// host's single configured sender, and folds the sender's upper two
// (bus/port) address bits into the recipient address, so clients may send
// without knowing their port assignment (spec §4.6).
func (m *MainNode) applySingleSenderShortcut(tx *Transmission) {
	if !m.singleSenderOK {
		return
	}
	addr := *m.singleSender
	tx.Packet.Frame.SenderAddr = addr
	const portBitsMask = 0xC0
	tx.Packet.Frame.RecipientAddr = (tx.Packet.Frame.RecipientAddr &^ portBitsMask) | (addr & portBitsMask)
}
