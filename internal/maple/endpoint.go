package maple

import "github.com/kstaniek/maple-host/internal/logging"

// EndpointScheduler is a thin facade binding a fixed priority and forwarding
// to a shared PrioritizedScheduler for one logical endpoint (spec §4.3).
// Cancellation and recipient counts operate on the whole underlying
// schedule, not just this endpoint, because recipient addresses are
// globally unique on a bus.
type EndpointScheduler struct {
	scheduler *PrioritizedScheduler
	priority  uint8
}

// NewEndpointScheduler binds priority to the shared scheduler.
func NewEndpointScheduler(scheduler *PrioritizedScheduler, priority uint8) *EndpointScheduler {
	prio := clampPriority(priority)
	logging.L().Info("maple_endpoint_started", "priority", prio)
	return &EndpointScheduler{scheduler: scheduler, priority: prio}
}

// Add schedules packet at this endpoint's fixed priority.
func (e *EndpointScheduler) Add(txTime uint64, transmitter Transmitter, packet MaplePacket, expectResponse bool, expectedResponseWords uint32, autoRepeatUs, autoRepeatEndUs uint64) uint32 {
	return e.scheduler.Add(AddParams{
		Priority:              e.priority,
		TxTime:                txTime,
		Transmitter:           transmitter,
		Packet:                packet,
		ExpectResponse:        expectResponse,
		ExpectedResponseWords: expectedResponseWords,
		AutoRepeatUs:          autoRepeatUs,
		AutoRepeatEndUs:       autoRepeatEndUs,
	})
}

// CancelByID cancels a pending entry across the whole bus schedule.
func (e *EndpointScheduler) CancelByID(id uint32) int { return e.scheduler.CancelByID(id) }

// CancelByRecipient cancels all pending entries addressed to addr, across
// the whole bus schedule.
func (e *EndpointScheduler) CancelByRecipient(addr uint8) int {
	return e.scheduler.CancelByRecipient(addr)
}

// CountRecipients counts pending entries addressed to addr, across the
// whole bus schedule.
func (e *EndpointScheduler) CountRecipients(addr uint8) int {
	return e.scheduler.CountRecipients(addr)
}

// CancelAll cancels every pending entry on the underlying scheduler.
func (e *EndpointScheduler) CancelAll() int { return e.scheduler.CancelAll() }

// Priority returns this endpoint's fixed scheduling priority.
func (e *EndpointScheduler) Priority() uint8 { return e.priority }
