package maple

import "sync"

// MaxPriority is the highest (least urgent) priority level a
// PrioritizedScheduler accepts; priorities run 0 (highest) through
// MaxPriority inclusive.
const MaxPriority = 7

// PrioritizedScheduler is the per-bus multi-queue scheduler from spec
// §4.2: one ordered partition per priority level, entries within a
// partition ordered by NextTxTime ascending with FIFO tie-break. All
// mutation is serialized behind a single mutex, matching the teacher's
// hub.Hub locking style — add/popNext/cancel* are linearizable with
// respect to each other as spec §5 requires.
type PrioritizedScheduler struct {
	mu       sync.Mutex
	nextID   uint32
	schedule [MaxPriority + 1][]*Transmission
}

// NewPrioritizedScheduler constructs an empty scheduler with its id
// counter seeded at 1 (0 is never a valid Transmission id).
func NewPrioritizedScheduler() *PrioritizedScheduler {
	return &PrioritizedScheduler{nextID: 1}
}

// allocID returns the next monotonic id, skipping 0 on wraparound.
func (s *PrioritizedScheduler) allocID() uint32 {
	id := s.nextID
	s.nextID++
	if s.nextID == 0 {
		s.nextID = 1
	}
	return id
}

// AddParams bundles the arguments to Add so call sites stay readable.
type AddParams struct {
	Priority              uint8
	TxTime                uint64
	Transmitter           Transmitter
	Packet                MaplePacket
	ExpectResponse        bool
	ExpectedResponseWords uint32
	AutoRepeatUs          uint64
	AutoRepeatEndUs       uint64
}

// Add schedules a new Transmission and returns its id. A TxTime of
// TxTimeASAP is treated as due now-or-whenever-popNext is next called;
// any other value is used verbatim as the earliest eligible time.
func (s *PrioritizedScheduler) Add(p AddParams) uint32 {
	prio := clampPriority(p.Priority)
	tx := &Transmission{
		Priority:              prio,
		NextTxTime:            p.TxTime,
		Packet:                p.Packet,
		Transmitter:           p.Transmitter,
		ExpectResponse:        p.ExpectResponse,
		ExpectedResponseWords: p.ExpectedResponseWords,
		AutoRepeatUs:          p.AutoRepeatUs,
		AutoRepeatEndUs:       p.AutoRepeatEndUs,
	}

	s.mu.Lock()
	tx.ID = s.allocID()
	s.insertLocked(tx)
	s.mu.Unlock()
	return tx.ID
}

// addExisting re-inserts an already-constructed Transmission (used by the
// pump's auto-repeat reinsertion, which must preserve the original id).
func (s *PrioritizedScheduler) addExisting(tx *Transmission) {
	s.mu.Lock()
	s.insertLocked(tx)
	s.mu.Unlock()
}

func (s *PrioritizedScheduler) insertLocked(tx *Transmission) {
	q := s.schedule[tx.Priority]
	i := 0
	for i < len(q) && q[i].NextTxTime <= tx.NextTxTime {
		i++
	}
	q = append(q, nil)
	copy(q[i+1:], q[i:])
	q[i] = tx
	s.schedule[tx.Priority] = q
}

// PopNext scans priorities ascending (0 = highest) and returns the first
// partition's head whose NextTxTime <= now, removing canceled heads as it
// goes. Priority strictly dominates time; within a priority, time strictly
// dominates FIFO order (spec §4.2, testable property 2).
func (s *PrioritizedScheduler) PopNext(now uint64) *Transmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	for prio := range s.schedule {
		q := s.schedule[prio]
		for len(q) > 0 {
			head := q[0]
			if head.Canceled() {
				q = q[1:]
				s.schedule[prio] = q
				continue
			}
			if head.NextTxTime <= now {
				s.schedule[prio] = q[1:]
				return head
			}
			break
		}
	}
	return nil
}

// CancelByID marks and removes all entries with the given id (ordinarily
// at most one) and returns how many were affected. A Transmission already
// returned by PopNext is no longer in the schedule, so cancellation after
// delivery has no effect, matching spec §4.2/§5's "not yet delivered"
// contract.
func (s *PrioritizedScheduler) CancelByID(id uint32) int {
	return s.cancelWhere(func(tx *Transmission) bool { return tx.ID == id })
}

// CancelByRecipient cancels all entries addressed to addr.
func (s *PrioritizedScheduler) CancelByRecipient(addr uint8) int {
	return s.cancelWhere(func(tx *Transmission) bool { return tx.Packet.Frame.RecipientAddr == addr })
}

// CancelAll cancels every pending entry.
func (s *PrioritizedScheduler) CancelAll() int {
	return s.cancelWhere(func(*Transmission) bool { return true })
}

func (s *PrioritizedScheduler) cancelWhere(match func(*Transmission) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for prio := range s.schedule {
		q := s.schedule[prio]
		kept := q[:0]
		for _, tx := range q {
			if match(tx) {
				tx.cancel()
				count++
				continue
			}
			kept = append(kept, tx)
		}
		s.schedule[prio] = kept
	}
	return count
}

// CountRecipients reports how many pending (non-canceled) entries are
// addressed to addr, without removing them.
func (s *PrioritizedScheduler) CountRecipients(addr uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for prio := range s.schedule {
		for _, tx := range s.schedule[prio] {
			if !tx.Canceled() && tx.Packet.Frame.RecipientAddr == addr {
				count++
			}
		}
	}
	return count
}

// Depth reports the number of pending (non-canceled) entries across all
// priorities, for the scheduler-depth gauge in internal/metrics.
func (s *PrioritizedScheduler) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for prio := range s.schedule {
		for _, tx := range s.schedule[prio] {
			if !tx.Canceled() {
				count++
			}
		}
	}
	return count
}

func clampPriority(p uint8) uint8 {
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// ComputeNextTimeCadence returns the smallest value strictly greater than
// now that is congruent to offset modulo period (spec §4.2). Behavior is
// undefined (and this function guards with a panic-free fallback of
// now+1) when period == 0; callers must not rely on that fallback.
func ComputeNextTimeCadence(now, period, offset uint64) uint64 {
	if period == 0 {
		return now + 1
	}
	// Normalize to the canonical residue first: offset may already be
	// several periods ahead of now, in which case a smaller congruent
	// value between now and offset is the right answer, not offset itself.
	r := offset % period
	if now < r {
		return r
	}
	diff := now - r
	k := diff/period + 1
	return r + k*period
}
