package maple

import "testing"

func TestEndpointSchedulerAddUsesFixedPriority(t *testing.T) {
	s := NewPrioritizedScheduler()
	ep := NewEndpointScheduler(s, 3)
	tr := &recordingTransmitter{}

	id := ep.Add(0, tr, NewMaplePacket(0x01, 0x20, 0x00, nil), false, 0, 0, 0)
	tx := s.PopNext(0)
	if tx == nil || tx.ID != id || tx.Priority != 3 {
		t.Fatalf("expected entry at priority 3, got %+v", tx)
	}
}

func TestEndpointSchedulerClampsPriority(t *testing.T) {
	ep := NewEndpointScheduler(NewPrioritizedScheduler(), 99)
	if ep.Priority() != MaxPriority {
		t.Fatalf("expected clamped priority %d, got %d", MaxPriority, ep.Priority())
	}
}

func TestEndpointSchedulerCancelAndCountOperateBusWide(t *testing.T) {
	s := NewPrioritizedScheduler()
	epHigh := NewEndpointScheduler(s, 0)
	epLow := NewEndpointScheduler(s, 5)
	tr := &recordingTransmitter{}

	epHigh.Add(0, tr, NewMaplePacket(0x01, 0x30, 0x00, nil), false, 0, 0, 0)
	epLow.Add(0, tr, NewMaplePacket(0x01, 0x30, 0x00, nil), false, 0, 0, 0)

	if n := epHigh.CountRecipients(0x30); n != 2 {
		t.Fatalf("expected endpoint count to see bus-wide entries, got %d", n)
	}
	if n := epLow.CancelByRecipient(0x30); n != 2 {
		t.Fatalf("expected endpoint cancel to affect bus-wide entries, got %d", n)
	}
}
