package maple

import "testing"

// fakebus_test.go scripts a fake PHY to return COMMAND_RESPONSE_REQUEST_RESEND
// repeatedly before finally responding normally, exercising the resend path
// (spec §4.6.3, scenario S6) across multiple pump cycles with Stats attached,
// mirroring the teacher's backend_test.go fake-device-injection style.

func TestFakeBusResendRetriesThenCompletes(t *testing.T) {
	var clock uint64
	SetClock(func() uint64 { return clock })
	defer SetClock(nil)

	phy := newFakePHY()
	pump, scheduler := newTestPump(phy)
	stats := &Stats{}
	pump.Stats = stats

	tr := &recordingTransmitter{}
	scheduler.Add(AddParams{
		Priority:       0,
		Transmitter:    tr,
		Packet:         NewMaplePacket(0x01, 0x20, 0x00, []uint32{0xAA}),
		ExpectResponse: true,
	})

	pump.Tick(clock)
	pump.Bus.HandleTXEnd() // WAITING_FOR_READ_START

	resend := NewMaplePacket(ReservedCommandResendRequest, 0x00, 0x20, nil)
	for i := 0; i < 2; i++ {
		phy.deliver(wireWords(resend))
		pump.Bus.HandleRXStart()
		pump.Bus.HandleRXEnd()
		pump.Tick(clock)
	}

	if tr.complete != 0 || tr.failed != 0 {
		t.Fatalf("expected transmission still in flight after two resends, got complete=%d failed=%d", tr.complete, tr.failed)
	}
	if got := stats.Snapshot().Resends; got != 2 {
		t.Fatalf("expected 2 recorded resends, got %d", got)
	}

	response := NewMaplePacket(0x02, 0x00, 0x20, []uint32{0xBEEF})
	phy.deliver(wireWords(response))
	pump.Bus.HandleRXStart()
	pump.Bus.HandleRXEnd()
	pump.Tick(clock)

	if tr.complete != 1 {
		t.Fatalf("expected the transmission to complete after the real response, got complete=%d", tr.complete)
	}
	if got := stats.Snapshot().TxComplete; got != 1 {
		t.Fatalf("expected TxComplete counter 1, got %d", got)
	}
}

func TestFakeBusResendPreservesOriginalPacket(t *testing.T) {
	var clock uint64
	SetClock(func() uint64 { return clock })
	defer SetClock(nil)

	phy := newFakePHY()
	pump, scheduler := newTestPump(phy)
	tr := &recordingTransmitter{}
	original := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0xCAFE})
	scheduler.Add(AddParams{Priority: 0, Transmitter: tr, Packet: original, ExpectResponse: true})

	pump.Tick(clock)
	pump.Bus.HandleTXEnd()

	resend := NewMaplePacket(ReservedCommandResendRequest, 0x00, 0x20, nil)
	phy.deliver(wireWords(resend))
	pump.Bus.HandleRXStart()
	pump.Bus.HandleRXEnd()
	pump.Tick(clock)

	last := phy.submitted[len(phy.submitted)-1]
	if last.Words[0] != original.Frame.ToWord() {
		t.Fatalf("expected resend to retransmit the original frame word, got %x want %x", last.Words[0], original.Frame.ToWord())
	}
}
