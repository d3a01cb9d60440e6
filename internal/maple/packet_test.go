package maple

import "testing"

func TestFrameWordRoundTrip(t *testing.T) {
	f := Frame{Command: 0x01, RecipientAddr: 0x20, SenderAddr: 0x00, Length: 0x02}
	w := f.ToWord()
	got := FrameFromWord(w)
	if got != f {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
}

func TestNewMaplePacketStampsLength(t *testing.T) {
	p := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0xAABBCCDD, 0x11223344})
	if p.Frame.Length != 2 {
		t.Fatalf("expected length 2, got %d", p.Frame.Length)
	}
	if !p.IsValid() {
		t.Fatalf("expected packet to be valid")
	}
}

func TestMaplePacketIsValidRejectsMismatch(t *testing.T) {
	p := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0x1})
	p.Frame.Length = 5
	if p.IsValid() {
		t.Fatalf("expected invalid packet with mismatched length")
	}
}

func TestMaplePacketTotalBits(t *testing.T) {
	p := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0x1, 0x2, 0x3})
	// 4 words (1 header + 3 payload) * 32 bits + 8-bit CRC trailer.
	want := uint32(4*32 + 8)
	if got := p.TotalBits(); got != want {
		t.Fatalf("TotalBits() = %d, want %d", got, want)
	}
}

func TestMaplePacketCRCDeterministic(t *testing.T) {
	p := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0xDEADBEEF})
	c1 := p.CRC()
	c2 := p.CRC()
	if c1 != c2 {
		t.Fatalf("CRC not deterministic: %x vs %x", c1, c2)
	}

	other := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0xDEADBEE0})
	if p.CRC() == other.CRC() {
		t.Fatalf("expected different payloads to produce different CRCs")
	}
}

func TestMaplePacketSetParsesAuthoritativeLength(t *testing.T) {
	frame := Frame{Command: 0x01, RecipientAddr: 0x20, SenderAddr: 0x00, Length: 2}
	words := []uint32{frame.ToWord(), 0x11111111, 0x22222222, 0x000000AB}

	var p MaplePacket
	p.Set(words, 3) // header + 2 payload words, trailer excluded by caller

	if p.Frame != frame {
		t.Fatalf("frame mismatch: got %+v want %+v", p.Frame, frame)
	}
	if len(p.Payload) != 2 || p.Payload[0] != 0x11111111 || p.Payload[1] != 0x22222222 {
		t.Fatalf("unexpected payload: %+v", p.Payload)
	}
}

func TestMaplePacketSetCapsLengthToAvailableWords(t *testing.T) {
	frame := Frame{Command: 0x01, Length: 10}
	words := []uint32{frame.ToWord(), 0x1, 0x2}

	var p MaplePacket
	p.Set(words, 3)

	if len(p.Payload) != 2 {
		t.Fatalf("expected payload capped at 2 words, got %d", len(p.Payload))
	}
}

func TestMaplePacketReset(t *testing.T) {
	p := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0x1})
	p.Reset()
	if p.Frame != (Frame{}) || p.Payload != nil {
		t.Fatalf("expected reset packet to be zero value, got %+v", p)
	}
}
