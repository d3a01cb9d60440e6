package hwbus

import (
	"bytes"
	"testing"

	"github.com/kstaniek/maple-host/internal/maple"
)

// buildFrame assembles the same preamble/count/words/CRC/checksum layout
// SubmitTX writes, for feeding straight into drain.
func buildFrame(words []uint32, crc uint32) []byte {
	var buf bytes.Buffer
	buf.Write(wirePreamble)
	buf.WriteByte(byte(len(words) + 1))
	for _, w := range words {
		writeWordBE(&buf, w)
	}
	writeWordBE(&buf, crc)
	body := buf.Bytes()[len(wirePreamble):]
	buf.WriteByte(checksum(body))
	return buf.Bytes()
}

func newTestPHY() *SerialPHY {
	return &SerialPHY{rxResidual: 0}
}

func TestChecksumIsByteSum(t *testing.T) {
	if got := checksum([]byte{1, 2, 3}); got != 6 {
		t.Fatalf("checksum = %d, want 6", got)
	}
	if got := checksum([]byte{0xFF, 0x01}); got != 0x00 {
		t.Fatalf("checksum = %#x, want wraparound to 0", got)
	}
}

func TestWordBERoundTrip(t *testing.T) {
	var buf bytes.Buffer
	writeWordBE(&buf, 0xDEADBEEF)
	if got := readWordBE(buf.Bytes()); got != 0xDEADBEEF {
		t.Fatalf("readWordBE = %#x, want 0xDEADBEEF", got)
	}
}

func TestDrainDeliversArmedFrame(t *testing.T) {
	p := newTestPHY()
	p.ArmRX(false)

	frame := buildFrame([]uint32{0x11223344}, 0x01)
	acc := bytes.NewBuffer(frame)
	p.drain(acc)

	words, residual := p.ReadRX()
	if len(words) != 2 || words[0] != 0x11223344 || words[1] != 0x01 {
		t.Fatalf("unexpected delivered words: %#v", words)
	}
	if want := maple.RXCaptureCapacityWords - len(words); residual != want {
		t.Fatalf("residual = %d, want %d", residual, want)
	}
	if acc.Len() != 0 {
		t.Fatalf("expected frame fully consumed, %d bytes left", acc.Len())
	}
}

func TestDrainResyncsPastGarbagePrefix(t *testing.T) {
	p := newTestPHY()
	p.ArmRX(false)

	frame := buildFrame([]uint32{0xAABBCCDD}, 0x02)
	garbage := []byte{0x00, 0xFF, 0x5A, 0x10}
	acc := bytes.NewBuffer(append(garbage, frame...))
	p.drain(acc)

	words, _ := p.ReadRX()
	if len(words) != 2 || words[0] != 0xAABBCCDD {
		t.Fatalf("expected resync to recover the frame, got %#v", words)
	}
}

func TestDrainDropsFrameOnBadChecksum(t *testing.T) {
	p := newTestPHY()
	p.ArmRX(false)

	frame := buildFrame([]uint32{0x11223344}, 0x01)
	frame[len(frame)-1] ^= 0xFF // corrupt the trailing checksum byte

	acc := bytes.NewBuffer(frame)
	p.drain(acc)

	words, _ := p.ReadRX()
	if len(words) != 0 {
		t.Fatalf("expected no delivery on checksum mismatch, got %#v", words)
	}
}

func TestDrainIgnoresFrameWhenNotArmed(t *testing.T) {
	p := newTestPHY()
	// Deliberately not calling ArmRX: StopRX's default state.

	frame := buildFrame([]uint32{0x55667788}, 0x03)
	acc := bytes.NewBuffer(frame)
	p.drain(acc)

	words, _ := p.ReadRX()
	if len(words) != 0 {
		t.Fatalf("expected drain to discard the frame without delivering, got %#v", words)
	}
}

func TestDrainWaitsForIncompletePreamble(t *testing.T) {
	p := newTestPHY()
	p.ArmRX(false)

	acc := bytes.NewBuffer([]byte{0xA5}) // only half the preamble so far
	p.drain(acc)
	if acc.Len() != 1 {
		t.Fatalf("expected partial preamble left untouched, got %d bytes", acc.Len())
	}

	words, _ := p.ReadRX()
	if len(words) != 0 {
		t.Fatalf("expected no delivery before the frame completes, got %#v", words)
	}
}
