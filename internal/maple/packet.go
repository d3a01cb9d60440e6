// Package maple implements the host-side Maple Bus transport stack: packet
// framing, the priority scheduler, the bus driver state machine, and the
// per-endpoint pump that drives them.
package maple

// Frame is the 4-byte Maple packet header, held as four separate fields but
// transmitted packed into a single 32-bit word, command byte first.
type Frame struct {
	Command       uint8
	RecipientAddr uint8
	SenderAddr    uint8
	Length        uint8
}

// FrameFromWord unpacks a frame word (command[31:24], recipient[23:16],
// sender[15:8], length[7:0]) into its four fields.
func FrameFromWord(w uint32) Frame {
	return Frame{
		Command:       uint8(w >> 24),
		RecipientAddr: uint8(w >> 16),
		SenderAddr:    uint8(w >> 8),
		Length:        uint8(w),
	}
}

// ToWord packs the frame back into its wire word.
func (f Frame) ToWord() uint32 {
	return uint32(f.Command)<<24 | uint32(f.RecipientAddr)<<16 | uint32(f.SenderAddr)<<8 | uint32(f.Length)
}

func defaultFrame() Frame { return Frame{} }

// MaplePacket is an immutable-after-build value carrying a frame header and
// its payload words. Validity requires Frame.Length to equal len(Payload).
type MaplePacket struct {
	Frame   Frame
	Payload []uint32
}

// NewMaplePacket builds a packet and stamps Frame.Length from the payload.
func NewMaplePacket(command, recipient, sender uint8, payload []uint32) MaplePacket {
	if len(payload) > 255 {
		payload = payload[:255]
	}
	return MaplePacket{
		Frame: Frame{
			Command:       command,
			RecipientAddr: recipient,
			SenderAddr:    sender,
			Length:        uint8(len(payload)),
		},
		Payload: payload,
	}
}

// IsValid reports whether the frame's declared length matches the payload
// actually carried, and that the length fits the protocol's 8-bit field.
func (p MaplePacket) IsValid() bool {
	return int(p.Frame.Length) == len(p.Payload) && p.Frame.Length <= 255
}

// TotalBits is the on-wire bit length: header + payload words (32 bits each)
// plus the trailing 8-bit CRC.
func (p MaplePacket) TotalBits() uint32 {
	return uint32(1+len(p.Payload))*32 + 8
}

// Reset returns the packet to an empty, default-framed state.
func (p *MaplePacket) Reset() {
	p.Frame = defaultFrame()
	p.Payload = nil
}

// Set parses a raw received frame: words[0] is the frame word, words[1:n]
// are payload. The frame's Length field is authoritative for how many of the
// n-1 available words are payload, capped at n-1.
func (p *MaplePacket) Set(words []uint32, n int) {
	if n <= 0 || len(words) == 0 {
		p.Reset()
		return
	}
	if n > len(words) {
		n = len(words)
	}
	p.Frame = FrameFromWord(words[0])
	avail := n - 1
	length := int(p.Frame.Length)
	if length > avail {
		length = avail
	}
	if length <= 0 {
		p.Payload = nil
		return
	}
	p.Payload = make([]uint32, length)
	copy(p.Payload, words[1:1+length])
}

// CRC computes the 8-bit XOR checksum over every byte of the header and
// payload words, each word transmitted most-significant-byte first.
func (p MaplePacket) CRC() uint8 {
	var c uint8
	c = xorWordBytes(c, p.Frame.ToWord())
	for _, w := range p.Payload {
		c = xorWordBytes(c, w)
	}
	return c
}

func xorWordBytes(acc uint8, w uint32) uint8 {
	acc ^= uint8(w >> 24)
	acc ^= uint8(w >> 16)
	acc ^= uint8(w >> 8)
	acc ^= uint8(w)
	return acc
}
