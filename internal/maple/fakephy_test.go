package maple

import "sync"

// fakePHY is a software loopback PHY test double: SubmitTX stages bytes that
// a test can feed back in as an RX capture via deliver(), without touching
// any real hardware or timing. It lets bus_test.go and pump_test.go drive
// BusDriver/MainNode deterministically.
type fakePHY struct {
	mu sync.Mutex

	linesHigh bool
	direction bool
	armed     bool

	submitted  []WriteBuffer
	submitErr  error
	stopTXCnt  int
	stopRXCnt  int

	rxWords    []uint32
	rxResidual int
}

func newFakePHY() *fakePHY {
	return &fakePHY{linesHigh: true, rxResidual: RXCaptureCapacityWords}
}

func (f *fakePHY) LinesHigh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linesHigh
}

func (f *fakePHY) setLinesHigh(v bool) {
	f.mu.Lock()
	f.linesHigh = v
	f.mu.Unlock()
}

func (f *fakePHY) SetDirection(output bool) {
	f.mu.Lock()
	f.direction = output
	f.mu.Unlock()
}

func (f *fakePHY) SubmitTX(buf WriteBuffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, buf)
	return f.submitErr
}

func (f *fakePHY) StopTX() {
	f.mu.Lock()
	f.stopTXCnt++
	f.mu.Unlock()
}

func (f *fakePHY) ArmRX(preTrigger bool) {
	f.mu.Lock()
	f.armed = true
	f.rxWords = nil
	f.rxResidual = RXCaptureCapacityWords
	f.mu.Unlock()
}

func (f *fakePHY) StopRX() {
	f.mu.Lock()
	f.stopRXCnt++
	f.armed = false
	f.mu.Unlock()
}

func (f *fakePHY) ReadRX() (words []uint32, residual int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint32, len(f.rxWords))
	copy(out, f.rxWords)
	return out, f.rxResidual
}

// deliver stages words as though the hardware captured them, for the next
// ReadRX call; residual tracks remaining capacity.
func (f *fakePHY) deliver(words []uint32) {
	f.mu.Lock()
	f.rxWords = words
	f.rxResidual = RXCaptureCapacityWords - len(words)
	f.mu.Unlock()
}

// deliverOverflow marks the capture buffer as exhausted.
func (f *fakePHY) deliverOverflow() {
	f.mu.Lock()
	f.rxResidual = 0
	f.mu.Unlock()
}

// wireWords encodes packet as a response capture: frame word, payload
// words, then a trailer word whose low byte carries the CRC (this package's
// modeling convention for PHY.ReadRX's trailer word; see bus.go finishRead).
func wireWords(packet MaplePacket) []uint32 {
	words := make([]uint32, 0, 2+len(packet.Payload))
	words = append(words, packet.Frame.ToWord())
	words = append(words, packet.Payload...)
	words = append(words, uint32(packet.CRC()))
	return words
}
