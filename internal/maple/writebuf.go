package maple

// DelayDef configures mid-packet pacing for long transfers (spec §4.4): the
// TX buffer is split into a first chunk of FirstWordChunk words, then
// further chunks of SecondWordChunk words, each chunk but the last followed
// by an idle period of DelayUs microseconds. A zero DelayUs disables
// chunking entirely.
type DelayDef struct {
	DelayUs         uint64
	FirstWordChunk  int
	SecondWordChunk int
}

// ChunkPlan is one pacing segment of a WriteBuffer: WordsInChunk words are
// submitted, then the state machine idles for DelayUs (0 on the final
// chunk).
type ChunkPlan struct {
	WordsInChunk int
	DelayUs      uint64
}

// WriteBuffer is the assembled, PHY-agnostic representation of a packet
// ready for transmission: the frame+payload words, the trailer CRC byte,
// the total on-wire bit length, and the chunk pacing plan.
type WriteBuffer struct {
	Words     []uint32
	CRC       uint8
	TotalBits uint32
	Chunks    []ChunkPlan
}

// buildWriteBuffer assembles packet into a WriteBuffer: header word then
// payload words (testable property 3's "header 4 bytes, then 4*length
// bytes of payload"), with the CRC computed over exactly those bytes.
func buildWriteBuffer(packet MaplePacket, delay DelayDef) WriteBuffer {
	words := make([]uint32, 0, 1+len(packet.Payload))
	words = append(words, packet.Frame.ToWord())
	words = append(words, packet.Payload...)
	return WriteBuffer{
		Words:     words,
		CRC:       packet.CRC(),
		TotalBits: packet.TotalBits(),
		Chunks:    planChunks(len(words), delay),
	}
}

// planChunks splits nWords into FirstWordChunk then SecondWordChunk-sized
// pieces, each but the last paced by DelayUs. With no delay configured, or
// when the buffer doesn't exceed the first chunk, the whole buffer goes out
// as one chunk.
func planChunks(nWords int, delay DelayDef) []ChunkPlan {
	if delay.DelayUs == 0 || delay.FirstWordChunk <= 0 || nWords <= delay.FirstWordChunk {
		return []ChunkPlan{{WordsInChunk: nWords, DelayUs: 0}}
	}

	first := delay.FirstWordChunk
	chunks := []ChunkPlan{{WordsInChunk: first, DelayUs: delay.DelayUs}}
	remaining := nWords - first

	second := delay.SecondWordChunk
	if second <= 0 {
		second = remaining
	}
	for remaining > 0 {
		n := second
		if n > remaining {
			n = remaining
		}
		remaining -= n
		d := delay.DelayUs
		if remaining == 0 {
			d = 0
		}
		chunks = append(chunks, ChunkPlan{WordsInChunk: n, DelayUs: d})
	}
	return chunks
}

func (b WriteBuffer) chunkDelayTotalUs() uint64 {
	var total uint64
	for _, c := range b.Chunks {
		total += c.DelayUs
	}
	return total
}
