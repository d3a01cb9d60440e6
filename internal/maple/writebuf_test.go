package maple

import "testing"

// property 3: a write buffer is the frame word followed by the payload
// words, in that order, with no chunking when no delay is configured.
func TestBuildWriteBufferNoChunking(t *testing.T) {
	pkt := NewMaplePacket(0x01, 0x20, 0x00, []uint32{0x11, 0x22, 0x33})
	buf := buildWriteBuffer(pkt, DelayDef{})

	if len(buf.Words) != 4 {
		t.Fatalf("expected 4 words (1 header + 3 payload), got %d", len(buf.Words))
	}
	if buf.Words[0] != pkt.Frame.ToWord() {
		t.Fatalf("expected first word to be the frame header")
	}
	for i, w := range pkt.Payload {
		if buf.Words[i+1] != w {
			t.Fatalf("payload word %d mismatch: got %x want %x", i, buf.Words[i+1], w)
		}
	}
	if buf.CRC != pkt.CRC() {
		t.Fatalf("CRC mismatch: got %x want %x", buf.CRC, pkt.CRC())
	}
	if len(buf.Chunks) != 1 || buf.Chunks[0].WordsInChunk != 4 || buf.Chunks[0].DelayUs != 0 {
		t.Fatalf("expected single unchunked plan, got %+v", buf.Chunks)
	}
}

func TestPlanChunksSplitsLongBuffers(t *testing.T) {
	delay := DelayDef{DelayUs: 50, FirstWordChunk: 2, SecondWordChunk: 3}
	chunks := planChunks(8, delay)

	wantSizes := []int{2, 3, 3}
	if len(chunks) != len(wantSizes) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(wantSizes), len(chunks), chunks)
	}
	total := 0
	for i, c := range chunks {
		if c.WordsInChunk != wantSizes[i] {
			t.Fatalf("chunk %d size = %d, want %d", i, c.WordsInChunk, wantSizes[i])
		}
		total += c.WordsInChunk
		isLast := i == len(chunks)-1
		if isLast && c.DelayUs != 0 {
			t.Fatalf("expected final chunk to carry no trailing delay")
		}
		if !isLast && c.DelayUs != delay.DelayUs {
			t.Fatalf("expected non-final chunk delay %d, got %d", delay.DelayUs, c.DelayUs)
		}
	}
	if total != 8 {
		t.Fatalf("chunk sizes summed to %d, want 8", total)
	}
}

func TestPlanChunksSingleChunkWhenUnderFirstSize(t *testing.T) {
	delay := DelayDef{DelayUs: 50, FirstWordChunk: 10, SecondWordChunk: 3}
	chunks := planChunks(4, delay)
	if len(chunks) != 1 || chunks[0].WordsInChunk != 4 || chunks[0].DelayUs != 0 {
		t.Fatalf("expected one unchunked plan for a short buffer, got %+v", chunks)
	}
}

func TestChunkDelayTotalUs(t *testing.T) {
	buf := WriteBuffer{Chunks: []ChunkPlan{{WordsInChunk: 2, DelayUs: 10}, {WordsInChunk: 2, DelayUs: 20}, {WordsInChunk: 1, DelayUs: 0}}}
	if got := buf.chunkDelayTotalUs(); got != 30 {
		t.Fatalf("chunkDelayTotalUs() = %d, want 30", got)
	}
}
