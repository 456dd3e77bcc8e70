package pipe

import "testing"

var testFormat = AudioFormat{SampleRate: 44100, Channels: 2, SampleSize: 2}

func fillOneChunk(p *Pipe, fill byte) {
	buf, ok := p.Write(testFormat, 0, 0)
	if !ok {
		panic("pipe full during test setup")
	}
	for i := range buf[:ChunkSize] {
		buf[i] = fill
	}
	p.Expand(ChunkSize)
}

func TestWriteExpandCommitsWholeChunk(t *testing.T) {
	p := New(4)
	if !p.IsEmpty() {
		t.Fatal("new pipe should be empty")
	}
	fillOneChunk(p, 1)
	if p.IsEmpty() {
		t.Fatal("pipe should have one committed chunk")
	}
	if p.Count() != 1 {
		t.Fatalf("expected count 1, got %d", p.Count())
	}
}

func TestPartialExpandDoesNotCommit(t *testing.T) {
	p := New(4)
	buf, ok := p.Write(testFormat, 0, 0)
	if !ok {
		t.Fatal("expected room to write")
	}
	_ = buf
	p.Expand(ChunkSize / 2)
	if !p.IsEmpty() {
		t.Fatal("a partially filled tail chunk must not count as committed")
	}
}

func TestFullRingRejectsWrite(t *testing.T) {
	p := New(2)
	fillOneChunk(p, 1)
	fillOneChunk(p, 2)
	if !p.IsFull() {
		t.Fatal("expected ring to be full")
	}
	if _, ok := p.Write(testFormat, 0, 0); ok {
		t.Fatal("expected write to a full ring to fail")
	}
}

func TestShiftReleasesHeadFIFO(t *testing.T) {
	p := New(4)
	fillOneChunk(p, 1)
	fillOneChunk(p, 2)
	fillOneChunk(p, 3)

	head, ok := p.Head()
	if !ok || head.Data[0] != 1 {
		t.Fatalf("expected head chunk filled with 1, got ok=%v data=%v", ok, head)
	}
	p.Shift()
	head, ok = p.Head()
	if !ok || head.Data[0] != 2 {
		t.Fatalf("expected head chunk filled with 2 after shift, got ok=%v data=%v", ok, head)
	}
}

func TestSkipDropsMultipleHeadChunks(t *testing.T) {
	p := New(4)
	fillOneChunk(p, 1)
	fillOneChunk(p, 2)
	fillOneChunk(p, 3)

	p.Skip(2)
	if p.Count() != 1 {
		t.Fatalf("expected count 1 after skipping 2 of 3, got %d", p.Count())
	}
	head, ok := p.Head()
	if !ok || head.Data[0] != 3 {
		t.Fatalf("expected remaining head chunk filled with 3, got ok=%v data=%v", ok, head)
	}
}

func TestChopTruncatesFromIndex(t *testing.T) {
	p := New(4)
	fillOneChunk(p, 1)
	cutAt := p.TailIndex()
	fillOneChunk(p, 2)
	fillOneChunk(p, 3)

	p.Chop(cutAt)
	if p.Count() != 1 {
		t.Fatalf("expected count 1 after chop, got %d", p.Count())
	}
	if p.TailIndex() != cutAt {
		t.Fatalf("expected tail index %d after chop, got %d", cutAt, p.TailIndex())
	}
}

func TestAddressingHelpers(t *testing.T) {
	p := New(8)
	fillOneChunk(p, 1)
	fillOneChunk(p, 2)
	fillOneChunk(p, 3)

	if !p.HeadIs(0) {
		t.Fatal("expected head to be at absolute index 0")
	}
	if got := p.Relative(p.TailIndex()); got != 3 {
		t.Fatalf("expected tail at relative 3, got %d", got)
	}
	if got := p.Absolute(2); got != 2 {
		t.Fatalf("expected absolute(2) == 2 when head is at 0, got %d", got)
	}
	p.Shift()
	if got := p.Absolute(2); got != 3 {
		t.Fatalf("expected absolute(2) == 3 after one shift, got %d", got)
	}
}

func TestExpandWakesPlayerOnEmptyToNonEmptyTransition(t *testing.T) {
	p := New(4)
	p.SetLazy(true)
	buf, _ := p.Write(testFormat, 0, 0)
	_ = buf
	p.Expand(ChunkSize)

	select {
	case <-p.PlayerWake:
	default:
		t.Fatal("expected a player wake on the empty-to-non-empty transition even in lazy mode")
	}
}
