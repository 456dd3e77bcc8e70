package pipe

import "sync/atomic"

// Pipe is a fixed-capacity ring of Chunks. The decoder worker is the sole
// producer (write/expand/chop); the player worker is the sole consumer
// (shift/skip). begin/end are absolute, ever-increasing chunk indices;
// the underlying slot is index%cap. No payload lock is used — only the
// begin/end cursors carry the release/acquire pairing spec.md §5 requires,
// so a chunk's contents are coherent by the time its cursor advance is
// observed by the other side.
type Pipe struct {
	chunks []Chunk
	cap    int

	begin atomic.Int64 // oldest valid absolute index; owned by the consumer
	end   atomic.Int64 // next-to-write absolute index; owned by the producer
	tail  int64        // absolute index tailSlot last handed out; producer-only

	lazy bool // set once pre-buffering completes (spec.md §4.3 step 2)

	// PlayerWake and DecoderWake are non-blocking, capacity-1 signal
	// channels the pipe uses to wake the other side on the transitions
	// spec.md §4.3 names explicitly.
	PlayerWake  chan struct{}
	DecoderWake chan struct{}
}

// New creates a pipe with room for capacity chunks.
func New(capacity int) *Pipe {
	if capacity < 2 {
		capacity = 2
	}
	return &Pipe{
		chunks:      make([]Chunk, capacity),
		cap:         capacity,
		PlayerWake:  make(chan struct{}, 1),
		DecoderWake: make(chan struct{}, 1),
	}
}

func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Capacity returns the number of chunk slots in the ring.
func (p *Pipe) Capacity() int { return p.cap }

// Count returns the number of chunks currently committed (readable by the
// consumer), including a partially filled tail chunk only once it has been
// committed by a full expand.
func (p *Pipe) Count() int {
	return int(p.end.Load() - p.begin.Load())
}

// IsEmpty reports whether the pipe has no committed chunks.
func (p *Pipe) IsEmpty() bool { return p.Count() == 0 }

// IsFull reports whether there is no room to start a new tail chunk.
func (p *Pipe) IsFull() bool { return p.Count() >= p.cap }

// SetLazy enables or disables lazy wake mode (spec.md §4.3 step 2: entered
// once pre-buffering completes).
func (p *Pipe) SetLazy(on bool) { p.lazy = on }

// tailSlot returns the chunk currently being written (at absolute index
// end), creating a fresh one if the ring just advanced past it.
func (p *Pipe) tailSlot() *Chunk {
	e := p.end.Load()
	c := &p.chunks[e%int64(p.cap)]
	if e != p.tail {
		p.tail = e
		c.Len = 0
	}
	return c
}

// Write returns a writable sub-slice of the current tail chunk's free
// space, along with the absolute index it belongs to, or ok=false when the
// ring is full. Callers must write whole PCM frames only.
func (p *Pipe) Write(format AudioFormat, timeMS int64, bitRate int) (buf []byte, ok bool) {
	if p.IsFull() {
		return nil, false
	}
	c := p.tailSlot()
	if c.Len == 0 {
		c.Format = format
		c.TimeMS = timeMS
		c.BitRate = bitRate
	}
	return c.Data[c.Len:], true
}

// Expand commits n bytes written into the slice Write returned. When the
// tail chunk fills, end is advanced and the player is woken iff lazy mode
// is off or the pipe was previously empty (spec.md §4.3).
func (p *Pipe) Expand(n int) {
	if n <= 0 {
		return
	}
	wasEmpty := p.IsEmpty()
	c := p.tailSlot()
	c.Len += n
	if c.Len >= ChunkSize {
		p.end.Add(1)
		if !p.lazy || wasEmpty {
			wake(p.PlayerWake)
		}
	}
}

// Shift releases the head chunk for reuse once the player has fully
// consumed it.
func (p *Pipe) Shift() {
	if p.IsEmpty() {
		return
	}
	p.begin.Add(1)
	wake(p.DecoderWake)
}

// Head returns the chunk at the head of the ring (the next one the player
// should consume) and whether the ring has one.
func (p *Pipe) Head() (*Chunk, bool) {
	if p.IsEmpty() {
		return nil, false
	}
	return &p.chunks[p.begin.Load()%int64(p.cap)], true
}

// At returns the chunk at the given absolute index, if it is currently
// within [begin, end).
func (p *Pipe) At(absolute int64) (*Chunk, bool) {
	if absolute < p.begin.Load() || absolute >= p.end.Load() {
		return nil, false
	}
	return &p.chunks[absolute%int64(p.cap)], true
}

// Skip drops n head chunks, used after a completed cross-fade (spec.md
// §4.3 step 5: "skip(xfade_chunks) to drop chunks already consumed during
// mixing").
func (p *Pipe) Skip(n int) {
	b, e := p.begin.Load(), p.end.Load()
	nb := b + int64(n)
	if nb > e {
		nb = e
	}
	p.begin.Store(nb)
}

// Chop truncates the ring from the given absolute index onward, used to
// cancel a queued-next song whose decoding has already begun.
func (p *Pipe) Chop(index int64) {
	e := p.end.Load()
	if index >= e {
		return
	}
	if index < p.begin.Load() {
		index = p.begin.Load()
	}
	p.chunks[index%int64(p.cap)].Len = 0
	p.end.Store(index)
}

// HeadIs reports whether the head of the ring is at absolute index i.
func (p *Pipe) HeadIs(i int64) bool { return p.begin.Load() == i }

// TailIndex returns the absolute index of the chunk currently being
// written (one past the last fully committed chunk).
func (p *Pipe) TailIndex() int64 { return p.end.Load() }

// Absolute converts a position relative to the current head into an
// absolute chunk index.
func (p *Pipe) Absolute(relative int) int64 { return p.begin.Load() + int64(relative) }

// Relative converts an absolute chunk index into a position relative to
// the current head.
func (p *Pipe) Relative(absolute int64) int { return int(absolute - p.begin.Load()) }

// Clear resets the pipe to empty, used when a song is stopped/dropped.
func (p *Pipe) Clear() {
	p.begin.Store(0)
	p.end.Store(0)
	for i := range p.chunks {
		p.chunks[i].Len = 0
	}
	p.lazy = false
}
