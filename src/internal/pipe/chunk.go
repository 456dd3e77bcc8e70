// Package pipe implements the music pipe: a fixed-capacity ring of
// fixed-size PCM chunks connecting the decoder worker (single producer) to
// the player worker (single consumer).
//
// Grounded on spec.md §4.3 "Music pipe contract" and §5's single-writer
// cursor ordering guarantee; there is no teacher analogue for a
// producer/consumer ring, so the concurrency primitives are chosen per
// spec.md §9's guidance to prefer channels for signalling and atomics for
// the cursors themselves.
package pipe

// ChunkSize is the fixed payload capacity of one chunk, in bytes. All
// appends write whole PCM frames; fragmented frames are never emitted.
const ChunkSize = 4096

// AudioFormat describes the PCM layout of the samples in a chunk.
type AudioFormat struct {
	SampleRate int
	Channels   int
	SampleSize int // bytes per sample, per channel
}

// FrameSize is the number of bytes in one PCM frame (one sample per
// channel).
func (f AudioFormat) FrameSize() int { return f.SampleSize * f.Channels }

// Chunk is one fixed-size slot of the ring.
type Chunk struct {
	Format  AudioFormat
	TimeMS  int64 // presentation timestamp of the first frame
	BitRate int
	Data    [ChunkSize]byte
	Len     int // bytes actually filled
}
