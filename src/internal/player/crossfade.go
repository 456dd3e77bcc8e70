package player

import "gitlab.com/mipimipi/mpdgo/src/internal/pipe"

// computeXfadeChunks sizes the cross-fade window in chunks for a transition
// between outFmt (the outgoing song) and inFmt (the incoming song), capped
// at the pipe's spare capacity above BufferedBeforePlay (spec.md §4.3).
//
// Grounded on spec.md §4.3's cross-fade formula and
// original_source/src/player_thread.c's REFRESH_MARGIN sizing, computed
// once per transition rather than per loop iteration.
func computeXfadeChunks(cfg Config, outFmt, inFmt pipe.AudioFormat, p *pipe.Pipe) int {
	if cfg.CrossFadeSeconds <= 0 {
		return 0
	}
	if outFmt.SampleRate != inFmt.SampleRate || outFmt.Channels != inFmt.Channels {
		return 0
	}
	bytesPerSecond := outFmt.SampleRate * outFmt.FrameSize()
	if bytesPerSecond <= 0 {
		return 0
	}
	chunks := int(cfg.CrossFadeSeconds * float64(bytesPerSecond) / float64(pipe.ChunkSize))

	cap := p.Capacity() - cfg.BufferedBeforePlay
	if chunks > cap {
		chunks = cap
	}
	// If the incoming song hasn't produced that many chunks yet, shrink
	// silently to what is actually available (spec.md §9 open question:
	// this still counts as a transition for IDLE_PLAYER purposes).
	if available := p.Count(); chunks > available {
		chunks = available
	}
	if chunks < 0 {
		chunks = 0
	}
	return chunks
}

// mixCrossfade linearly cross-fades the outgoing chunk out (at relative
// position p within the xfadeChunks-long window) with the incoming chunk
// in, per spec.md §4.3: outgoing gain (xfadeChunks-p)/xfadeChunks, incoming
// gain p/xfadeChunks. Returns a new byte slice the size of the shorter of
// the two chunks' filled data.
func mixCrossfade(out, in *pipe.Chunk, p, xfadeChunks int) []byte {
	if xfadeChunks <= 0 {
		return out.Data[:out.Len]
	}
	n := out.Len
	if in.Len < n {
		n = in.Len
	}
	frame := out.Format.FrameSize()
	if frame <= 0 {
		frame = 1
	}
	outGain := float64(xfadeChunks-p) / float64(xfadeChunks)
	inGain := float64(p) / float64(xfadeChunks)

	mixed := make([]byte, n)
	sampleSize := out.Format.SampleSize
	for i := 0; i+sampleSize <= n; i += sampleSize {
		o := decodeSample(out.Data[i:i+sampleSize], sampleSize)
		in2 := decodeSample(in.Data[i:i+sampleSize], sampleSize)
		mixed0 := o*outGain + in2*inGain
		encodeSample(mixed[i:i+sampleSize], sampleSize, mixed0)
	}
	return mixed
}
