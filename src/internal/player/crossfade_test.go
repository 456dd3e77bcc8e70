package player

import (
	"testing"

	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
)

func TestComputeXfadeChunksZeroWhenDisabled(t *testing.T) {
	cfg := Config{CrossFadeSeconds: 0}
	format := pipe.AudioFormat{SampleRate: 44100, Channels: 2, SampleSize: 2}
	p := pipe.New(8)
	if got := computeXfadeChunks(cfg, format, format, p); got != 0 {
		t.Fatalf("expected 0 chunks when crossfade disabled, got %d", got)
	}
}

func TestComputeXfadeChunksZeroOnFormatMismatch(t *testing.T) {
	cfg := Config{CrossFadeSeconds: 2}
	out := pipe.AudioFormat{SampleRate: 44100, Channels: 2, SampleSize: 2}
	in := pipe.AudioFormat{SampleRate: 48000, Channels: 2, SampleSize: 2}
	p := pipe.New(8)
	if got := computeXfadeChunks(cfg, out, in, p); got != 0 {
		t.Fatalf("expected 0 chunks on format mismatch, got %d", got)
	}
}

func TestComputeXfadeChunksCapsAtPipeHeadroom(t *testing.T) {
	cfg := Config{CrossFadeSeconds: 1000, BufferedBeforePlay: 1}
	format := pipe.AudioFormat{SampleRate: 44100, Channels: 2, SampleSize: 2}
	p := pipe.New(4)
	for !p.IsFull() {
		buf, ok := p.Write(format, 0, 0)
		if !ok {
			break
		}
		p.Expand(len(buf))
	}
	got := computeXfadeChunks(cfg, format, format, p)
	if got > p.Capacity()-cfg.BufferedBeforePlay {
		t.Fatalf("expected chunks capped at pipe headroom, got %d", got)
	}
}

func TestMixCrossfadeAtMidpointAveragesSamples(t *testing.T) {
	format := pipe.AudioFormat{SampleRate: 44100, Channels: 1, SampleSize: 2}
	out := &pipe.Chunk{Format: format, Len: 2}
	in := &pipe.Chunk{Format: format, Len: 2}
	encodeSample(out.Data[:2], 2, 1.0)
	encodeSample(in.Data[:2], 2, -1.0)

	mixed := mixCrossfade(out, in, 5, 10)
	got := decodeSample(mixed, 2)
	if got < -0.1 || got > 0.1 {
		t.Fatalf("expected midpoint mix near 0, got %v", got)
	}
}

func TestMixCrossfadeAtStartIsAllOutgoing(t *testing.T) {
	format := pipe.AudioFormat{SampleRate: 44100, Channels: 1, SampleSize: 2}
	out := &pipe.Chunk{Format: format, Len: 2}
	in := &pipe.Chunk{Format: format, Len: 2}
	encodeSample(out.Data[:2], 2, 0.8)
	encodeSample(in.Data[:2], 2, -0.8)

	mixed := mixCrossfade(out, in, 0, 10)
	got := decodeSample(mixed, 2)
	if got < 0.7 {
		t.Fatalf("expected mix at p=0 to favor outgoing sample, got %v", got)
	}
}

func TestMixCrossfadeNoWindowReturnsOutgoingUnchanged(t *testing.T) {
	format := pipe.AudioFormat{SampleRate: 44100, Channels: 1, SampleSize: 2}
	out := &pipe.Chunk{Format: format, Len: 4}
	out.Data[0], out.Data[1], out.Data[2], out.Data[3] = 1, 2, 3, 4
	in := &pipe.Chunk{Format: format, Len: 4}

	mixed := mixCrossfade(out, in, 0, 0)
	if len(mixed) != 4 || mixed[0] != 1 || mixed[3] != 4 {
		t.Fatalf("expected unchanged outgoing data when xfadeChunks<=0, got %v", mixed)
	}
}
