package player

import (
	"math"
	"testing"

	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
)

func TestSongReplayGainScaleOffModeIsNeutral(t *testing.T) {
	if got := SongReplayGainScale(ReplayGainOff, 6, 0.5, 0); got != 1 {
		t.Fatalf("expected neutral scale 1, got %v", got)
	}
}

func TestSongReplayGainScaleAppliesGainAndPreamp(t *testing.T) {
	got := SongReplayGainScale(ReplayGainTrack, 0, 0, 6)
	want := math.Pow(10, 6.0/20)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSongReplayGainScaleClipsToPeak(t *testing.T) {
	// A large gain that would push scale*peak above 1 is clipped to 1/peak.
	got := SongReplayGainScale(ReplayGainTrack, 20, 0.5, 0)
	want := 1 / 0.5
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected peak-limited scale %v, got %v", want, got)
	}
}

func TestSongReplayGainScaleCapsAtCeiling(t *testing.T) {
	got := SongReplayGainScale(ReplayGainTrack, 1000, 0, 0)
	if got != replayGainCeiling {
		t.Fatalf("expected scale capped at %v, got %v", replayGainCeiling, got)
	}
}

func TestReplayGainScaleFoldsSoftwareVolume(t *testing.T) {
	got := replayGainScale(2.0, 500)
	if got != 1.0 {
		t.Fatalf("expected 2.0 * 500/1000 = 1.0, got %v", got)
	}
}

func TestApplyVolumeUnityScaleCopiesData(t *testing.T) {
	format := pipe.AudioFormat{SampleRate: 44100, Channels: 1, SampleSize: 2}
	data := []byte{0x01, 0x02, 0x03, 0x04}
	out := applyVolume(data, format, 1)
	for i := range data {
		if out[i] != data[i] {
			t.Fatalf("expected unity scale to preserve bytes, got %v want %v", out, data)
		}
	}
}

func TestApplyVolumeHalvesAmplitude(t *testing.T) {
	format := pipe.AudioFormat{SampleRate: 44100, Channels: 1, SampleSize: 2}
	data := make([]byte, 2)
	encodeSample(data, 2, 0.5)

	out := applyVolume(data, format, 0.5)
	got := decodeSample(out, 2)
	if math.Abs(got-0.25) > 0.01 {
		t.Fatalf("expected ~0.25 after halving, got %v", got)
	}
}
