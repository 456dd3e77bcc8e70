package player

import (
	"math"

	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

// ReplayGainMode selects which tag field a song's replay-gain scale is
// computed from (spec.md §4.3).
type ReplayGainMode int

const (
	ReplayGainOff ReplayGainMode = iota
	ReplayGainTrack
	ReplayGainAlbum
)

// replayGainCeiling is the hard cap on the computed scale, regardless of
// preamp (spec.md §4.3).
const replayGainCeiling = 15.0

// SongReplayGainScale computes the once-per-song replay-gain scale from the
// song's tag gain/peak (selected by mode) and the configured preamp,
// clipped at replayGainCeiling. gainDB/peak of 0 (i.e. no tag info) yields
// a scale of 1 (no adjustment).
func SongReplayGainScale(mode ReplayGainMode, gainDB, peak, preampDB float64) float64 {
	if mode == ReplayGainOff {
		return 1
	}
	scale := math.Pow(10, (gainDB+preampDB)/20)
	if peak > 0 && scale*peak > 1 {
		scale = 1 / peak
	}
	if scale > replayGainCeiling {
		scale = replayGainCeiling
	}
	if scale < 0 {
		scale = 0
	}
	return scale
}

// replayGainScale folds the player's current software-volume setting
// together with the cached replay-gain scale for the playing song into one
// multiplier, per spec.md §4.3: replay_gain_scale * software_volume/1000.
func replayGainScale(songScale float64, softwareVolume int) float64 {
	return songScale * float64(softwareVolume) / 1000
}

// applyVolume multiplies every sample in data by scale, clipped to the
// sample format's range (spec.md §4.3 "Software volume, replay-gain,
// normalization").
func applyVolume(data []byte, format pipe.AudioFormat, scale float64) []byte {
	if scale == 1 {
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}
	width := format.SampleSize
	out := make([]byte, len(data))
	for i := 0; i+width <= len(data); i += width {
		v := decodeSample(data[i:i+width], width) * scale
		encodeSample(out[i:i+width], width, v)
	}
	return out
}

// replayGainGainForSong returns the gain/peak pair used for a song. It
// always returns the neutral 0dB/1.0 pair: the song's tag carries no
// replay-gain fields, and neither the tag nor mode is read here.
func replayGainGainForSong(mode ReplayGainMode, s *song.Song) (gainDB, peak float64) {
	_ = s
	_ = mode
	return 0, 1
}
