package statefile

import (
	"bytes"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := State{
		PlayState:    StatePlay,
		Current:      2,
		TimeSeconds:  37,
		Random:       true,
		Repeat:       true,
		Single:       false,
		Consume:      true,
		CrossFade:    5,
		MixRampDB:    -17.5,
		MixRampDelay: 0,
		SWVolume:     700,
		Playlist: []SongEntry{
			{Position: 0, URI: "a.mp3"},
			{Position: 1, URI: "b.flac", Priority: 9},
			{Position: -1, URI: "http://example.com/stream"},
		},
	}

	var buf bytes.Buffer
	if err := Save(&buf, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.PlayState != s.PlayState || got.Current != s.Current || got.TimeSeconds != s.TimeSeconds {
		t.Fatalf("scalar fields mismatch: got %+v", got)
	}
	if got.Random != s.Random || got.Repeat != s.Repeat || got.Single != s.Single || got.Consume != s.Consume {
		t.Fatalf("mode flags mismatch: got %+v", got)
	}
	if got.CrossFade != s.CrossFade || got.SWVolume != s.SWVolume {
		t.Fatalf("crossfade/volume mismatch: got %+v", got)
	}
	if len(got.Playlist) != len(s.Playlist) {
		t.Fatalf("expected %d playlist entries, got %d", len(s.Playlist), len(got.Playlist))
	}
	for i, e := range s.Playlist {
		if got.Playlist[i].URI != e.URI || got.Playlist[i].Position != e.Position || got.Playlist[i].Priority != e.Priority {
			t.Fatalf("entry %d mismatch: expected %+v, got %+v", i, e, got.Playlist[i])
		}
	}
}

func TestLoadIgnoresBlankLines(t *testing.T) {
	in := "state: stop\n\ncurrent: -1\n\nplaylist_begin\nplaylist_end\n"
	got, err := Load(bytes.NewBufferString(in))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PlayState != StateStop || got.Current != -1 {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestLoadRejectsMalformedPlaylistLine(t *testing.T) {
	in := "state: stop\nplaylist_begin\nnotaposition\nplaylist_end\n"
	if _, err := Load(bytes.NewBufferString(in)); err == nil {
		t.Fatal("expected error for malformed playlist line")
	}
}
