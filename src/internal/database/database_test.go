package database

import (
	"bytes"
	"testing"

	"gitlab.com/mipimipi/mpdgo/src/internal/config"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

func buildTestDB() *Database {
	db := New("/music", config.Symlinks{})
	root := db.root
	artist := root.child("artist")
	album := artist.child("album")
	album.Songs["track1.mp3"] = song.NewInDatabase("artist/album/track1.mp3", "artist/album", 1000, song.New())
	album.Songs["track2.mp3"] = song.NewInDatabase("artist/album/track2.mp3", "artist/album", 2000, song.New())
	return db
}

func TestGetSongAndDirectory(t *testing.T) {
	db := buildTestDB()

	s, err := db.GetSong("artist/album/track1.mp3")
	if err != nil {
		t.Fatalf("getsong: %v", err)
	}
	if s.URI != "artist/album/track1.mp3" {
		t.Fatalf("unexpected song: %+v", s)
	}

	d, err := db.GetDirectory("artist/album")
	if err != nil {
		t.Fatalf("getdirectory: %v", err)
	}
	if d.Path() != "artist/album" {
		t.Fatalf("unexpected path: %s", d.Path())
	}

	if _, err := db.GetSong("artist/album/missing.mp3"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWalkVisitsSongsInSortedOrder(t *testing.T) {
	db := buildTestDB()

	var uris []string
	err := db.Walk("", Visitor{
		OnSong: func(s *song.Song) error {
			uris = append(uris, s.URI)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(uris) != 2 || uris[0] != "artist/album/track1.mp3" || uris[1] != "artist/album/track2.mp3" {
		t.Fatalf("unexpected walk order: %v", uris)
	}
}

func TestWalkOnSongForDirectPath(t *testing.T) {
	db := buildTestDB()

	var got *song.Song
	err := db.Walk("artist/album/track1.mp3", Visitor{
		OnSong: func(s *song.Song) error {
			got = s
			return nil
		},
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if got == nil || got.URI != "artist/album/track1.mp3" {
		t.Fatalf("expected direct song visit, got %+v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := buildTestDB()

	var buf bytes.Buffer
	if err := db.Save(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := New("/music", config.Symlinks{})
	if err := loaded.Load(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	s, err := loaded.GetSong("artist/album/track1.mp3")
	if err != nil {
		t.Fatalf("getsong after load: %v", err)
	}
	if s.URI != "artist/album/track1.mp3" {
		t.Fatalf("unexpected loaded song: %+v", s)
	}

	d, err := loaded.GetDirectory("artist/album")
	if err != nil {
		t.Fatalf("getdirectory after load: %v", err)
	}
	if len(d.SortedSongNames()) != 2 {
		t.Fatalf("expected 2 songs, got %d", len(d.SortedSongNames()))
	}
}

func TestLoadRejectsMissingInfoBegin(t *testing.T) {
	db := New("/music", config.Symlinks{})
	if err := db.Load(bytes.NewBufferString("not info_begin\n")); err == nil {
		t.Fatal("expected error for missing info_begin")
	}
}
