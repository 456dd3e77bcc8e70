package storedplaylist

import (
	"reflect"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	uris := []string{"song1.mp3", "sub/song2.flac", "http://example.com/stream"}

	if err := Save(dir, "mix", uris, 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(dir, "mix")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, uris) {
		t.Fatalf("expected %v, got %v", uris, got)
	}
}

func TestSaveRejectsOverMaxLength(t *testing.T) {
	dir := t.TempDir()
	uris := []string{"a.mp3", "b.mp3", "c.mp3"}

	if err := Save(dir, "mix", uris, 2); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestLoadMissingPlaylist(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, "nope"); err == nil {
		t.Fatal("expected error loading missing playlist")
	}
}

func TestRenameAndRemove(t *testing.T) {
	dir := t.TempDir()
	uris := []string{"a.mp3"}
	if err := Save(dir, "old", uris, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Rename(dir, "old", "new"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := Load(dir, "old"); err == nil {
		t.Fatal("expected old name to be gone after rename")
	}
	if _, err := Load(dir, "new"); err != nil {
		t.Fatalf("load renamed: %v", err)
	}
	if err := Remove(dir, "new"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := Load(dir, "new"); err == nil {
		t.Fatal("expected playlist to be gone after remove")
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, "alpha", []string{"a.mp3"}, 0); err != nil {
		t.Fatalf("save alpha: %v", err)
	}
	if err := Save(dir, "beta", []string{"b.mp3"}, 0); err != nil {
		t.Fatalf("save beta: %v", err)
	}

	names, err := List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["alpha"] || !found["beta"] {
		t.Fatalf("expected alpha and beta in %v", names)
	}
}
