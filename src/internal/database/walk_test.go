package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/mipimipi/mpdgo/src/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writefile %s: %v", path, err)
	}
}

func TestUpdateScansMusicDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "album"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(dir, "album", "track1.mp3"), "not-really-audio")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored, not an audio extension")

	db := New(dir, config.Symlinks{})
	id := db.Update("", false)
	if id == 0 {
		t.Fatal("expected non-zero job id")
	}

	select {
	case res := <-db.Results():
		if res.Err != nil {
			t.Fatalf("update failed: %v", res.Err)
		}
		if !res.Modified {
			t.Fatal("expected initial scan to report modified")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for update result")
	}

	s, err := db.GetSong("album/track1.mp3")
	if err != nil {
		t.Fatalf("getsong: %v", err)
	}
	if s.URI != "album/track1.mp3" {
		t.Fatalf("unexpected song uri: %s", s.URI)
	}
	if _, err := db.GetSong("notes.txt"); err != ErrNotFound {
		t.Fatalf("expected non-audio file to be skipped, got %v", err)
	}
}

func TestUpdatePurgesDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	songPath := filepath.Join(dir, "gone.mp3")
	writeFile(t, songPath, "x")

	db := New(dir, config.Symlinks{})
	db.Update("", false)
	res := <-db.Results()
	if res.Err != nil {
		t.Fatalf("first scan: %v", res.Err)
	}
	if _, err := db.GetSong("gone.mp3"); err != nil {
		t.Fatalf("expected song present before removal: %v", err)
	}

	if err := os.Remove(songPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	db.Update("", false)
	res = <-db.Results()
	if res.Err != nil {
		t.Fatalf("second scan: %v", res.Err)
	}
	if !res.Modified {
		t.Fatal("expected purge to report modified")
	}
	if _, err := db.GetSong("gone.mp3"); err != ErrNotFound {
		t.Fatalf("expected song to be purged, got %v", err)
	}
}

func TestMpdignoreExcludesMatchingEntries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".mpdignore"), "*.bak\nskip.mp3\n")
	writeFile(t, filepath.Join(dir, "keep.mp3"), "x")
	writeFile(t, filepath.Join(dir, "skip.bak"), "x")
	writeFile(t, filepath.Join(dir, "skip.mp3"), "x")

	db := New(dir, config.Symlinks{})
	db.Update("", false)
	res := <-db.Results()
	if res.Err != nil {
		t.Fatalf("scan: %v", res.Err)
	}

	if _, err := db.GetSong("keep.mp3"); err != nil {
		t.Fatalf("expected keep.mp3 present: %v", err)
	}
	if _, err := db.GetSong("skip.mp3"); err != ErrNotFound {
		t.Fatalf("expected skip.mp3 excluded by .mpdignore, got %v", err)
	}
}

func TestUpdateAssignsIncreasingJobIDs(t *testing.T) {
	dir := t.TempDir()
	db := New(dir, config.Symlinks{})

	id1 := db.Update("", false)
	id2 := db.Update("", false)
	if id1 == 0 || id2 == 0 || id2 <= id1 {
		t.Fatalf("expected strictly increasing job ids, got %d then %d", id1, id2)
	}

	deadline := time.After(5 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-db.Results():
		case <-deadline:
			t.Fatal("timed out draining jobs")
		}
	}
}
