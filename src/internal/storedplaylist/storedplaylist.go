// Package storedplaylist implements mpdgo's `*.m3u` stored playlists,
// backing the `save`/`load`/`listplaylist`/`rm` command-table entries of
// spec.md §6. A stored playlist is a plain list of URIs, distinct from the
// live queue.
//
// Grounded on the teacher's content/playlist.go, which parses the same
// `*.m3u` files via github.com/ushis/m3u; mpdgo's on-disk format is the
// plain URI-per-line form of spec.md §6 (the teacher's richer EXTM3U
// titles have no wire counterpart in the MPD protocol, so Save emits the
// plain form rather than the teacher's title-carrying one).
package storedplaylist

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/ushis/m3u"
)

// ErrTooLarge is returned when writing would exceed the configured
// playlist_max_length (spec.md §6/§7 "playlist-max").
var ErrTooLarge = errors.New("storedplaylist: too large")

// ErrLoadFailed wraps a parse failure (spec.md §7 "playlist-load").
var ErrLoadFailed = errors.New("storedplaylist: load failed")

func pathFor(dir, name string) string {
	return filepath.Join(dir, name+".m3u")
}

// Load reads the stored playlist named name from dir and returns its URIs
// in order, parsed with github.com/ushis/m3u; there is no separate
// plain-line parser.
func Load(dir, name string) ([]string, error) {
	f, err := os.Open(pathFor(dir, name))
	if err != nil {
		return nil, errors.Wrapf(ErrLoadFailed, "%v", err)
	}
	defer f.Close()

	pl, err := m3u.Parse(f)
	if err != nil {
		return nil, errors.Wrapf(ErrLoadFailed, "%v", err)
	}
	uris := make([]string, 0, len(pl))
	for _, t := range pl {
		uri := strings.TrimSpace(t.Path)
		if uri != "" {
			uris = append(uris, uri)
		}
	}
	return uris, nil
}

// Save writes uris to the stored playlist named name in dir as the plain
// `#`-comment / URI-per-line format of spec.md §6. It fails with
// ErrTooLarge if len(uris) exceeds maxLen (playlist_max_length).
func Save(dir, name string, uris []string, maxLen int) error {
	if maxLen > 0 && len(uris) > maxLen {
		return ErrTooLarge
	}
	f, err := os.Create(pathFor(dir, name))
	if err != nil {
		return errors.Wrapf(err, "cannot create playlist '%s'", name)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, uri := range uris {
		if _, err := w.WriteString(strings.TrimSpace(uri) + "\n"); err != nil {
			return errors.Wrapf(err, "cannot write playlist '%s'", name)
		}
	}
	return w.Flush()
}

// Remove deletes the stored playlist named name from dir.
func Remove(dir, name string) error {
	if err := os.Remove(pathFor(dir, name)); err != nil {
		return errors.Wrapf(err, "cannot remove playlist '%s'", name)
	}
	return nil
}

// Rename renames a stored playlist.
func Rename(dir, from, to string) error {
	if err := os.Rename(pathFor(dir, from), pathFor(dir, to)); err != nil {
		return errors.Wrapf(err, "cannot rename playlist '%s' to '%s'", from, to)
	}
	return nil
}

// List returns the names (without the .m3u suffix) of every stored
// playlist in dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list playlist directory '%s'", dir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".m3u") {
			names = append(names, strings.TrimSuffix(e.Name(), ".m3u"))
		}
	}
	return names, nil
}
