package database

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/mipimipi/mpdgo/src/internal/config"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

// ErrNotFound is returned when a path does not resolve to any directory or
// song in the tree.
var ErrNotFound = errors.New("database: not found")

// Visitor is the trio of callbacks Walk invokes for each tree member it
// descends into. Any non-nil error aborts the walk (spec.md §4.1).
type Visitor struct {
	OnDirectory func(*Directory) error
	OnSong      func(*song.Song) error
	OnPlaylist  func(dir *Directory, pl PlaylistMeta) error
}

// Database owns the in-memory directory tree and serializes all access to
// it behind a single read/write lock (spec.md §4.1 "Locking"; a sharded or
// per-subtree lock is not needed at this scale per spec.md §9).
type Database struct {
	mu   sync.RWMutex
	root *Directory

	musicDir string
	symlinks config.Symlinks

	jobsMu  sync.Mutex
	jobs    []updateJob
	nextJob uint32
	running bool
	results chan UpdateResult
}

// New creates an empty database rooted at musicDir.
func New(musicDir string, symlinks config.Symlinks) *Database {
	return &Database{root: newDirectory("", nil), musicDir: musicDir, symlinks: symlinks}
}

// GetRoot returns the tree root.
func (db *Database) GetRoot() *Directory {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.root
}

// resolveDir walks path components from the root, returning the directory
// node or false if any component is missing. Caller must hold db.mu.
func (db *Database) resolveDir(path string) (*Directory, bool) {
	d := db.root
	if path == "" {
		return d, true
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		next, ok := d.Dirs[part]
		if !ok {
			return nil, false
		}
		d = next
	}
	return d, true
}

// GetDirectory resolves a `/`-separated path to a directory node.
func (db *Database) GetDirectory(path string) (*Directory, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	d, ok := db.resolveDir(path)
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// GetSong resolves a `/`-separated path to a song.
func (db *Database) GetSong(path string) (*song.Song, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	i := strings.LastIndex(path, "/")
	dirPath, name := "", path
	if i >= 0 {
		dirPath, name = path[:i], path[i+1:]
	}
	d, ok := db.resolveDir(dirPath)
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := d.Songs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Walk performs a depth-first traversal starting at uri (root if empty),
// invoking v for every directory/song/playlist it visits. Any visitor
// error aborts the walk and is returned (spec.md §4.1).
//
// The lock is released before invoking visitor callbacks (they may block),
// and the directory's continued existence is revalidated after
// reacquiring it, per spec.md §5's revalidation requirement.
func (db *Database) Walk(uri string, v Visitor) error {
	db.mu.RLock()
	if s, ok := db.songAt(uri); ok {
		db.mu.RUnlock()
		if v.OnSong != nil {
			return v.OnSong(s)
		}
		return nil
	}
	d, ok := db.resolveDir(uri)
	db.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return db.walkDir(d, v)
}

func (db *Database) songAt(uri string) (*song.Song, bool) {
	i := strings.LastIndex(uri, "/")
	dirPath, name := "", uri
	if i >= 0 {
		dirPath, name = uri[:i], uri[i+1:]
	}
	d, ok := db.resolveDir(dirPath)
	if !ok {
		return nil, false
	}
	s, ok := d.Songs[name]
	return s, ok
}

func (db *Database) walkDir(d *Directory, v Visitor) error {
	if v.OnDirectory != nil {
		if err := v.OnDirectory(d); err != nil {
			return err
		}
	}

	db.mu.RLock()
	names := d.SortedSongNames()
	db.mu.RUnlock()
	for _, name := range names {
		db.mu.RLock()
		s, ok := d.Songs[name] // revalidated: name may have been purged
		db.mu.RUnlock()
		if !ok {
			continue
		}
		if v.OnSong != nil {
			if err := v.OnSong(s); err != nil {
				return err
			}
		}
	}

	if v.OnPlaylist != nil {
		db.mu.RLock()
		playlists := append([]PlaylistMeta(nil), d.Playlists...)
		db.mu.RUnlock()
		for _, pl := range playlists {
			if err := v.OnPlaylist(d, pl); err != nil {
				return err
			}
		}
	}

	db.mu.RLock()
	dirNames := d.SortedDirNames()
	db.mu.RUnlock()
	for _, name := range dirNames {
		db.mu.RLock()
		c, ok := d.Dirs[name]
		db.mu.RUnlock()
		if !ok {
			continue
		}
		if err := db.walkDir(c, v); err != nil {
			return err
		}
	}
	return nil
}
