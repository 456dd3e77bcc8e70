// Package database implements the mpdgo song database: an in-memory
// directory tree mapping URIs to song metadata, populated and kept current
// by a recursive filesystem walk with mtime-based incremental update and
// `.mpdignore` exclusion (spec.md §4.1).
//
// Grounded on the teacher's content.Content tree
// (gitlab.com/mipimipi/muserv/src/internal/content/content.go,
// hierarchies.go, object.go) for the parent/child wiring shape, reshaped
// from muserv's UPnP browse hierarchy into the spec's plain directory tree.
package database

import (
	"sort"

	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

// PlaylistMeta is the (name, mtime) record kept for a playlist file found
// during the walk (spec.md §3 Directory).
type PlaylistMeta struct {
	Name  string
	MTime int64
}

// Directory is one node of the database tree. Parent is a non-owning
// back-reference (spec.md §9): the owning edge always runs parent->child,
// via Dirs/Songs.
type Directory struct {
	Name      string
	Parent    *Directory
	Dirs      map[string]*Directory
	Songs     map[string]*song.Song
	Playlists []PlaylistMeta
	Container bool // represents the virtual contents of one media file

	Dev, Ino uint64
	MTime    int64
}

// newDirectory creates an empty directory node named name under parent.
// parent may be nil only for the tree root.
func newDirectory(name string, parent *Directory) *Directory {
	return &Directory{
		Name:   name,
		Parent: parent,
		Dirs:   make(map[string]*Directory),
		Songs:  make(map[string]*song.Song),
	}
}

// Path returns the directory's `/`-separated path from the root (empty for
// the root itself).
func (d *Directory) Path() string {
	if d.Parent == nil {
		return ""
	}
	parent := d.Parent.Path()
	if parent == "" {
		return d.Name
	}
	return parent + "/" + d.Name
}

// IsRoot reports whether d is the tree root.
func (d *Directory) IsRoot() bool { return d.Parent == nil }

// child returns the subdirectory named name, creating it if absent.
func (d *Directory) child(name string) *Directory {
	c, ok := d.Dirs[name]
	if !ok {
		c = newDirectory(name, d)
		d.Dirs[name] = c
	}
	return c
}

// SortedDirNames returns the names of d's subdirectories in sorted order,
// used for stable `save` output (spec.md §6).
func (d *Directory) SortedDirNames() []string {
	names := make([]string, 0, len(d.Dirs))
	for n := range d.Dirs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SortedSongNames returns the basenames of d's songs in sorted order.
func (d *Directory) SortedSongNames() []string {
	names := make([]string, 0, len(d.Songs))
	for n := range d.Songs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
