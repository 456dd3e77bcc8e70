package song

import "sync/atomic"

// Range is an optional [start,end] sub-range in milliseconds, used for
// virtual tracks inside a container file (e.g. one track of a CUE sheet).
type Range struct {
	StartMS, EndMS int64
	Valid          bool
}

// DirRef is a non-owning back-reference to the directory that owns a song
// (spec.md §9: the owning edge is directory -> song, not the reverse).
// It is implemented as a path, not a pointer, to keep Song free of a direct
// dependency on the database package and free of ownership cycles.
type DirRef struct {
	Path  string
	Valid bool
}

// Song is the immutable metadata record for a single playable URI. A song
// is either in-database (Dir.Valid is true, its lifetime is owned by that
// directory) or detached (refCount-managed, freed when the last holder
// releases it).
type Song struct {
	URI        string
	Dir        DirRef
	LastModMS  int64 // last-modified time, unix milliseconds
	Tag        Tag
	SubRange   Range
	refs       int32 // only meaningful for detached songs
	inDatabase bool
}

// NewInDatabase creates a song owned by a directory. Its lifetime is tied
// to that directory: it is freed only when removed from it, never via
// reference counting.
func NewInDatabase(uri, dirPath string, lastModMS int64, tag Tag) *Song {
	return &Song{
		URI:        uri,
		Dir:        DirRef{Path: dirPath, Valid: true},
		LastModMS:  lastModMS,
		Tag:        tag,
		inDatabase: true,
	}
}

// NewDetached creates a reference-counted song not owned by any directory
// (e.g. a remote URL queued directly, or a container's virtual sub-track
// held only by the queue/decoder). It starts with a reference count of 1;
// callers must call Release when they drop their reference.
func NewDetached(uri string, tag Tag) *Song {
	return &Song{
		URI:  uri,
		Tag:  tag,
		refs: 1,
	}
}

// IsDetached reports whether the song is reference-counted rather than
// directory-owned.
func (s *Song) IsDetached() bool { return !s.inDatabase }

// Acquire increments the reference count of a detached song. It is a no-op
// for in-database songs.
func (s *Song) Acquire() {
	if s.IsDetached() {
		atomic.AddInt32(&s.refs, 1)
	}
}

// Release decrements the reference count of a detached song and reports
// whether that was the last reference (i.e. the song should now be freed
// by its caller). It is a no-op (returning false) for in-database songs.
func (s *Song) Release() bool {
	if !s.IsDetached() {
		return false
	}
	return atomic.AddInt32(&s.refs, -1) == 0
}

// WithSubRange returns a copy of a virtual-track song restricted to
// [startMS, endMS) inside its container file.
func (s *Song) WithSubRange(uri string, startMS, endMS int64) *Song {
	cp := *s
	cp.URI = uri
	cp.SubRange = Range{StartMS: startMS, EndMS: endMS, Valid: true}
	return &cp
}

// Duration returns the sub-range duration in seconds if set, otherwise the
// tag's total time.
func (s *Song) Duration() int {
	if s.SubRange.Valid {
		return int((s.SubRange.EndMS - s.SubRange.StartMS) / 1000)
	}
	return s.Tag.Time
}
