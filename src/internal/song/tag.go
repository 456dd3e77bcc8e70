// Package song implements the immutable metadata records of mpdgo: tags and
// songs. A song's identity is its URI; its tag record is a flat, ordered
// multimap over a small, closed set of tag types.
package song

import "strings"

// Type is one of the closed set of tag types mpdgo understands. Extending
// the set is a compile-time change, not a configuration one.
type Type int

// The closed enumeration of tag types (spec.md §3).
const (
	Artist Type = iota
	Album
	Title
	Track
	Name
	Genre
	Date
	Composer
	Performer
	Comment
	Disc
	numTypes
)

var typeNames = [numTypes]string{
	Artist:    "Artist",
	Album:     "Album",
	Title:     "Title",
	Track:     "Track",
	Name:      "Name",
	Genre:     "Genre",
	Date:      "Date",
	Composer:  "Composer",
	Performer: "Performer",
	Comment:   "Comment",
	Disc:      "Disc",
}

// String returns the wire name of the tag type, as used in "tagtypes" and
// in tag lines of "find"/"list"/"currentsong" replies.
func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return "Unknown"
	}
	return typeNames[t]
}

// TypeFromString resolves a tag type by its case-insensitive wire name. ok
// is false if name does not name a known tag type.
func TypeFromString(name string) (t Type, ok bool) {
	for i, n := range typeNames {
		if strings.EqualFold(n, name) {
			return Type(i), true
		}
	}
	return 0, false
}

// AllTypes returns every tag type in declaration order, used to answer
// "tagtypes".
func AllTypes() []Type {
	out := make([]Type, numTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// Item is one (type, value) entry of a tag. Multiple items of the same type
// are allowed; order is preserved.
type Item struct {
	Type  Type
	Value string
}

// UnknownTime is the sentinel used for Tag.Time when the duration of a song
// is not known.
const UnknownTime = -1

// Tag is the ordered multimap of tag items attached to a song, plus its
// total duration.
type Tag struct {
	Time  int // total duration in seconds, or UnknownTime
	Items []Item
}

// New returns an empty tag with an unknown duration.
func New() Tag {
	return Tag{Time: UnknownTime}
}

// Add appends a tag item, preserving insertion order among same-type items.
func (t *Tag) Add(typ Type, value string) {
	if value == "" {
		return
	}
	t.Items = append(t.Items, Item{Type: typ, Value: value})
}

// Values returns every value of the given type, in insertion order.
func (t Tag) Values(typ Type) []string {
	var out []string
	for _, it := range t.Items {
		if it.Type == typ {
			out = append(out, it.Value)
		}
	}
	return out
}

// First returns the first value of the given type, or "" if none exists.
func (t Tag) First(typ Type) string {
	for _, it := range t.Items {
		if it.Type == typ {
			return it.Value
		}
	}
	return ""
}

// HasTime reports whether the tag carries a known duration.
func (t Tag) HasTime() bool {
	return t.Time != UnknownTime
}
