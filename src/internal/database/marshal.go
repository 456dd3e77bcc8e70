package database

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

// dbFormatVersion is the on-disk format version written in info_begin's
// "format:" line (spec.md §6).
const dbFormatVersion = 1

// mpdVersion is the version string Save writes as info_begin's
// "mpd_version:" line.
const mpdVersion = "0.23.0"

// Save serializes the database to w as the textual format of spec.md §6:
// an info_begin/info_end header, then a recursive begin:/end: bracketed
// directory tree with song_begin:/song_end records and
// playlist_begin:/playlist_end pairs. Directory children are written in
// sorted order so Save is deterministic (spec.md §8 property 4).
func (db *Database) Save(w io.Writer) error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "info_begin\n")
	fmt.Fprintf(bw, "format: %d\n", dbFormatVersion)
	fmt.Fprintf(bw, "mpd_version: %s\n", mpdVersion)
	fmt.Fprintf(bw, "fs_charset: UTF-8\n")
	for _, t := range song.AllTypes() {
		fmt.Fprintf(bw, "tag: %s\n", t.String())
	}
	fmt.Fprintf(bw, "info_end\n")

	if err := writeDirChildren(bw, db.root); err != nil {
		return err
	}
	return bw.Flush()
}

func writeDirChildren(bw *bufio.Writer, d *Directory) error {
	for _, name := range d.SortedDirNames() {
		child := d.Dirs[name]
		path := child.Path()
		fmt.Fprintf(bw, "begin: %s\n", path)
		fmt.Fprintf(bw, "mtime: %d\n", child.MTime)
		if err := writeDirChildren(bw, child); err != nil {
			return err
		}
		fmt.Fprintf(bw, "end: %s\n", path)
	}
	for _, name := range d.SortedSongNames() {
		s := d.Songs[name]
		fmt.Fprintf(bw, "song_begin: %s\n", s.URI)
		for _, it := range s.Tag.Items {
			fmt.Fprintf(bw, "%s: %s\n", it.Type.String(), it.Value)
		}
		if s.Tag.HasTime() {
			fmt.Fprintf(bw, "Time: %d\n", s.Tag.Time)
		}
		fmt.Fprintf(bw, "mtime: %d\n", s.LastModMS/1000)
		fmt.Fprintf(bw, "song_end\n")
	}
	for _, pl := range d.Playlists {
		fmt.Fprintf(bw, "playlist_begin: %s\n", pl.Name)
		fmt.Fprintf(bw, "mtime: %d\n", pl.MTime)
		fmt.Fprintf(bw, "playlist_end\n")
	}
	return nil
}

// Load parses the textual format written by Save and replaces the
// database's in-memory tree. Malformed input aborts the load and leaves
// the tree empty (spec.md §6).
func (db *Database) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	root := newDirectory("", nil)

	if !sc.Scan() || sc.Text() != "info_begin" {
		return errors.New("database: missing info_begin")
	}
	for sc.Scan() {
		if sc.Text() == "info_end" {
			break
		}
	}

	stack := []*Directory{root}
	var curSong *song.Song
	var curSongDir *Directory
	var curSongName string

	for sc.Scan() {
		line := sc.Text()
		key, val, ok := splitKV(line)
		if !ok {
			switch line {
			case "song_end":
				if curSong != nil {
					curSongDir.Songs[curSongName] = curSong
					curSong = nil
				}
			case "playlist_end":
			default:
				return errors.Errorf("database: malformed line %q", line)
			}
			continue
		}

		switch key {
		case "begin":
			parent := stack[len(stack)-1]
			name := basenameOf(val)
			child := parent.child(name)
			stack = append(stack, child)
		case "end":
			if len(stack) <= 1 {
				return errors.New("database: unbalanced end:")
			}
			stack = stack[:len(stack)-1]
		case "mtime":
			mt, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return errors.Wrap(err, "database: bad mtime")
			}
			if curSong != nil {
				curSong.LastModMS = mt * 1000
			} else {
				stack[len(stack)-1].MTime = mt
			}
		case "song_begin":
			dir := stack[len(stack)-1]
			curSongName = basenameOf(val)
			curSong = song.NewInDatabase(val, dir.Path(), 0, song.New())
			curSongDir = dir
		case "Time":
			if curSong == nil {
				return errors.New("database: Time: outside song_begin/song_end")
			}
			n, err := strconv.Atoi(val)
			if err != nil {
				return errors.Wrap(err, "database: bad Time:")
			}
			curSong.Tag.Time = n
		case "playlist_begin":
			stack[len(stack)-1].Playlists = append(stack[len(stack)-1].Playlists, PlaylistMeta{Name: val})
		default:
			if curSong == nil {
				return errors.Errorf("database: tag line %q outside song_begin/song_end", line)
			}
			typ, ok := song.TypeFromString(key)
			if !ok {
				return errors.Errorf("database: unknown tag type %q", key)
			}
			curSong.Tag.Add(typ, val)
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "database: read error")
	}
	if len(stack) != 1 {
		return errors.New("database: unterminated directory block")
	}

	db.mu.Lock()
	db.root = root
	db.mu.Unlock()
	return nil
}

func splitKV(line string) (key, val string, ok bool) {
	i := strings.Index(line, ": ")
	if i < 0 {
		return "", "", false
	}
	return line[:i], line[i+2:], true
}

func basenameOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path
	}
	return path[i+1:]
}
