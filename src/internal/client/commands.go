package client

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gitlab.com/mipimipi/mpdgo/src/internal/database"
	"gitlab.com/mipimipi/mpdgo/src/internal/player"
	"gitlab.com/mipimipi/mpdgo/src/internal/queue"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
	"gitlab.com/mipimipi/mpdgo/src/internal/storedplaylist"
)

// registerCommands builds the command dispatch table of spec.md §6. Entries
// are grouped the way MPD's own command.c groups them: playback, queue,
// stored playlists, database, status/output/misc.
func (d *Dispatcher) registerCommands() {
	d.table.Register(
		Entry{Name: "status", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdStatus},
		Entry{Name: "currentsong", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdCurrentSong},
		Entry{Name: "stats", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdStats},
		Entry{Name: "clearerror", Permission: PermControl, MinArgs: 0, MaxArgs: 0, Handler: cmdClearError},
		Entry{Name: "ping", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdPing},

		Entry{Name: "play", Permission: PermControl, MinArgs: 0, MaxArgs: 1, Handler: cmdPlay},
		Entry{Name: "playid", Permission: PermControl, MinArgs: 0, MaxArgs: 1, Handler: cmdPlayID},
		Entry{Name: "stop", Permission: PermControl, MinArgs: 0, MaxArgs: 0, Handler: cmdStop},
		Entry{Name: "pause", Permission: PermControl, MinArgs: 0, MaxArgs: 1, Handler: cmdPause},
		Entry{Name: "next", Permission: PermControl, MinArgs: 0, MaxArgs: 0, Handler: cmdNext},
		Entry{Name: "previous", Permission: PermControl, MinArgs: 0, MaxArgs: 0, Handler: cmdPrevious},
		Entry{Name: "seek", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdSeek},
		Entry{Name: "seekid", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdSeekID},
		Entry{Name: "seekcur", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdSeekCur},
		Entry{Name: "crossfade", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdCrossfade},
		Entry{Name: "repeat", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdRepeat},
		Entry{Name: "random", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdRandom},
		Entry{Name: "single", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdSingle},
		Entry{Name: "consume", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdConsume},
		Entry{Name: "setvol", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdSetVol},
		Entry{Name: "volume", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdVolumeRelative},

		Entry{Name: "add", Permission: PermAdd, MinArgs: 1, MaxArgs: 1, Handler: cmdAdd},
		Entry{Name: "addid", Permission: PermAdd, MinArgs: 1, MaxArgs: 2, Handler: cmdAddID},
		Entry{Name: "delete", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdDelete},
		Entry{Name: "deleteid", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdDeleteID},
		Entry{Name: "clear", Permission: PermControl, MinArgs: 0, MaxArgs: 0, Handler: cmdClear},
		Entry{Name: "move", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdMove},
		Entry{Name: "moveid", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdMoveID},
		Entry{Name: "swap", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdSwap},
		Entry{Name: "swapid", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdSwapID},
		Entry{Name: "shuffle", Permission: PermControl, MinArgs: 0, MaxArgs: 1, Handler: cmdShuffle},
		Entry{Name: "prio", Permission: PermControl, MinArgs: 2, MaxArgs: -1, Handler: cmdPrio},
		Entry{Name: "prioid", Permission: PermControl, MinArgs: 2, MaxArgs: -1, Handler: cmdPrioID},

		Entry{Name: "playlist", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdPlaylist},
		Entry{Name: "playlistid", Permission: PermRead, MinArgs: 0, MaxArgs: 1, Handler: cmdPlaylistID},
		Entry{Name: "playlistinfo", Permission: PermRead, MinArgs: 0, MaxArgs: 1, Handler: cmdPlaylistInfo},
		Entry{Name: "plchanges", Permission: PermRead, MinArgs: 1, MaxArgs: 1, Handler: cmdPlChanges},
		Entry{Name: "plchangesposid", Permission: PermRead, MinArgs: 1, MaxArgs: 1, Handler: cmdPlChangesPosID},

		Entry{Name: "save", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdSave},
		Entry{Name: "load", Permission: PermAdd, MinArgs: 1, MaxArgs: 2, Handler: cmdLoad},
		Entry{Name: "rm", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdRm},
		Entry{Name: "rename", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdRename},
		Entry{Name: "listplaylist", Permission: PermRead, MinArgs: 1, MaxArgs: 1, Handler: cmdListPlaylist},
		Entry{Name: "listplaylistinfo", Permission: PermRead, MinArgs: 1, MaxArgs: 1, Handler: cmdListPlaylistInfo},
		Entry{Name: "listplaylists", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdListPlaylists},
		Entry{Name: "playlistadd", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdPlaylistAdd},
		Entry{Name: "playlistclear", Permission: PermControl, MinArgs: 1, MaxArgs: 1, Handler: cmdPlaylistClear},
		Entry{Name: "playlistdelete", Permission: PermControl, MinArgs: 2, MaxArgs: 2, Handler: cmdPlaylistDelete},
		Entry{Name: "playlistmove", Permission: PermControl, MinArgs: 3, MaxArgs: 3, Handler: cmdPlaylistMove},
		Entry{Name: "playlistfind", Permission: PermRead, MinArgs: 2, MaxArgs: 2, Handler: cmdPlaylistFind},
		Entry{Name: "playlistsearch", Permission: PermRead, MinArgs: 2, MaxArgs: 2, Handler: cmdPlaylistSearch},

		Entry{Name: "lsinfo", Permission: PermRead, MinArgs: 0, MaxArgs: 1, Handler: cmdLsInfo},
		Entry{Name: "listall", Permission: PermRead, MinArgs: 0, MaxArgs: 1, Handler: cmdListAll},
		Entry{Name: "listallinfo", Permission: PermRead, MinArgs: 0, MaxArgs: 1, Handler: cmdListAllInfo},
		Entry{Name: "find", Permission: PermRead, MinArgs: 2, MaxArgs: -1, Handler: cmdFind},
		Entry{Name: "search", Permission: PermRead, MinArgs: 2, MaxArgs: -1, Handler: cmdSearch},
		Entry{Name: "count", Permission: PermRead, MinArgs: 2, MaxArgs: -1, Handler: cmdCount},
		Entry{Name: "list", Permission: PermRead, MinArgs: 1, MaxArgs: -1, Handler: cmdList},
		Entry{Name: "update", Permission: PermAdmin, MinArgs: 0, MaxArgs: 1, Handler: cmdUpdate},
		Entry{Name: "rescan", Permission: PermAdmin, MinArgs: 0, MaxArgs: 1, Handler: cmdRescan},

		Entry{Name: "tagtypes", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdTagTypes},
		Entry{Name: "commands", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdCommands},
		Entry{Name: "notcommands", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdNotCommands},
		Entry{Name: "urlhandlers", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdURLHandlers},
		Entry{Name: "outputs", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdOutputs},
		Entry{Name: "enableoutput", Permission: PermAdmin, MinArgs: 1, MaxArgs: 1, Handler: cmdEnableOutput},
		Entry{Name: "disableoutput", Permission: PermAdmin, MinArgs: 1, MaxArgs: 1, Handler: cmdDisableOutput},
		Entry{Name: "password", Permission: 0, MinArgs: 1, MaxArgs: 1, Handler: cmdPassword},
		Entry{Name: "idle", Permission: PermRead, MinArgs: 0, MaxArgs: -1, Handler: cmdIdle},
		Entry{Name: "noidle", Permission: PermRead, MinArgs: 0, MaxArgs: 0, Handler: cmdNoIdle},
	)
}

// --- helpers ---

func writeTag(sb *strings.Builder, t song.Tag) {
	for _, typ := range song.AllTypes() {
		for _, v := range t.Values(typ) {
			fmt.Fprintf(sb, "%s: %s\n", typ.String(), v)
		}
	}
}

func writeSongInfo(sb *strings.Builder, s *song.Song, pos int, id int32) {
	fmt.Fprintf(sb, "file: %s\n", s.URI)
	if s.Tag.HasTime() {
		fmt.Fprintf(sb, "Time: %d\n", s.Tag.Time)
		fmt.Fprintf(sb, "duration: %d.000\n", s.Tag.Time)
	}
	writeTag(sb, s.Tag)
	if pos >= 0 {
		fmt.Fprintf(sb, "Pos: %d\n", pos)
	}
	if id >= 0 {
		fmt.Fprintf(sb, "Id: %d\n", id)
	}
}

func songByURI(d *Dispatcher, uri string) (*song.Song, error) {
	s, err := d.DB.GetSong(uri)
	if err != nil {
		return nil, NewError(AckNoExist, "", "No such song")
	}
	return s, nil
}

// --- status/misc ---

func cmdStatus(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	var sb strings.Builder
	fmt.Fprintf(&sb, "volume: %d\n", d.PlayerCtrl.SoftwareVolume()/10)
	fmt.Fprintf(&sb, "repeat: %d\n", boolToInt(d.Queue.Repeat))
	fmt.Fprintf(&sb, "random: %d\n", boolToInt(d.Queue.Random))
	fmt.Fprintf(&sb, "single: %d\n", boolToInt(d.Queue.Single))
	fmt.Fprintf(&sb, "consume: %d\n", boolToInt(d.Queue.Consume))
	fmt.Fprintf(&sb, "playlist: %d\n", d.Queue.Version())
	fmt.Fprintf(&sb, "playlistlength: %d\n", d.Queue.Len())

	state := "stop"
	switch d.PlayerCtrl.State() {
	case player.PlayerPlay:
		state = "play"
	case player.PlayerPause:
		state = "pause"
	}
	fmt.Fprintf(&sb, "state: %s\n", state)

	if s, id, pos, ok := d.Playlist.CurrentSong(); ok {
		fmt.Fprintf(&sb, "song: %d\n", pos)
		fmt.Fprintf(&sb, "songid: %d\n", id)
		elapsed := d.Playlist.Elapsed().Seconds()
		if s.Tag.HasTime() {
			fmt.Fprintf(&sb, "time: %d:%d\n", int(elapsed), s.Tag.Time)
			fmt.Fprintf(&sb, "duration: %d.000\n", s.Tag.Time)
		}
		fmt.Fprintf(&sb, "elapsed: %.3f\n", elapsed)
	}
	fmt.Fprintf(&sb, "crossfade: %d\n", int(d.crossfadeSeconds()))
	if errMsg := d.lastError(); errMsg != "" {
		fmt.Fprintf(&sb, "error: %s\n", errMsg)
	}
	return sb.String(), nil
}

func cmdCurrentSong(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	s, id, pos, ok := d.Playlist.CurrentSong()
	if !ok {
		return "", nil
	}
	var sb strings.Builder
	writeSongInfo(&sb, s, pos, id)
	return sb.String(), nil
}

func cmdStats(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	artists := map[string]struct{}{}
	albums := map[string]struct{}{}
	songs := 0
	_ = d.DB.Walk("", database.Visitor{OnSong: func(s *song.Song) error {
		songs++
		if a := s.Tag.First(song.Artist); a != "" {
			artists[a] = struct{}{}
		}
		if a := s.Tag.First(song.Album); a != "" {
			albums[a] = struct{}{}
		}
		return nil
	}})
	var sb strings.Builder
	fmt.Fprintf(&sb, "artists: %d\n", len(artists))
	fmt.Fprintf(&sb, "albums: %d\n", len(albums))
	fmt.Fprintf(&sb, "songs: %d\n", songs)
	fmt.Fprintf(&sb, "uptime: 0\n")
	fmt.Fprintf(&sb, "playtime: 0\n")
	fmt.Fprintf(&sb, "db_playtime: 0\n")
	fmt.Fprintf(&sb, "db_update: 0\n")
	return sb.String(), nil
}

func cmdClearError(ctx *Context, args []string) (string, error) {
	ctx.Server.SetLastError("")
	return "", nil
}

func cmdPing(ctx *Context, args []string) (string, error) { return "", nil }

// --- playback ---

func cmdPlay(ctx *Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", ctx.Server.Playlist.Play(nil)
	}
	pos, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	return "", ctx.Server.Playlist.Play(&pos)
}

func cmdPlayID(ctx *Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", ctx.Server.Playlist.Play(nil)
	}
	id, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	return "", ctx.Server.Playlist.PlayID(int32(id))
}

func cmdStop(ctx *Context, args []string) (string, error) {
	ctx.Server.Playlist.Stop()
	return "", nil
}

func cmdPause(ctx *Context, args []string) (string, error) {
	ctx.Server.Playlist.Pause(nil)
	return "", nil
}

func cmdNext(ctx *Context, args []string) (string, error) { return "", ctx.Server.Playlist.Next() }

func cmdPrevious(ctx *Context, args []string) (string, error) {
	return "", ctx.Server.Playlist.Previous()
}

func cmdSeek(ctx *Context, args []string) (string, error) {
	pos, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	secs, err := argFloat(args, 1)
	if err != nil {
		return "", err
	}
	return "", ctx.Server.Playlist.Seek(pos, secs)
}

func cmdSeekID(ctx *Context, args []string) (string, error) {
	id, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	secs, err := argFloat(args, 1)
	if err != nil {
		return "", err
	}
	return "", ctx.Server.Playlist.SeekID(int32(id), secs)
}

func cmdSeekCur(ctx *Context, args []string) (string, error) {
	arg := args[0]
	relative := strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-")
	secs, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return "", NewError(AckArg, "", "need a number")
	}
	ctx.Server.Playlist.SeekCurrent(secs, relative)
	return "", nil
}

func cmdCrossfade(ctx *Context, args []string) (string, error) {
	secs, err := argFloat(args, 0)
	if err != nil {
		return "", err
	}
	ctx.Server.setCrossfadeSeconds(secs)
	return "", nil
}

func cmdRepeat(ctx *Context, args []string) (string, error) {
	on, err := argBool(args, 0)
	if err != nil {
		return "", err
	}
	ctx.Server.Playlist.SetRepeat(on)
	return "", nil
}

func cmdRandom(ctx *Context, args []string) (string, error) {
	on, err := argBool(args, 0)
	if err != nil {
		return "", err
	}
	ctx.Server.Playlist.SetRandom(on)
	return "", nil
}

func cmdSingle(ctx *Context, args []string) (string, error) {
	on, err := argBool(args, 0)
	if err != nil {
		return "", err
	}
	ctx.Server.Playlist.SetSingle(on)
	return "", nil
}

func cmdConsume(ctx *Context, args []string) (string, error) {
	on, err := argBool(args, 0)
	if err != nil {
		return "", err
	}
	ctx.Server.Playlist.SetConsume(on)
	return "", nil
}

func cmdSetVol(ctx *Context, args []string) (string, error) {
	v, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	if v < 0 || v > 100 {
		return "", NewError(AckArg, "", "Invalid volume value")
	}
	ctx.Server.PlayerCtrl.SetSoftwareVolume(v * 10)
	return "", nil
}

func cmdVolumeRelative(ctx *Context, args []string) (string, error) {
	delta, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	cur := ctx.Server.PlayerCtrl.SoftwareVolume() / 10
	next := cur + delta
	if next < 0 {
		next = 0
	}
	if next > 100 {
		next = 100
	}
	ctx.Server.PlayerCtrl.SetSoftwareVolume(next * 10)
	return "", nil
}

// --- queue editing ---

func cmdAdd(ctx *Context, args []string) (string, error) {
	s, err := songByURI(ctx.Server, args[0])
	if err != nil {
		return "", err
	}
	if _, err := ctx.Server.Queue.Append(s, 0); err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdAddID(ctx *Context, args []string) (string, error) {
	s, err := songByURI(ctx.Server, args[0])
	if err != nil {
		return "", err
	}
	id, err := ctx.Server.Queue.Append(s, 0)
	if err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return fmt.Sprintf("Id: %d\n", id), nil
}

func cmdDelete(ctx *Context, args []string) (string, error) {
	start, end, err := argRange(args[0])
	if err != nil {
		return "", err
	}
	if end == start+1 {
		err = ctx.Server.Queue.Delete(start)
	} else {
		err = ctx.Server.Queue.DeleteRange(start, end)
	}
	if err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdDeleteID(ctx *Context, args []string) (string, error) {
	id, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	if err := ctx.Server.Queue.DeleteID(int32(id)); err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdClear(ctx *Context, args []string) (string, error) {
	ctx.Server.Queue.Clear()
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdMove(ctx *Context, args []string) (string, error) {
	from, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	to, err := argInt(args, 1)
	if err != nil {
		return "", err
	}
	if err := ctx.Server.Queue.Move(from, to); err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdMoveID(ctx *Context, args []string) (string, error) {
	id, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	to, err := argInt(args, 1)
	if err != nil {
		return "", err
	}
	pos, ok := ctx.Server.Queue.PositionOf(int32(id))
	if !ok {
		return "", NewError(AckNoExist, "", "No such song")
	}
	if err := ctx.Server.Queue.Move(pos, to); err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdSwap(ctx *Context, args []string) (string, error) {
	p1, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	p2, err := argInt(args, 1)
	if err != nil {
		return "", err
	}
	if err := ctx.Server.Queue.Swap(p1, p2); err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdSwapID(ctx *Context, args []string) (string, error) {
	id1, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	id2, err := argInt(args, 1)
	if err != nil {
		return "", err
	}
	p1, ok1 := ctx.Server.Queue.PositionOf(int32(id1))
	p2, ok2 := ctx.Server.Queue.PositionOf(int32(id2))
	if !ok1 || !ok2 {
		return "", NewError(AckNoExist, "", "No such song")
	}
	if err := ctx.Server.Queue.Swap(p1, p2); err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdShuffle(ctx *Context, args []string) (string, error) {
	start, end := 0, ctx.Server.Queue.Len()
	if len(args) == 1 {
		var err error
		start, end, err = argRange(args[0])
		if err != nil {
			return "", err
		}
	}
	if err := ctx.Server.Queue.ShuffleRange(start, end); err != nil {
		return "", mapQueueErr(err)
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdPrio(ctx *Context, args []string) (string, error) {
	priority, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	cur := ctx.Server.Playlist.CurrentOrder()
	for _, rng := range args[1:] {
		start, end, err := argRange(rng)
		if err != nil {
			return "", err
		}
		if err := ctx.Server.Queue.SetPriorityRange(start, end, uint8(priority), cur, cur); err != nil {
			return "", mapQueueErr(err)
		}
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdPrioID(ctx *Context, args []string) (string, error) {
	priority, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	cur := ctx.Server.Playlist.CurrentOrder()
	for _, idStr := range args[1:] {
		id, err := strconv.Atoi(idStr)
		if err != nil {
			return "", NewError(AckArg, "", "need a positive integer")
		}
		pos, ok := ctx.Server.Queue.PositionOf(int32(id))
		if !ok {
			return "", NewError(AckNoExist, "", "No such song")
		}
		if err := ctx.Server.Queue.SetPriority(pos, uint8(priority), cur, cur); err != nil {
			return "", mapQueueErr(err)
		}
	}
	ctx.Server.Broker.Raise(SubPlaylist)
	return "", nil
}

// --- queue listing ---

func cmdPlaylist(ctx *Context, args []string) (string, error) {
	var sb strings.Builder
	for pos, it := range ctx.Server.Queue.Items() {
		fmt.Fprintf(&sb, "%d:%s\n", pos, it.Song.URI)
	}
	return sb.String(), nil
}

func cmdPlaylistID(ctx *Context, args []string) (string, error) {
	items := ctx.Server.Queue.Items()
	var sb strings.Builder
	if len(args) == 1 {
		id, err := argInt(args, 0)
		if err != nil {
			return "", err
		}
		pos, ok := ctx.Server.Queue.PositionOf(int32(id))
		if !ok {
			return "", NewError(AckNoExist, "", "No such song")
		}
		writeSongInfo(&sb, items[pos].Song, pos, items[pos].ID)
		return sb.String(), nil
	}
	for pos, it := range items {
		writeSongInfo(&sb, it.Song, pos, it.ID)
	}
	return sb.String(), nil
}

func cmdPlaylistInfo(ctx *Context, args []string) (string, error) {
	items := ctx.Server.Queue.Items()
	start, end := 0, len(items)
	if len(args) == 1 {
		var err error
		start, end, err = argRange(args[0])
		if err != nil {
			return "", err
		}
		if start < 0 || end > len(items) || start > end {
			return "", NewError(AckArg, "", "Bad song index")
		}
	}
	var sb strings.Builder
	for pos := start; pos < end; pos++ {
		writeSongInfo(&sb, items[pos].Song, pos, items[pos].ID)
	}
	return sb.String(), nil
}

func cmdPlChanges(ctx *Context, args []string) (string, error) {
	v, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, it := range ctx.Server.Queue.ChangedSince(uint32(v)) {
		pos, ok := ctx.Server.Queue.PositionOf(it.ID)
		if !ok {
			continue
		}
		writeSongInfo(&sb, it.Song, pos, it.ID)
	}
	return sb.String(), nil
}

func cmdPlChangesPosID(ctx *Context, args []string) (string, error) {
	v, err := argInt(args, 0)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, it := range ctx.Server.Queue.ChangedSince(uint32(v)) {
		pos, ok := ctx.Server.Queue.PositionOf(it.ID)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "cpos: %d\n", pos)
		fmt.Fprintf(&sb, "Id: %d\n", it.ID)
	}
	return sb.String(), nil
}

// --- stored playlists ---

func cmdSave(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	uris := make([]string, 0, d.Queue.Len())
	for _, it := range d.Queue.Items() {
		uris = append(uris, it.Song.URI)
	}
	if err := storedplaylist.Save(d.PlaylistDir, args[0], uris, d.MaxPlaylistLength); err != nil {
		if err == storedplaylist.ErrTooLarge {
			return "", NewError(AckPlaylistMax, "", "playlist is too large")
		}
		return "", NewError(AckSystem, "", err.Error())
	}
	d.Broker.Raise(SubStoredPlaylist)
	return "", nil
}

func cmdLoad(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	uris, err := storedplaylist.Load(d.PlaylistDir, args[0])
	if err != nil {
		return "", NewError(AckNoExist, "", "No such playlist")
	}
	for _, uri := range uris {
		s, err := d.DB.GetSong(uri)
		if err != nil {
			continue
		}
		if _, err := d.Queue.Append(s, 0); err != nil {
			return "", mapQueueErr(err)
		}
	}
	d.Broker.Raise(SubPlaylist)
	return "", nil
}

func cmdRm(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	if err := storedplaylist.Remove(d.PlaylistDir, args[0]); err != nil {
		return "", NewError(AckNoExist, "", "No such playlist")
	}
	d.Broker.Raise(SubStoredPlaylist)
	return "", nil
}

func cmdRename(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	if err := storedplaylist.Rename(d.PlaylistDir, args[0], args[1]); err != nil {
		return "", NewError(AckNoExist, "", "No such playlist")
	}
	d.Broker.Raise(SubStoredPlaylist)
	return "", nil
}

func cmdListPlaylist(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	uris, err := storedplaylist.Load(d.PlaylistDir, args[0])
	if err != nil {
		return "", NewError(AckNoExist, "", "No such playlist")
	}
	var sb strings.Builder
	for _, uri := range uris {
		fmt.Fprintf(&sb, "file: %s\n", uri)
	}
	return sb.String(), nil
}

func cmdListPlaylistInfo(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	uris, err := storedplaylist.Load(d.PlaylistDir, args[0])
	if err != nil {
		return "", NewError(AckNoExist, "", "No such playlist")
	}
	var sb strings.Builder
	for _, uri := range uris {
		if s, err := d.DB.GetSong(uri); err == nil {
			writeSongInfo(&sb, s, -1, -1)
		} else {
			fmt.Fprintf(&sb, "file: %s\n", uri)
		}
	}
	return sb.String(), nil
}

func cmdListPlaylists(ctx *Context, args []string) (string, error) {
	names, err := storedplaylist.List(ctx.Server.PlaylistDir)
	if err != nil {
		return "", NewError(AckSystem, "", err.Error())
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "playlist: %s\n", n)
	}
	return sb.String(), nil
}

func cmdPlaylistAdd(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	uris, err := storedplaylist.Load(d.PlaylistDir, args[0])
	if err != nil {
		uris = nil
	}
	uris = append(uris, args[1])
	if err := storedplaylist.Save(d.PlaylistDir, args[0], uris, d.MaxPlaylistLength); err != nil {
		return "", NewError(AckSystem, "", err.Error())
	}
	d.Broker.Raise(SubStoredPlaylist)
	return "", nil
}

func cmdPlaylistClear(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	if err := storedplaylist.Save(d.PlaylistDir, args[0], nil, d.MaxPlaylistLength); err != nil {
		return "", NewError(AckSystem, "", err.Error())
	}
	d.Broker.Raise(SubStoredPlaylist)
	return "", nil
}

func cmdPlaylistDelete(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	pos, err := argInt(args, 1)
	if err != nil {
		return "", err
	}
	uris, err := storedplaylist.Load(d.PlaylistDir, args[0])
	if err != nil {
		return "", NewError(AckNoExist, "", "No such playlist")
	}
	if pos < 0 || pos >= len(uris) {
		return "", NewError(AckArg, "", "Bad song index")
	}
	uris = append(uris[:pos], uris[pos+1:]...)
	if err := storedplaylist.Save(d.PlaylistDir, args[0], uris, d.MaxPlaylistLength); err != nil {
		return "", NewError(AckSystem, "", err.Error())
	}
	d.Broker.Raise(SubStoredPlaylist)
	return "", nil
}

func cmdPlaylistMove(ctx *Context, args []string) (string, error) {
	d := ctx.Server
	from, err := argInt(args, 1)
	if err != nil {
		return "", err
	}
	to, err := argInt(args, 2)
	if err != nil {
		return "", err
	}
	uris, err := storedplaylist.Load(d.PlaylistDir, args[0])
	if err != nil {
		return "", NewError(AckNoExist, "", "No such playlist")
	}
	if from < 0 || from >= len(uris) || to < 0 || to >= len(uris) {
		return "", NewError(AckArg, "", "Bad song index")
	}
	u := uris[from]
	uris = append(uris[:from], uris[from+1:]...)
	uris = append(uris[:to], append([]string{u}, uris[to:]...)...)
	if err := storedplaylist.Save(d.PlaylistDir, args[0], uris, d.MaxPlaylistLength); err != nil {
		return "", NewError(AckSystem, "", err.Error())
	}
	d.Broker.Raise(SubStoredPlaylist)
	return "", nil
}

func cmdPlaylistFind(ctx *Context, args []string) (string, error) {
	return findInPlaylist(ctx, args, false)
}

func cmdPlaylistSearch(ctx *Context, args []string) (string, error) {
	return findInPlaylist(ctx, args, true)
}

func findInPlaylist(ctx *Context, args []string, caseInsensitive bool) (string, error) {
	typ, ok := song.TypeFromString(args[0])
	if !ok {
		return "", NewError(AckArg, "", "Unknown tag type")
	}
	needle := args[1]
	var sb strings.Builder
	for pos, it := range ctx.Server.Queue.Items() {
		if tagMatches(it.Song.Tag, typ, needle, caseInsensitive) {
			writeSongInfo(&sb, it.Song, pos, it.ID)
		}
	}
	return sb.String(), nil
}

// --- database ---

func cmdLsInfo(ctx *Context, args []string) (string, error) {
	uri := ""
	if len(args) == 1 {
		uri = args[0]
	}
	d, err := ctx.Server.DB.GetDirectory(uri)
	if err != nil {
		return "", NewError(AckNoExist, "", "No such directory")
	}
	var sb strings.Builder
	for _, name := range d.SortedDirNames() {
		fmt.Fprintf(&sb, "directory: %s\n", d.Dirs[name].Path())
	}
	for _, name := range d.SortedSongNames() {
		writeSongInfo(&sb, d.Songs[name], -1, -1)
	}
	for _, pl := range d.Playlists {
		fmt.Fprintf(&sb, "playlist: %s\n", pl.Name)
	}
	return sb.String(), nil
}

func cmdListAll(ctx *Context, args []string) (string, error) {
	uri := ""
	if len(args) == 1 {
		uri = args[0]
	}
	var sb strings.Builder
	err := ctx.Server.DB.Walk(uri, database.Visitor{
		OnDirectory: func(d *database.Directory) error {
			if !d.IsRoot() {
				fmt.Fprintf(&sb, "directory: %s\n", d.Path())
			}
			return nil
		},
		OnSong: func(s *song.Song) error {
			fmt.Fprintf(&sb, "file: %s\n", s.URI)
			return nil
		},
	})
	if err != nil {
		return "", NewError(AckNoExist, "", "No such directory")
	}
	return sb.String(), nil
}

func cmdListAllInfo(ctx *Context, args []string) (string, error) {
	uri := ""
	if len(args) == 1 {
		uri = args[0]
	}
	var sb strings.Builder
	err := ctx.Server.DB.Walk(uri, database.Visitor{
		OnDirectory: func(d *database.Directory) error {
			if !d.IsRoot() {
				fmt.Fprintf(&sb, "directory: %s\n", d.Path())
			}
			return nil
		},
		OnSong: func(s *song.Song) error {
			writeSongInfo(&sb, s, -1, -1)
			return nil
		},
		OnPlaylist: func(dir *database.Directory, pl database.PlaylistMeta) error {
			fmt.Fprintf(&sb, "playlist: %s\n", pl.Name)
			return nil
		},
	})
	if err != nil {
		return "", NewError(AckNoExist, "", "No such directory")
	}
	return sb.String(), nil
}

func tagMatches(t song.Tag, typ song.Type, needle string, caseInsensitive bool) bool {
	for _, v := range t.Values(typ) {
		if caseInsensitive {
			if strings.Contains(strings.ToLower(v), strings.ToLower(needle)) {
				return true
			}
		} else if v == needle {
			return true
		}
	}
	return false
}

func cmdFind(ctx *Context, args []string) (string, error) { return findInDB(ctx, args, false) }

func cmdSearch(ctx *Context, args []string) (string, error) { return findInDB(ctx, args, true) }

func findInDB(ctx *Context, args []string, caseInsensitive bool) (string, error) {
	var sb strings.Builder
	err := ctx.Server.DB.Walk("", database.Visitor{OnSong: func(s *song.Song) error {
		for i := 0; i+1 < len(args); i += 2 {
			typ, ok := song.TypeFromString(args[i])
			if !ok {
				return NewError(AckArg, "", "Unknown tag type")
			}
			if !tagMatches(s.Tag, typ, args[i+1], caseInsensitive) {
				return nil
			}
		}
		writeSongInfo(&sb, s, -1, -1)
		return nil
	}})
	if e, ok := err.(*Error); ok {
		return "", e
	}
	return sb.String(), nil
}

func cmdCount(ctx *Context, args []string) (string, error) {
	var n, totalTime int
	err := ctx.Server.DB.Walk("", database.Visitor{OnSong: func(s *song.Song) error {
		for i := 0; i+1 < len(args); i += 2 {
			typ, ok := song.TypeFromString(args[i])
			if !ok {
				return NewError(AckArg, "", "Unknown tag type")
			}
			if !tagMatches(s.Tag, typ, args[i+1], false) {
				return nil
			}
		}
		n++
		if s.Tag.HasTime() {
			totalTime += s.Tag.Time
		}
		return nil
	}})
	if e, ok := err.(*Error); ok {
		return "", e
	}
	return fmt.Sprintf("songs: %d\nplaytime: %d\n", n, totalTime), nil
}

func cmdList(ctx *Context, args []string) (string, error) {
	typ, ok := song.TypeFromString(args[0])
	if !ok {
		return "", NewError(AckArg, "", "Unknown tag type")
	}
	values := map[string]struct{}{}
	err := ctx.Server.DB.Walk("", database.Visitor{OnSong: func(s *song.Song) error {
		for i := 1; i+1 < len(args); i += 2 {
			filterTyp, ok := song.TypeFromString(args[i])
			if !ok {
				return NewError(AckArg, "", "Unknown tag type")
			}
			if !tagMatches(s.Tag, filterTyp, args[i+1], false) {
				return nil
			}
		}
		for _, v := range s.Tag.Values(typ) {
			values[v] = struct{}{}
		}
		return nil
	}})
	if e, ok := err.(*Error); ok {
		return "", e
	}
	names := make([]string, 0, len(values))
	for v := range values {
		names = append(names, v)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, v := range names {
		fmt.Fprintf(&sb, "%s: %s\n", typ.String(), v)
	}
	return sb.String(), nil
}

func cmdUpdate(ctx *Context, args []string) (string, error) {
	uri := ""
	if len(args) == 1 {
		uri = args[0]
	}
	id := ctx.Server.DB.Update(uri, false)
	if id == 0 {
		return "", NewError(AckUpdateAlready, "", "already updating")
	}
	ctx.Server.Broker.Raise(SubUpdate)
	return fmt.Sprintf("updating_db: %d\n", id), nil
}

func cmdRescan(ctx *Context, args []string) (string, error) {
	uri := ""
	if len(args) == 1 {
		uri = args[0]
	}
	id := ctx.Server.DB.Update(uri, true)
	if id == 0 {
		return "", NewError(AckUpdateAlready, "", "already updating")
	}
	ctx.Server.Broker.Raise(SubUpdate)
	return fmt.Sprintf("updating_db: %d\n", id), nil
}

// --- capability listings ---

func cmdTagTypes(ctx *Context, args []string) (string, error) {
	var sb strings.Builder
	for _, t := range song.AllTypes() {
		fmt.Fprintf(&sb, "tagtype: %s\n", t.String())
	}
	return sb.String(), nil
}

func cmdCommands(ctx *Context, args []string) (string, error) {
	perm := ctx.Session.Permission()
	names := make([]string, 0, len(ctx.Server.table))
	for name, e := range ctx.Server.table {
		if perm&e.Permission == e.Permission {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "command: %s\n", n)
	}
	return sb.String(), nil
}

func cmdNotCommands(ctx *Context, args []string) (string, error) {
	perm := ctx.Session.Permission()
	names := make([]string, 0)
	for name, e := range ctx.Server.table {
		if perm&e.Permission != e.Permission {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "command: %s\n", n)
	}
	return sb.String(), nil
}

func cmdURLHandlers(ctx *Context, args []string) (string, error) {
	return "handler: file://\n", nil
}

// cmdOutputs/cmdEnableOutput/cmdDisableOutput report a single always-on
// "default" output; mpdgo has no backend output switching (spec.md
// Non-goals: concrete audio sinks are out of scope).
func cmdOutputs(ctx *Context, args []string) (string, error) {
	return "outputid: 0\noutputname: default\noutputenabled: 1\n", nil
}

func cmdEnableOutput(ctx *Context, args []string) (string, error) { return "", nil }

func cmdDisableOutput(ctx *Context, args []string) (string, error) { return "", nil }

func cmdPassword(ctx *Context, args []string) (string, error) {
	perm, ok := ctx.Server.PasswordPerms[args[0]]
	if !ok {
		return "", NewError(AckPassword, "", "incorrect password")
	}
	ctx.Session.SetPermission(perm)
	return "", nil
}

func cmdIdle(ctx *Context, args []string) (string, error) {
	mask := Subsystem(0)
	for _, a := range args {
		sub, ok := SubsystemFromName(a)
		if !ok {
			return "", NewError(AckArg, "", "Unknown idle event: "+a)
		}
		mask |= sub
	}
	if mask == 0 {
		mask = allSubsystems
	}
	ctx.Session.BeginIdle(mask)
	changed := ctx.Session.WaitIdle(ctx.Session.IdleCancel())
	var sb strings.Builder
	for _, name := range changed.Names() {
		fmt.Fprintf(&sb, "changed: %s\n", name)
	}
	return sb.String(), nil
}

func cmdNoIdle(ctx *Context, args []string) (string, error) {
	ctx.Session.RequestNoIdle()
	return "", nil
}

// --- small shared helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func argBool(args []string, i int) (bool, error) {
	switch args[i] {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, NewError(AckArg, "", "Invalid value")
	}
}

func mapQueueErr(err error) error {
	switch err {
	case queue.ErrTooLarge:
		return NewError(AckPlaylistMax, "", "playlist is too large")
	case queue.ErrNoSuchSong:
		return NewError(AckNoExist, "", "No such song")
	case queue.ErrBadRange:
		return NewError(AckArg, "", "Bad song index")
	default:
		return NewError(AckSystem, "", err.Error())
	}
}
