package client

import (
	"sync"

	"gitlab.com/mipimipi/mpdgo/src/internal/database"
	"gitlab.com/mipimipi/mpdgo/src/internal/player"
	"gitlab.com/mipimipi/mpdgo/src/internal/playlist"
	"gitlab.com/mipimipi/mpdgo/src/internal/queue"
)

// ProtocolVersion is the version mpdgo reports in its greeting line and in
// reply to "status"'s implicit protocol checks.
const ProtocolVersion = "0.23.0"

// Dispatcher owns the server-side state every command handler operates
// on: the database, queue, playlist controller, player control block, and
// the idle fan-out broker (spec.md §4.4/§4.5).
type Dispatcher struct {
	DB         *database.Database
	Queue      *queue.Queue
	Playlist   *playlist.Controller
	PlayerCtrl *player.PlayerControl

	Broker *IdleBroker

	PlaylistDir       string
	MaxPlaylistLength int
	PasswordPerms     map[string]Permission
	DefaultPerm       Permission

	mu        sync.Mutex
	table     Table
	nextID    int
	err       string  // last error, surfaced by status/clearerror (spec.md §4.5)
	crossfade float64 // seconds, as last set by the `crossfade` command
}

// New creates a dispatcher with the full command table registered
// (commands.go).
func New(db *database.Database, q *queue.Queue, pl *playlist.Controller, pc *player.PlayerControl) *Dispatcher {
	d := &Dispatcher{
		DB:            db,
		Queue:         q,
		Playlist:      pl,
		PlayerCtrl:    pc,
		Broker:        NewIdleBroker(),
		PasswordPerms: make(map[string]Permission),
		DefaultPerm:   PermRead,
		table:         make(Table),
	}
	d.registerCommands()
	return d
}

// NextSessionID returns a fresh, process-unique session id.
func (d *Dispatcher) NextSessionID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

// SetLastError records the most recent playback error for `status`'s
// `error:` field / `clearerror`.
func (d *Dispatcher) SetLastError(msg string) {
	d.mu.Lock()
	d.err = msg
	d.mu.Unlock()
}

func (d *Dispatcher) lastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// crossfadeSeconds/setCrossfadeSeconds track the cross-fade length reported
// by `status`. They do not reach into the Worker: its Config is a value
// built once in server.Run from the configuration file, and nothing builds
// a Config from this value, so the `crossfade` command changes only what
// `status` reports.
func (d *Dispatcher) crossfadeSeconds() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.crossfade
}

func (d *Dispatcher) setCrossfadeSeconds(secs float64) {
	d.mu.Lock()
	d.crossfade = secs
	d.mu.Unlock()
}
