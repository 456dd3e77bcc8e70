package client

import "sync"

// Subsystem is a bit in the idle-subscription mask (spec.md §4.4).
type Subsystem uint32

const (
	SubDatabase Subsystem = 1 << iota
	SubStoredPlaylist
	SubPlaylist
	SubPlayer
	SubMixer
	SubOutput
	SubOptions
	SubSticker
	SubUpdate
)

// allSubsystems is the mask used when `idle` is called with no arguments
// (subscribe to every subsystem).
const allSubsystems = SubDatabase | SubStoredPlaylist | SubPlaylist | SubPlayer | SubMixer | SubOutput | SubOptions | SubSticker | SubUpdate

var subsystemNames = map[Subsystem]string{
	SubDatabase:       "database",
	SubStoredPlaylist: "stored_playlist",
	SubPlaylist:       "playlist",
	SubPlayer:         "player",
	SubMixer:          "mixer",
	SubOutput:         "output",
	SubOptions:        "options",
	SubSticker:        "sticker",
	SubUpdate:         "update",
}

var subsystemByName = func() map[string]Subsystem {
	m := make(map[string]Subsystem, len(subsystemNames))
	for bit, name := range subsystemNames {
		m[name] = bit
	}
	return m
}()

// SubsystemFromName resolves an idle subsystem by its wire name.
func SubsystemFromName(name string) (Subsystem, bool) {
	s, ok := subsystemByName[name]
	return s, ok
}

// Names returns the names of every bit set in mask, in a fixed order.
func (m Subsystem) Names() []string {
	var out []string
	for _, bit := range []Subsystem{SubDatabase, SubStoredPlaylist, SubPlaylist, SubPlayer, SubMixer, SubOutput, SubOptions, SubSticker, SubUpdate} {
		if m&bit != 0 {
			out = append(out, subsystemNames[bit])
		}
	}
	return out
}

// IdleBroker fans server-side subsystem-change events out to every parked
// client session (spec.md §4.4 "a simple fan-out that queues flag-bits per
// session and wakes the session's socket").
type IdleBroker struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewIdleBroker creates an empty broker.
func NewIdleBroker() *IdleBroker {
	return &IdleBroker{sessions: make(map[*Session]struct{})}
}

// Register adds a session to the fan-out set. Deregister removes it
// (sessions must deregister on close to avoid a leak).
func (b *IdleBroker) Register(s *Session) {
	b.mu.Lock()
	b.sessions[s] = struct{}{}
	b.mu.Unlock()
}

// Deregister removes a session from the fan-out set.
func (b *IdleBroker) Deregister(s *Session) {
	b.mu.Lock()
	delete(b.sessions, s)
	b.mu.Unlock()
}

// Raise notifies every registered session that the given subsystems
// changed, waking any session currently parked in `idle` on a matching
// bit.
func (b *IdleBroker) Raise(changed Subsystem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.sessions {
		s.raiseIdle(changed)
	}
}
