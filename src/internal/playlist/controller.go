// Package playlist implements the playlist controller: the glue between
// the queue and the player that drives playback (current/queued song,
// auto-advance, stop-on-error policy, consume-mode deletion), per
// spec.md §4.5.
//
// Grounded on spec.md §4.5 and original_source/src/playlist_control.c /
// player_control.c; the teacher has no direct analogue (muserv has no
// play-queue), so the control-flow shape follows spec.md directly.
package playlist

import (
	"sync"
	"time"

	l "github.com/sirupsen/logrus"
	"gitlab.com/mipimipi/mpdgo/src/internal/player"
	"gitlab.com/mipimipi/mpdgo/src/internal/queue"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

var log = l.WithFields(l.Fields{"srv": "playlist"})

// PlaylistPrevUnlessElapsed is the elapsed-seconds threshold past which
// `previous` re-plays the current song instead of going back a track
// (spec.md §4.5).
const PlaylistPrevUnlessElapsed = 3 * time.Second

// Controller wraps a Queue and a player.Worker's control block, tracking
// which order index is playing/queued and the error/skip policy.
type Controller struct {
	mu sync.Mutex

	q    *queue.Queue
	ctrl *player.PlayerControl

	playing      bool
	current      int // order index, -1 if none
	queuedOrder  int // order index, -1 if none
	stopOnError  bool
	errorCount   int
	elapsedStart time.Time
}

// New creates a playlist controller over q and the given player control
// block.
func New(q *queue.Queue, ctrl *player.PlayerControl) *Controller {
	return &Controller{q: q, ctrl: ctrl, current: -1, queuedOrder: -1}
}

func (c *Controller) songAtOrder(o int) (*song.Song, int32, bool) {
	pos, err := c.q.PositionAtOrder(o)
	if err != nil {
		return nil, 0, false
	}
	it, err := c.q.At(pos)
	if err != nil {
		return nil, 0, false
	}
	return it.Song, it.ID, true
}

// Play starts playback at position, or resumes/advances from the current
// song if position is nil.
func (c *Controller) Play(position *int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order := c.current
	if position != nil {
		o := c.q.OrderOf(*position)
		order = o
	} else if order < 0 {
		order = 0
	}
	s, _, ok := c.songAtOrder(order)
	if !ok {
		return queue.ErrBadRange
	}
	c.current = order
	c.queuedOrder = -1
	c.playing = true
	c.elapsedStart = time.Now()
	c.ctrl.Play(s)
	return nil
}

// PlayID starts playback at the queue item with the given id.
func (c *Controller) PlayID(id int32) error {
	pos, ok := c.q.PositionOf(id)
	if !ok {
		return queue.ErrNoSuchSong
	}
	return c.Play(&pos)
}

// Stop stops playback.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.playing = false
	c.queuedOrder = -1
	c.mu.Unlock()
	c.ctrl.Stop()
}

// Pause toggles (or, if set is non-nil, forces) the pause state.
func (c *Controller) Pause(set *bool) {
	if set != nil && *set == (c.ctrl.State() == player.PlayerPause) {
		return
	}
	c.ctrl.Pause()
}

// Next advances to the next song per the queue's repeat/single/consume
// rules, stopping if none remains.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked()
}

func (c *Controller) advanceLocked() error {
	next := c.q.NextOrder(c.current)
	if next < 0 {
		c.playing = false
		c.current = -1
		c.ctrl.Stop()
		return nil
	}
	s, _, ok := c.songAtOrder(next)
	if !ok {
		c.playing = false
		c.current = -1
		c.ctrl.Stop()
		return nil
	}
	c.current = next
	c.elapsedStart = time.Now()
	c.ctrl.Play(s)
	return nil
}

// Previous re-plays the current song if more than
// PlaylistPrevUnlessElapsed has passed, otherwise goes to the previous
// song (wrapping in repeat mode), per spec.md §4.5.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.current - 1
	if c.current == 0 && c.q.Repeat {
		prev = c.q.Len() - 1
	}
	if time.Since(c.elapsedStart) > PlaylistPrevUnlessElapsed || prev < 0 {
		if s, _, ok := c.songAtOrder(c.current); ok {
			c.elapsedStart = time.Now()
			c.ctrl.Play(s)
		}
		return nil
	}
	s, _, ok := c.songAtOrder(prev)
	if !ok {
		return nil
	}
	c.current = prev
	c.elapsedStart = time.Now()
	c.ctrl.Play(s)
	return nil
}

// SeekCurrent seeks the currently playing song by delta seconds (relative)
// or to an absolute position.
func (c *Controller) SeekCurrent(seconds float64, relative bool) {
	ms := int64(seconds * 1000)
	if relative {
		ms += int64(time.Since(c.elapsedStart) / time.Millisecond)
	}
	c.ctrl.Seek(ms)
}

// Seek seeks the song at position.
func (c *Controller) Seek(position int, seconds float64) error {
	o := c.q.OrderOf(position)
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if o != cur {
		if err := c.Play(&position); err != nil {
			return err
		}
	}
	c.ctrl.Seek(int64(seconds * 1000))
	return nil
}

// SeekID seeks the song with the given queue id.
func (c *Controller) SeekID(id int32, seconds float64) error {
	pos, ok := c.q.PositionOf(id)
	if !ok {
		return queue.ErrNoSuchSong
	}
	return c.Seek(pos, seconds)
}

// SetRandom/SetRepeat/SetSingle/SetConsume toggle the queue's playback
// modes.
func (c *Controller) SetRandom(on bool) { c.q.SetRandom(on) }
func (c *Controller) SetRepeat(on bool) { c.q.Repeat = on }
func (c *Controller) SetSingle(on bool) { c.q.Single = on }
func (c *Controller) SetConsume(on bool) { c.q.Consume = on }

// Playing reports whether the controller considers playback active.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// CurrentOrder returns the order index of the currently playing song, or
// -1 if none.
func (c *Controller) CurrentOrder() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// CurrentSong returns the currently playing (or paused) song, its queue id
// and position, or ok=false if nothing is current.
func (c *Controller) CurrentSong() (s *song.Song, id int32, pos int, ok bool) {
	c.mu.Lock()
	order := c.current
	c.mu.Unlock()
	if order < 0 {
		return nil, 0, 0, false
	}
	s, id, ok = c.songAtOrder(order)
	if !ok {
		return nil, 0, 0, false
	}
	pos, err := c.q.PositionAtOrder(order)
	if err != nil {
		return nil, 0, 0, false
	}
	return s, id, pos, true
}

// Elapsed returns the time elapsed since the current song started playing.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current < 0 {
		return 0
	}
	return time.Since(c.elapsedStart)
}

// HandleEvent reacts to a player.Event per spec.md §4.5: on error, apply
// the stop-on-error/error-count policy; on normal end-of-song, advance
// (deleting the finished song first in consume mode); on EventAdvanced,
// promote the queued song to current.
func (c *Controller) HandleEvent(ev player.Event) {
	c.mu.Lock()
	switch ev.Kind {
	case player.EventError:
		c.errorCount++
		stop := ev.Err == player.ErrAudio || ev.Err == player.ErrSystem || c.errorCount >= c.q.Len()
		c.mu.Unlock()
		if stop {
			c.Stop()
			return
		}
		c.mu.Lock()
		if err := c.advanceLocked(); err != nil {
			log.Warnf("advance after error failed: %v", err)
		}
		c.mu.Unlock()

	case player.EventAdvanced:
		if c.queuedOrder >= 0 {
			c.current = c.queuedOrder
			c.queuedOrder = -1
		}
		c.mu.Unlock()

	case player.EventEndOfSong:
		finishedOrder := c.current
		consume := c.q.Consume
		c.mu.Unlock()
		if consume {
			if pos, err := c.q.PositionAtOrder(finishedOrder); err == nil {
				_ = c.q.Delete(pos)
			}
		}
		c.mu.Lock()
		if err := c.advanceLocked(); err != nil {
			log.Warnf("advance at end of song failed: %v", err)
		}
		c.mu.Unlock()
	}
}
