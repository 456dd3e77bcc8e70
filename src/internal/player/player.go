package player

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

var log = logrus.WithFields(logrus.Fields{"srv": "player"})

// PlayerState is the player worker's externally observable state.
type PlayerState int

const (
	PlayerStop PlayerState = iota
	PlayerPause
	PlayerPlay
)

// PlayerCommand is a request the player worker processes between chunk
// emissions (spec.md §4.3 "Commands the player must handle mid-loop").
type PlayerCommand int

const (
	PlayerNone PlayerCommand = iota
	PlayerExit
	PlayerStopCmd
	PlayerPlayCmd
	PlayerPauseCmd
	PlayerSeekCmd
	PlayerCloseAudio
	PlayerQueueCmd
	PlayerCancel
)

// XfadeState tracks whether a cross-fade has been sized for the current
// transition.
type XfadeState int

const (
	XfadeUnknown XfadeState = iota
	XfadeDisabled
	XfadeEnabled
)

// AudioOutput is the playback sink. Concrete backends (ALSA, PulseAudio,
// ...) are out of scope (spec.md Non-goals); tests use an in-memory sink.
type AudioOutput interface {
	Open(ctx context.Context, format pipe.AudioFormat) error
	Write(frame []byte) error
	Pause() error
	Unpause() error
	Close()
}

// Config holds the tunables the player main loop needs.
type Config struct {
	PipeSize           int // chunks
	BufferedBeforePlay int // chunks
	CrossFadeSeconds   float64
	ReplayGainPreamp   float64
	ReplayGainMode     ReplayGainMode
}

// PlayerControl is the player worker's command/state block, written by the
// playlist controller and read by the player main loop (spec.md §4.3/§9).
type PlayerControl struct {
	mu      sync.Mutex
	state   PlayerState
	command PlayerCommand

	song       *song.Song
	queuedSong *song.Song
	seekMS     int64
	softVolume int // 0-1000, per spec.md §4.3

	err ErrorKind

	wake chan struct{}
	done chan struct{}
}

func newPlayerControl() *PlayerControl {
	return &PlayerControl{
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		softVolume: 1000,
	}
}

func (c *PlayerControl) State() PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *PlayerControl) setState(s PlayerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *PlayerControl) Error() ErrorKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *PlayerControl) SetSoftwareVolume(v int) {
	if v < 0 {
		v = 0
	}
	if v > 1000 {
		v = 1000
	}
	c.mu.Lock()
	c.softVolume = v
	c.mu.Unlock()
}

func (c *PlayerControl) issue(cmd PlayerCommand, s *song.Song, seekMS int64) {
	c.mu.Lock()
	c.command = cmd
	switch cmd {
	case PlayerPlayCmd:
		c.song = s
	case PlayerQueueCmd:
		c.queuedSong = s
	case PlayerSeekCmd:
		c.seekMS = seekMS
	}
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()
	wake(c.wake)
	<-done
}

// Play asks the player to start playing s from the beginning.
func (c *PlayerControl) Play(s *song.Song) { c.issue(PlayerPlayCmd, s, 0) }

// Queue hands the player the next song to cross-fade into.
func (c *PlayerControl) Queue(s *song.Song) { c.issue(PlayerQueueCmd, s, 0) }

// Stop asks the player to stop and drop buffered output.
func (c *PlayerControl) Stop() { c.issue(PlayerStopCmd, nil, 0) }

// Pause toggles pause state.
func (c *PlayerControl) Pause() { c.issue(PlayerPauseCmd, nil, 0) }

// Seek asks the player to seek within the current (or queued) song.
func (c *PlayerControl) Seek(ms int64) { c.issue(PlayerSeekCmd, nil, ms) }

// Cancel clears a queued-but-not-yet-decoding next song, or chops a
// next song that has already begun decoding.
func (c *PlayerControl) Cancel() { c.issue(PlayerCancel, nil, 0) }

// Exit stops the player loop entirely.
func (c *PlayerControl) Exit() { c.issue(PlayerExit, nil, 0) }

// Event is emitted by the player when it finishes, advances to its queued
// song, or errors (spec.md §4.5).
type Event struct {
	Kind      EventKind
	Err       ErrorKind
	AdvancedToQueued bool
}

// EventKind classifies a player Event.
type EventKind int

const (
	EventEndOfSong EventKind = iota
	EventAdvanced
	EventError
)

// Worker drives a decoder worker and an audio output against a shared
// music pipe, implementing the cross-fade main loop of spec.md §4.3.
type Worker struct {
	ctrl    *PlayerControl
	decCtrl *DecoderControl
	pipe    *pipe.Pipe
	output  AudioOutput
	cfg     Config
	events  chan Event

	buffering       bool
	decoderStarting bool
	paused          bool
	queued          bool
	curSong         *song.Song
	xfade           XfadeState
	nextSongChunk   int64
	xfadeChunks     int
	curFormat       pipe.AudioFormat
	rgScale         float64
}

// NewWorker creates a player worker. events must be buffered or drained
// promptly; the worker drops an event rather than block if it is full.
func NewWorker(p *pipe.Pipe, decCtrl *DecoderControl, output AudioOutput, cfg Config, events chan Event) (*Worker, *PlayerControl) {
	ctrl := newPlayerControl()
	return &Worker{
		ctrl:          ctrl,
		decCtrl:       decCtrl,
		pipe:          p,
		output:        output,
		cfg:           cfg,
		events:        events,
		nextSongChunk: -1,
	}, ctrl
}

func (w *Worker) emit(e Event) {
	select {
	case w.events <- e:
	default:
		log.Warn("dropping player event, consumer too slow")
	}
}

// Run is the player's main loop; it returns when PlayerExit is processed
// or ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		w.ctrl.mu.Lock()
		cmd := w.ctrl.command
		w.ctrl.mu.Unlock()

		switch cmd {
		case PlayerPlayCmd:
			w.ctrl.mu.Lock()
			w.curSong = w.ctrl.song
			w.ctrl.mu.Unlock()
			w.ackCommand()
			w.playSong(ctx)
		case PlayerExit:
			w.ackCommand()
			return
		case PlayerNone:
			select {
			case <-ctx.Done():
				return
			case <-w.ctrl.wake:
			}
		default:
			// QUEUE/STOP/PAUSE/SEEK/CANCEL with nothing playing: no-op ack.
			w.ackCommand()
		}
	}
}

func (w *Worker) ackCommand() {
	w.ctrl.mu.Lock()
	w.ctrl.command = PlayerNone
	done := w.ctrl.done
	w.ctrl.mu.Unlock()
	close(done)
}

// playSong implements spec.md §4.3's per-song main loop.
func (w *Worker) playSong(ctx context.Context) {
	w.buffering = true
	w.decoderStarting = true
	w.paused = false
	w.queued = false
	w.xfade = XfadeUnknown
	w.nextSongChunk = -1
	w.pipe.Clear()
	w.ctrl.setState(PlayerPlay)
	gainDB, peak := replayGainGainForSong(w.cfg.ReplayGainMode, w.curSong)
	w.rgScale = SongReplayGainScale(w.cfg.ReplayGainMode, gainDB, peak, w.cfg.ReplayGainPreamp)

	w.decCtrl.issue(DecoderCmdStart, w.curSong.URI, 0)
	if w.decCtrl.State() == DecoderError {
		w.emit(Event{Kind: EventError, Err: w.decCtrl.Error()})
		return
	}
	w.decoderStarting = false

	for w.buffering {
		if w.pipe.Count() >= w.cfg.BufferedBeforePlay {
			w.buffering = false
			w.pipe.SetLazy(true)
			break
		}
		if w.decCtrl.State() != DecoderDecode {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-w.decCtrl.wake:
		case <-time.After(5 * time.Millisecond):
		}
	}

	if head, ok := w.pipe.Head(); ok {
		w.curFormat = head.Format
	}
	if err := w.output.Open(ctx, w.curFormat); err != nil {
		w.emit(Event{Kind: EventError, Err: ErrAudio})
		return
	}
	defer w.output.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if done, adv := w.handleMidLoopCommand(ctx); done {
			if adv {
				w.emit(Event{Kind: EventAdvanced, AdvancedToQueued: true})
			}
			return
		}

		if w.decCtrl.State() != DecoderDecode && w.queued && w.nextSongChunk < 0 {
			w.nextSongChunk = w.pipe.TailIndex()
			w.decCtrl.startAsync(w.ctrl.queuedSongURI())
		}

		if w.nextSongChunk >= 0 && w.xfade == XfadeUnknown && w.decCtrl.State() != DecoderStart {
			w.xfadeChunks = computeXfadeChunks(w.cfg, w.curFormat, w.curFormat, w.pipe)
			if w.xfadeChunks <= 0 {
				w.xfade = XfadeDisabled
			} else {
				w.xfade = XfadeEnabled
			}
		}

		head, ok := w.pipe.Head()
		if !ok {
			if w.decCtrl.State() == DecoderDecode {
				w.playSilence()
				continue
			}
			w.ctrl.setState(PlayerStop)
			w.emit(Event{Kind: EventEndOfSong})
			return
		}

		if !w.pipe.HeadIs(w.nextSongChunk) {
			if w.xfade == XfadeEnabled && w.pipe.Relative(w.pipe.TailIndex()) <= w.xfadeChunks {
				w.mixAndEmit(head)
			} else {
				w.emitChunk(head)
			}
			w.pipe.Shift()
			if w.pipe.Count() < (w.cfg.BufferedBeforePlay*3)/4 {
				wake(w.decCtrl.wake)
			}
			continue
		}

		// head is the next song's first chunk: cross-fade complete.
		w.pipe.Skip(w.xfadeChunks)
		return
	}
}

func (w *Worker) playSilence() {
	frame := make([]byte, pipe.ChunkSize)
	_ = w.output.Write(frame)
}

func (w *Worker) emitChunk(c *pipe.Chunk) {
	scale := replayGainScale(w.rgScale, w.ctrl.softwareVolumeSnapshot())
	data := applyVolume(c.Data[:c.Len], c.Format, scale)
	_ = w.output.Write(data)
}

func (w *Worker) mixAndEmit(c *pipe.Chunk) {
	p := w.pipe.Relative(w.pipe.Absolute(0))
	incoming, ok := w.pipe.At(w.pipe.Absolute(w.xfadeChunks))
	if !ok {
		w.emitChunk(c)
		return
	}
	mixed := mixCrossfade(c, incoming, p, w.xfadeChunks)
	scale := replayGainScale(w.rgScale, w.ctrl.softwareVolumeSnapshot())
	data := applyVolume(mixed, c.Format, scale)
	_ = w.output.Write(data)
}

func (c *PlayerControl) softwareVolumeSnapshot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.softVolume
}

// SoftwareVolume returns the current software volume (0-1000), used by
// `status`'s `volume:` field.
func (c *PlayerControl) SoftwareVolume() int { return c.softwareVolumeSnapshot() }

func (c *PlayerControl) queuedSongURI() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queuedSong == nil {
		return ""
	}
	return c.queuedSong.URI
}

// handleMidLoopCommand processes at most one pending command per
// iteration (spec.md §4.3 "Commands the player must handle mid-loop").
// done reports the loop should return; advanced reports it should do so
// having emitted an EventAdvanced instead of falling through normally.
func (w *Worker) handleMidLoopCommand(ctx context.Context) (done, advanced bool) {
	w.ctrl.mu.Lock()
	cmd := w.ctrl.command
	w.ctrl.mu.Unlock()

	switch cmd {
	case PlayerNone:
		return false, false
	case PlayerStopCmd, PlayerExit, PlayerCloseAudio:
		w.decCtrl.issue(DecoderCmdStop, "", 0)
		w.ctrl.setState(PlayerStop)
		w.ackCommand()
		return true, false
	case PlayerPlayCmd:
		// Left pending: Run starts the new song once playSong has returned.
		w.decCtrl.issue(DecoderCmdStop, "", 0)
		return true, false
	case PlayerQueueCmd:
		w.queued = true
		w.ackCommand()
		return false, false
	case PlayerPauseCmd:
		w.paused = !w.paused
		if w.paused {
			_ = w.output.Pause()
			w.ctrl.setState(PlayerPause)
		} else if err := w.output.Unpause(); err != nil {
			w.paused = true
		} else {
			w.ctrl.setState(PlayerPlay)
		}
		w.ackCommand()
		return false, false
	case PlayerSeekCmd:
		w.ctrl.mu.Lock()
		target := w.ctrl.seekMS
		w.ctrl.mu.Unlock()
		w.decCtrl.issue(DecoderCmdSeek, "", target)
		w.xfade = XfadeUnknown
		w.buffering = false
		w.ackCommand()
		return false, false
	case PlayerCancel:
		if w.queued && w.nextSongChunk < 0 {
			w.queued = false
		} else if w.nextSongChunk >= 0 {
			w.decCtrl.issue(DecoderCmdStop, "", 0)
			w.pipe.Chop(w.nextSongChunk)
			w.nextSongChunk = -1
			w.queued = false
		}
		w.ackCommand()
		return false, false
	default:
		w.ackCommand()
		return false, false
	}
}
