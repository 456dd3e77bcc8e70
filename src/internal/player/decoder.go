// Package player implements the decoder/player worker pair and the
// cross-fading playback core that connects them through a music pipe
// (spec.md §4.3).
//
// Grounded on spec.md §4.3/§5 and original_source/src/player_thread.c and
// decoder_thread.c for the decode-loop/command-check interleaving. Command
// rendezvous is implemented as a typed command field plus a completion
// channel, the shape of the teacher's own
// content/updater.go:UpdateNotification{Update func(), Updated chan
// uint32} idiom generalized to a synchronous command/ack pair, per
// spec.md §9's explicit preference for channels over condvars.
package player

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
)

// ErrUnsupportedType is returned by a Decoder's Open when no plugin
// matches the resource's mime-type, suffix, or the mp3 fallback.
var ErrUnsupportedType = errors.New("player: unsupported type")

// DecoderState is the decoder worker's externally observable state.
type DecoderState int

const (
	DecoderStop DecoderState = iota
	DecoderStart
	DecoderDecode
	DecoderError
)

// DecoderCommand is a request the decoder worker processes cooperatively.
type DecoderCommand int

const (
	DecoderNone DecoderCommand = iota
	DecoderCmdStart
	DecoderCmdStop
	DecoderCmdSeek
)

// ErrorKind classifies a playback failure (spec.md §4.3/§4.5).
type ErrorKind int

const (
	ErrNone ErrorKind = iota
	ErrFile
	ErrUnknownType
	ErrAudio
	ErrSystem
)

// Decoder is the pluggable decode backend. mpdgo ships one in-memory
// PCM-generating implementation for tests; real codec plugins are out of
// scope (spec.md Non-goals).
type Decoder interface {
	// Open resolves uri to an audio format, or returns an error classified
	// by the caller as ErrFile/ErrUnknownType.
	Open(ctx context.Context, uri string) (pipe.AudioFormat, error)
	// Decode streams PCM into p until end of stream or shouldStop reports
	// true, at which point it must return promptly. seekMS, if >= 0, asks
	// the decoder to start output at that position.
	Decode(p *pipe.Pipe, format pipe.AudioFormat, seekMS int64, shouldStop func() bool) error
	Close()
}

// DecoderControl is the decoder worker's synchronization block: the fields
// a requester (the player worker) writes, plus the channels used to signal
// and wait for completion.
type DecoderControl struct {
	mu      sync.Mutex
	state   DecoderState
	command DecoderCommand
	nextURI string
	seekMS  int64
	err     ErrorKind

	wake chan struct{}
	done chan struct{}
}

func newDecoderControl() *DecoderControl {
	return &DecoderControl{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// State returns the decoder's current state.
func (c *DecoderControl) State() DecoderState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Error returns the last error kind set by the decoder.
func (c *DecoderControl) Error() ErrorKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// issue writes a command and blocks until the worker has processed it and
// returned the command field to DecoderNone (spec.md §4.3's synchronous
// command semantics).
func (c *DecoderControl) issue(cmd DecoderCommand, uri string, seekMS int64) {
	c.mu.Lock()
	c.command = cmd
	if uri != "" {
		c.nextURI = uri
	}
	c.seekMS = seekMS
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()
	wake(c.wake)
	<-done
}

// startAsync issues Start without waiting for completion (spec.md §4.3:
// "Asynchronous variants omit the wait but keep the signal").
func (c *DecoderControl) startAsync(uri string) {
	c.mu.Lock()
	c.command = DecoderCmdStart
	c.nextURI = uri
	c.done = make(chan struct{})
	c.mu.Unlock()
	wake(c.wake)
}

// DecoderWorker drives a Decoder against a music pipe, reacting to
// DecoderControl commands.
type DecoderWorker struct {
	ctrl    *DecoderControl
	pipe    *pipe.Pipe
	decoder Decoder

	shouldStop func() bool
}

// NewDecoderWorker creates a decoder worker bound to the given pipe and
// backend.
func NewDecoderWorker(p *pipe.Pipe, d Decoder) (*DecoderWorker, *DecoderControl) {
	ctrl := newDecoderControl()
	w := &DecoderWorker{ctrl: ctrl, pipe: p, decoder: d}
	w.shouldStop = func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return ctrl.command == DecoderCmdStop
	}
	return w, ctrl
}

// Run is the decoder worker's main loop; it blocks until ctx is cancelled.
func (w *DecoderWorker) Run(ctx context.Context) {
	for {
		w.ctrl.mu.Lock()
		cmd := w.ctrl.command
		w.ctrl.mu.Unlock()

		switch cmd {
		case DecoderCmdStart, DecoderCmdSeek:
			if w.handleStart(ctx, cmd) {
				continue
			}
		case DecoderCmdStop:
			w.handleStop()
		case DecoderNone:
			select {
			case <-ctx.Done():
				return
			case <-w.ctrl.wake:
			}
			continue
		}

		w.ctrl.mu.Lock()
		w.ctrl.command = DecoderNone
		done := w.ctrl.done
		w.ctrl.mu.Unlock()
		close(done)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleStart opens and decodes the requested song. The command is
// acknowledged as soon as the song is open and decoding begins; it returns
// true in that case, false if Open failed and the caller still has to ack.
func (w *DecoderWorker) handleStart(ctx context.Context, cmd DecoderCommand) bool {
	w.ctrl.mu.Lock()
	uri := w.ctrl.nextURI
	seekMS := int64(-1)
	if cmd == DecoderCmdSeek {
		seekMS = w.ctrl.seekMS
	}
	w.ctrl.state = DecoderStart
	w.ctrl.mu.Unlock()

	format, err := w.decoder.Open(ctx, uri)
	if err != nil {
		w.ctrl.mu.Lock()
		w.ctrl.state = DecoderError
		w.ctrl.err = classifyOpenError(err)
		w.ctrl.mu.Unlock()
		return false
	}

	w.ctrl.mu.Lock()
	w.ctrl.state = DecoderDecode
	w.ctrl.command = DecoderNone
	done := w.ctrl.done
	w.ctrl.mu.Unlock()
	close(done)

	if err := w.decoder.Decode(w.pipe, format, seekMS, w.shouldStop); err != nil {
		w.ctrl.mu.Lock()
		w.ctrl.state = DecoderError
		w.ctrl.err = ErrSystem
		w.ctrl.mu.Unlock()
		return true
	}

	w.ctrl.mu.Lock()
	w.ctrl.state = DecoderStop
	w.ctrl.mu.Unlock()
	return true
}

func (w *DecoderWorker) handleStop() {
	w.decoder.Close()
	w.pipe.Clear()
	w.ctrl.mu.Lock()
	w.ctrl.state = DecoderStop
	w.ctrl.mu.Unlock()
}

// classifyOpenError maps a backend Open failure to spec.md's FILE/UNKTYPE
// error kinds. Real plugin selection (mime-type, then suffix, then the
// fallback mp3 plugin) lives in the Decoder implementation; this worker
// only distinguishes "could not open" from "unrecognized type" via the
// sentinel the Decoder returns.
func classifyOpenError(err error) ErrorKind {
	if err == ErrUnsupportedType {
		return ErrUnknownType
	}
	return ErrFile
}
