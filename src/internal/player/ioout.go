package player

import (
	"context"
	"io"

	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
)

// WriterOutput is an AudioOutput that writes PCM frames straight to an
// io.Writer (e.g. an ALSA/PulseAudio handle opened elsewhere, or /dev/null
// in the absence of one). Concrete sound-server backends are out of scope
// (spec.md Non-goals); this is the seam a real one would plug into.
type WriterOutput struct {
	w io.Writer
}

// NewWriterOutput wraps w as an AudioOutput.
func NewWriterOutput(w io.Writer) *WriterOutput { return &WriterOutput{w: w} }

func (o *WriterOutput) Open(ctx context.Context, format pipe.AudioFormat) error { return nil }

func (o *WriterOutput) Write(frame []byte) error {
	_, err := o.w.Write(frame)
	return err
}

func (o *WriterOutput) Pause() error   { return nil }
func (o *WriterOutput) Unpause() error { return nil }
func (o *WriterOutput) Close()         {}
