package player

import (
	"context"
	"io"
	"os"
	"time"

	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
)

// RawPCMDecoder is the one Decoder implementation mpdgo ships: it treats
// its URI as a path to a headerless signed-16-bit-little-endian PCM file
// at a fixed format. Real codec plugins (mp3, flac, ...) are out of scope
// (spec.md Non-goals); this exists so the player main loop has a concrete
// backend to drive end to end.
type RawPCMDecoder struct {
	Format pipe.AudioFormat

	f *os.File
}

// NewRawPCMDecoder creates a decoder that assumes every URI it is asked to
// open is raw PCM at the given format.
func NewRawPCMDecoder(format pipe.AudioFormat) *RawPCMDecoder {
	return &RawPCMDecoder{Format: format}
}

// Open opens uri as a plain file, classifying a missing/unreadable file as
// ErrFile (spec.md §4.3).
func (d *RawPCMDecoder) Open(ctx context.Context, uri string) (pipe.AudioFormat, error) {
	f, err := os.Open(uri)
	if err != nil {
		return pipe.AudioFormat{}, err
	}
	d.f = f
	return d.Format, nil
}

// Decode streams the file's bytes into p, chunk by chunk, honoring seekMS
// by skipping the equivalent byte offset and shouldStop by returning as
// soon as it is polled true.
func (d *RawPCMDecoder) Decode(p *pipe.Pipe, format pipe.AudioFormat, seekMS int64, shouldStop func() bool) error {
	bytesPerSample := format.SampleSize * format.Channels
	bytesPerSecond := bytesPerSample * format.SampleRate

	if seekMS >= 0 {
		offset := int64(bytesPerSecond) * seekMS / 1000
		if _, err := d.f.Seek(offset, io.SeekStart); err != nil {
			return err
		}
	}

	buf := make([]byte, pipe.ChunkSize)
	bitRate := bytesPerSecond * 8 / 1000
	for {
		if shouldStop() {
			return nil
		}
		n, err := io.ReadFull(d.f, buf)
		if n > 0 {
			remaining := n
			for remaining > 0 {
				w, ok := p.Write(format, 0, bitRate)
				if !ok {
					if shouldStop() {
						return nil
					}
					time.Sleep(time.Millisecond)
					continue
				}
				m := copy(w, buf[n-remaining:n])
				p.Expand(m)
				remaining -= m
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close releases the open file handle.
func (d *RawPCMDecoder) Close() {
	if d.f != nil {
		d.f.Close()
		d.f = nil
	}
}
