package playlist

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
	"gitlab.com/mipimipi/mpdgo/src/internal/player"
	"gitlab.com/mipimipi/mpdgo/src/internal/queue"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

// newTestRig wires a real decoder/player worker pair against a tiny raw-PCM
// file, the same shape server.Run assembles, so Controller's command
// rendezvous with PlayerControl is exercised end to end rather than faked.
func newTestRig(t *testing.T) (*queue.Queue, *player.PlayerControl) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "silence.pcm")
	if err := os.WriteFile(path, make([]byte, pipe.ChunkSize*8), 0644); err != nil {
		t.Fatalf("write test pcm: %v", err)
	}

	format := pipe.AudioFormat{SampleRate: 44100, Channels: 2, SampleSize: 2}
	p := pipe.New(4)
	decoder := player.NewRawPCMDecoder(format)
	decWorker, decCtrl := player.NewDecoderWorker(p, decoder)

	events := make(chan player.Event, 8)
	cfg := player.Config{PipeSize: 4, BufferedBeforePlay: 1}
	worker, ctrl := player.NewWorker(p, decCtrl, player.NewWriterOutput(io.Discard), cfg, events)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go decWorker.Run(ctx)
	go worker.Run(ctx)

	q := queue.New(16)
	for i := 0; i < 3; i++ {
		if _, err := q.Append(song.NewInDatabase(path, "", 0, song.New()), 0); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return q, ctrl
}

func TestPlayStartsAtFirstSongByDefault(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	if err := c.Play(nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	if c.CurrentOrder() != 0 {
		t.Fatalf("expected order 0, got %d", c.CurrentOrder())
	}
	if !c.Playing() {
		t.Fatal("expected Playing() true after Play")
	}
}

func TestPlayPositionSelectsThatSong(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	pos := 2
	if err := c.Play(&pos); err != nil {
		t.Fatalf("play: %v", err)
	}
	if c.CurrentOrder() != 2 {
		t.Fatalf("expected order 2, got %d", c.CurrentOrder())
	}
}

func TestPlayRejectsOutOfRangePosition(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	pos := 99
	if err := c.Play(&pos); err != queue.ErrBadRange {
		t.Fatalf("expected ErrBadRange, got %v", err)
	}
}

func TestStopClearsPlayingState(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	if err := c.Play(nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	c.Stop()
	if c.Playing() {
		t.Fatal("expected Playing() false after Stop")
	}
}

func TestNextAdvancesOrder(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	if err := c.Play(nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := c.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if c.CurrentOrder() != 1 {
		t.Fatalf("expected order 1 after next, got %d", c.CurrentOrder())
	}
}

func TestNextAtEndOfQueueStopsWithoutRepeat(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	pos := 2
	if err := c.Play(&pos); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := c.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if c.Playing() {
		t.Fatal("expected playback to stop at end of queue without repeat")
	}
	if c.CurrentOrder() != -1 {
		t.Fatalf("expected order -1 after stopping, got %d", c.CurrentOrder())
	}
}

func TestPreviousReplaysWhenElapsedExceedsThreshold(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	pos := 1
	if err := c.Play(&pos); err != nil {
		t.Fatalf("play: %v", err)
	}
	c.elapsedStart = time.Now().Add(-(PlaylistPrevUnlessElapsed + time.Second))

	if err := c.Previous(); err != nil {
		t.Fatalf("previous: %v", err)
	}
	if c.CurrentOrder() != 1 {
		t.Fatalf("expected to stay at order 1 (replay), got %d", c.CurrentOrder())
	}
}

func TestPreviousGoesBackWhenRecentlyStarted(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	pos := 1
	if err := c.Play(&pos); err != nil {
		t.Fatalf("play: %v", err)
	}

	if err := c.Previous(); err != nil {
		t.Fatalf("previous: %v", err)
	}
	if c.CurrentOrder() != 0 {
		t.Fatalf("expected order 0 after previous, got %d", c.CurrentOrder())
	}
}

func TestCurrentSongReportsPositionAndID(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	if err := c.Play(nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	s, id, pos, ok := c.CurrentSong()
	if !ok {
		t.Fatal("expected a current song")
	}
	if pos != 0 || id != 0 || s == nil {
		t.Fatalf("unexpected current song: s=%v id=%d pos=%d", s, id, pos)
	}
}

func TestHandleEventEndOfSongConsumeDeletesFinishedSong(t *testing.T) {
	q, ctrl := newTestRig(t)
	q.Consume = true
	c := New(q, ctrl)

	if err := c.Play(nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	lenBefore := q.Len()
	c.HandleEvent(player.Event{Kind: player.EventEndOfSong})
	if q.Len() != lenBefore-1 {
		t.Fatalf("expected queue to shrink by one, had %d now %d", lenBefore, q.Len())
	}
}

func TestHandleEventErrorStopsAfterExhaustingQueue(t *testing.T) {
	q, ctrl := newTestRig(t)
	c := New(q, ctrl)

	if err := c.Play(nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	for i := 0; i < q.Len(); i++ {
		c.HandleEvent(player.Event{Kind: player.EventError, Err: player.ErrFile})
	}
	if c.Playing() {
		t.Fatal("expected playback to stop after errorCount reaches queue length")
	}
}
