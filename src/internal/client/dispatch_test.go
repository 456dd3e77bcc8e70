package client

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/mipimipi/mpdgo/src/internal/config"
	"gitlab.com/mipimipi/mpdgo/src/internal/database"
	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
	"gitlab.com/mipimipi/mpdgo/src/internal/player"
	"gitlab.com/mipimipi/mpdgo/src/internal/playlist"
	"gitlab.com/mipimipi/mpdgo/src/internal/queue"
)

// newTestDispatcher builds a Dispatcher over a populated database and an
// idle (never-run) player control block: every command this file exercises
// only reads PlayerCtrl's state or mutates it directly (SetSoftwareVolume),
// never issues a command that would require a live Worker goroutine to ack.
func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("x"), 0644); err != nil {
		t.Fatalf("write song: %v", err)
	}
	db := database.New(dir, config.Symlinks{})
	db.Update("", false)
	select {
	case res := <-db.Results():
		if res.Err != nil {
			t.Fatalf("scan: %v", res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out scanning test database")
	}

	q := queue.New(16)
	p := pipe.New(2)
	decCtrl := func() *player.DecoderControl {
		_, c := player.NewDecoderWorker(p, player.NewRawPCMDecoder(pipe.AudioFormat{}))
		return c
	}()
	_, pc := player.NewWorker(p, decCtrl, player.NewWriterOutput(io.Discard), player.Config{}, make(chan player.Event, 1))
	pl := playlist.New(q, pc)

	d := New(db, q, pl, pc)
	d.DefaultPerm = PermRead | PermAdd | PermControl | PermAdmin
	return d
}

// dispatchLine runs one command line through the dispatcher over a real
// net.Conn pair and returns the reply written back to the client.
func dispatchLine(t *testing.T, d *Dispatcher, s *Session, client net.Conn, line string) string {
	t.Helper()
	closeNow := d.Dispatch(s, line)
	// net.Pipe is unbuffered: Flush blocks until the client side reads.
	flushErr := make(chan error, 1)
	go func() { flushErr <- s.Flush() }()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := readReply(client)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if err := <-flushErr; err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = closeNow
	return reply
}

// readReply reads lines until one that starts with "OK", "ACK" or
// "list_OK".
func readReply(conn net.Conn) (string, error) {
	r := bufio.NewReader(conn)
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(line)
		if strings.HasPrefix(line, "OK") || strings.HasPrefix(line, "ACK") || strings.HasPrefix(line, "list_OK") {
			return sb.String(), nil
		}
	}
}

func newTestSession(d *Dispatcher) (*Session, net.Conn) {
	server, client := net.Pipe()
	s := NewSession(d.NextSessionID(), server, d.DefaultPerm, 0)
	return s, client
}

func TestDispatchPing(t *testing.T) {
	d := newTestDispatcher(t)
	s, client := newTestSession(d)
	defer s.Close()
	defer client.Close()

	reply := dispatchLine(t, d, s, client, "ping")
	if reply != "OK\n" {
		t.Fatalf("expected bare OK, got %q", reply)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := newTestDispatcher(t)
	s, client := newTestSession(d)
	defer s.Close()
	defer client.Close()

	reply := dispatchLine(t, d, s, client, "bogus")
	if !strings.HasPrefix(reply, "ACK [5@0]") {
		t.Fatalf("expected AckUnknown ACK, got %q", reply)
	}
}

func TestDispatchWrongArgCount(t *testing.T) {
	d := newTestDispatcher(t)
	s, client := newTestSession(d)
	defer s.Close()
	defer client.Close()

	reply := dispatchLine(t, d, s, client, "seek 1")
	if !strings.HasPrefix(reply, "ACK [2@0]") {
		t.Fatalf("expected AckArg ACK, got %q", reply)
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	d := newTestDispatcher(t)
	server, client := net.Pipe()
	s := NewSession(d.NextSessionID(), server, PermRead, 0)
	defer s.Close()
	defer client.Close()

	reply := dispatchLine(t, d, s, client, "update")
	if !strings.HasPrefix(reply, "ACK [4@0]") {
		t.Fatalf("expected AckPermission ACK, got %q", reply)
	}
}

func TestDispatchAddAndStatus(t *testing.T) {
	d := newTestDispatcher(t)
	s, client := newTestSession(d)
	defer s.Close()
	defer client.Close()

	reply := dispatchLine(t, d, s, client, "add song.mp3")
	if reply != "OK\n" {
		t.Fatalf("expected OK from add, got %q", reply)
	}
	if d.Queue.Len() != 1 {
		t.Fatalf("expected 1 queued song, got %d", d.Queue.Len())
	}

	reply = dispatchLine(t, d, s, client, "status")
	if !strings.Contains(reply, "state: stop") {
		t.Fatalf("expected stopped state in status, got %q", reply)
	}
	if !strings.HasSuffix(reply, "OK\n") {
		t.Fatalf("expected status reply to end with OK, got %q", reply)
	}
}

func TestDispatchAddMissingSongIsNoExist(t *testing.T) {
	d := newTestDispatcher(t)
	s, client := newTestSession(d)
	defer s.Close()
	defer client.Close()

	reply := dispatchLine(t, d, s, client, "add nope.mp3")
	if !strings.HasPrefix(reply, "ACK [50@0]") {
		t.Fatalf("expected AckNoExist ACK, got %q", reply)
	}
}

func TestDispatchSetVolAndStatusReflectsIt(t *testing.T) {
	d := newTestDispatcher(t)
	s, client := newTestSession(d)
	defer s.Close()
	defer client.Close()

	reply := dispatchLine(t, d, s, client, "setvol 50")
	if reply != "OK\n" {
		t.Fatalf("expected OK, got %q", reply)
	}
	reply = dispatchLine(t, d, s, client, "status")
	if !strings.Contains(reply, "volume: 50") {
		t.Fatalf("expected volume: 50 in status, got %q", reply)
	}
}

func TestDispatchCommandListBatchesAtomically(t *testing.T) {
	d := newTestDispatcher(t)
	s, client := newTestSession(d)
	defer s.Close()
	defer client.Close()

	if closed := d.Dispatch(s, "command_list_begin"); closed {
		t.Fatal("unexpected close on command_list_begin")
	}
	if closed := d.Dispatch(s, "add song.mp3"); closed {
		t.Fatal("unexpected close queuing add")
	}
	if closed := d.Dispatch(s, "ping"); closed {
		t.Fatal("unexpected close queuing ping")
	}
	d.Dispatch(s, "command_list_end")
	flushErr := make(chan error, 1)
	go func() { flushErr <- s.Flush() }()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := readReply(client)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if err := <-flushErr; err != nil {
		t.Fatalf("flush: %v", err)
	}
	if reply != "OK\n" {
		t.Fatalf("expected single trailing OK for the whole list, got %q", reply)
	}
	if d.Queue.Len() != 1 {
		t.Fatalf("expected the batched add to have run, queue len %d", d.Queue.Len())
	}
}
