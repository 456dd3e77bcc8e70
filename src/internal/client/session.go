package client

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// maxLineLength caps an unframed input line (spec.md §4.4); overflow
// closes the connection.
const maxLineLength = 40960

// defaultSendBuffer is the fallback output buffer size when the socket
// doesn't expose SO_SNDBUF (spec.md §4.4).
const defaultSendBuffer = 4096

// Permission is the bitmask of operations a session is allowed to perform
// (spec.md §4.4 "permission from password").
type Permission uint32

const (
	PermRead Permission = 1 << iota
	PermAdd
	PermControl
	PermAdmin
)

// deferredChunk is one linked node of a session's spilled-output queue
// (spec.md §3 "optional deferred-output queue (singly linked)").
type deferredChunk struct {
	data []byte
	next *deferredChunk
}

// Session is one client connection: socket, authentication, line framing,
// output buffering with deferred spillover, command-list state, and idle
// subscription (spec.md §3 "Client session").
type Session struct {
	conn net.Conn
	id   int

	mu         sync.Mutex
	permission Permission
	lastActive time.Time

	reader *bufio.Reader
	outBuf *bytes.Buffer
	sendSz int

	deferredHead, deferredTail *deferredChunk
	deferredBytes              int
	maxOutputBuffer            int
	expired                    bool

	listActive  bool
	listOK      bool
	listCmds    []string
	listBytes   int
	maxListByte int

	idleMask    Subsystem
	idling      bool
	idleChanged Subsystem
	idleWake    chan struct{}
	idleCancel  chan struct{}
}

// NewSession wraps conn as a client session. defaultPermission is the
// permission bitmask assigned before any `password` command succeeds.
func NewSession(id int, conn net.Conn, defaultPermission Permission, maxOutputBuffer int) *Session {
	sendSz := defaultSendBuffer
	if tc, ok := conn.(*net.TCPConn); ok {
		if sz, err := sndbufSize(tc); err == nil && sz > 0 {
			sendSz = sz
		}
	}
	return &Session{
		conn:            conn,
		id:              id,
		permission:      defaultPermission,
		lastActive:      time.Now(),
		reader:          bufio.NewReaderSize(conn, maxLineLength+1),
		outBuf:          bytes.NewBuffer(make([]byte, 0, sendSz)),
		sendSz:          sendSz,
		maxOutputBuffer: maxOutputBuffer,
		idleWake:        make(chan struct{}, 1),
		idleCancel:      make(chan struct{}, 1),
	}
}

// ID returns the session's numeric identifier (used by `kill`/diagnostics).
func (s *Session) ID() int { return s.id }

// Permission returns the session's current effective permission bitmask.
func (s *Session) Permission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// SetPermission replaces the session's effective permission.
func (s *Session) SetPermission(p Permission) {
	s.mu.Lock()
	s.permission = p
	s.mu.Unlock()
}

// touch updates the idle-timeout clock.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// TimedOut reports whether the session has been silent longer than timeout.
func (s *Session) TimedOut(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActive) > timeout
}

// ReadLine reads one `\n`-framed (optionally `\r\n`-terminated) command
// line. A line exceeding maxLineLength closes the connection and
// discards the partial line read so far (spec.md §4.4).
func (s *Session) ReadLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if len(line) > maxLineLength {
		return "", errors.New("client: line too long")
	}
	s.touch()
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}

// Write appends data to the session's send buffer, flushing to the
// socket when full; bytes that don't fit spill into the deferred queue
// (spec.md §4.4 "Output buffering").
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outBuf.Len()+len(data) <= s.sendSz {
		s.outBuf.Write(data)
		return nil
	}
	if err := s.flushLocked(); err != nil {
		return err
	}
	if len(data) <= s.sendSz {
		s.outBuf.Write(data)
		return nil
	}
	return s.deferLocked(data)
}

func (s *Session) flushLocked() error {
	if s.outBuf.Len() == 0 {
		return nil
	}
	n, err := s.conn.Write(s.outBuf.Bytes())
	if err != nil {
		return err
	}
	if n < s.outBuf.Len() {
		rest := append([]byte(nil), s.outBuf.Bytes()[n:]...)
		s.outBuf.Reset()
		return s.deferLocked(rest)
	}
	s.outBuf.Reset()
	return nil
}

func (s *Session) deferLocked(data []byte) error {
	node := &deferredChunk{data: data}
	if s.deferredHead == nil {
		s.deferredHead = node
	} else {
		s.deferredTail.next = node
	}
	s.deferredTail = node
	s.deferredBytes += len(data)
	if s.maxOutputBuffer > 0 && s.deferredBytes > s.maxOutputBuffer {
		s.expired = true
		return errors.New("client: output buffer exceeded max_output_buffer_size")
	}
	return nil
}

// Flush drains the send buffer, then attempts to drain as much of the
// deferred queue as the socket accepts without blocking.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	for s.deferredHead != nil {
		n, err := s.conn.Write(s.deferredHead.data)
		if err != nil {
			return err
		}
		if n < len(s.deferredHead.data) {
			s.deferredHead.data = s.deferredHead.data[n:]
			s.deferredBytes -= n
			return nil
		}
		s.deferredBytes -= len(s.deferredHead.data)
		s.deferredHead = s.deferredHead.next
		if s.deferredHead == nil {
			s.deferredTail = nil
		}
	}
	return nil
}

// Expired reports whether the session exceeded its deferred-output byte
// budget and must be closed.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.conn.Close() }

// --- command-list batching (spec.md §4.4) ---

// BeginList starts collecting subsequent command lines instead of
// executing them. okEach sets the `*_ok_begin` variant's per-command
// `list_OK` marker.
func (s *Session) BeginList(okEach bool) error {
	if s.listActive {
		return NewError(AckArg, "command_list_begin", "command_list_ok_begin inside an open list")
	}
	s.listActive = true
	s.listOK = okEach
	s.listCmds = nil
	s.listBytes = 0
	return nil
}

// AppendListLine queues one command line inside an open list.
func (s *Session) AppendListLine(line string) {
	s.listCmds = append(s.listCmds, line)
	s.listBytes += len(line)
}

// InList reports whether a command list is currently being collected.
func (s *Session) InList() bool { return s.listActive }

// EndList returns the collected command lines and the per-command OK-
// marker flag, resetting list state.
func (s *Session) EndList() (cmds []string, okEach bool) {
	cmds, okEach = s.listCmds, s.listOK
	s.listActive = false
	s.listOK = false
	s.listCmds = nil
	return
}

// --- idle (spec.md §4.4) ---

// BeginIdle latches mask as the session's idle subscription.
func (s *Session) BeginIdle(mask Subsystem) {
	s.mu.Lock()
	s.idleMask = mask
	s.idling = true
	s.idleChanged = 0
	s.mu.Unlock()
}

// raiseIdle is called by the IdleBroker; it records bits matching the
// subscription and wakes a parked idle wait.
func (s *Session) raiseIdle(changed Subsystem) {
	s.mu.Lock()
	s.idleChanged |= changed
	matched := s.idling && s.idleChanged&s.idleMask != 0
	s.mu.Unlock()
	if matched {
		select {
		case s.idleWake <- struct{}{}:
		default:
		}
	}
}

// WaitIdle blocks until a subscribed subsystem changes, or the session is
// cancelled (`noidle`), returning the matching bits.
func (s *Session) WaitIdle(cancel <-chan struct{}) Subsystem {
	for {
		s.mu.Lock()
		matched := s.idleChanged & s.idleMask
		if matched != 0 {
			s.idling = false
			s.idleChanged &^= matched
			s.mu.Unlock()
			return matched
		}
		s.mu.Unlock()
		select {
		case <-s.idleWake:
		case <-cancel:
			s.mu.Lock()
			s.idling = false
			s.mu.Unlock()
			return 0
		}
	}
}

// CancelIdle ends a parked idle wait without a match (`noidle`).
func (s *Session) CancelIdle() {
	s.mu.Lock()
	s.idling = false
	s.mu.Unlock()
	select {
	case s.idleWake <- struct{}{}:
	default:
	}
}

// Idling reports whether the session is currently parked in `idle`,
// waiting for a subsystem change. The connection loop uses this to route
// a `noidle` line straight to RequestNoIdle instead of queuing it behind
// the blocked idle command.
func (s *Session) Idling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idling
}

// IdleCancel returns the channel a parked WaitIdle call selects on to be
// woken by RequestNoIdle. The connection loop that reads `noidle` while
// `idle` is still blocked (a dedicated reader goroutine, since a session
// only processes one command at a time otherwise) must call
// RequestNoIdle, not CancelIdle directly, so WaitIdle itself clears the
// idling flag exactly once.
func (s *Session) IdleCancel() <-chan struct{} { return s.idleCancel }

// RequestNoIdle signals a parked WaitIdle to return with no matched bits.
func (s *Session) RequestNoIdle() {
	select {
	case s.idleCancel <- struct{}{}:
	default:
	}
}
