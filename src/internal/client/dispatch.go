package client

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Handler executes one command's semantics, returning the `key: value\n`
// body to send before the trailing OK (or "" for none). Handlers signal
// failure by returning a *Error (mapped straight to the ACK wire form);
// any other error is wrapped as AckSystem.
type Handler func(ctx *Context, args []string) (string, error)

// Entry is one row of the command dispatch table (spec.md §4.4): name,
// required permission bits, inclusive arg-count range (-1 max = unlimited),
// and its handler.
type Entry struct {
	Name       string
	Permission Permission
	MinArgs    int
	MaxArgs    int // -1 = unlimited
	Handler    Handler
}

// Table is the command dispatch table, keyed by exact command name
// (spec.md §4.4 "Commands are looked up by case-sensitive exact match").
type Table map[string]Entry

// Register adds entries to the table, keyed by their Name.
func (t Table) Register(entries ...Entry) {
	for _, e := range entries {
		t[e.Name] = e
	}
}

// Context bundles everything a Handler needs: the issuing session and the
// shared server-side state a Dispatcher owns.
type Context struct {
	Session *Session
	Server  *Dispatcher
}

// Dispatch processes one raw command line read from s: tokenizes it,
// handles the two command-list bracket commands specially, and otherwise
// looks up and executes (or, inside an open list, enqueues) it. It writes
// the ACK/OK reply to s itself and returns false normally, true if the
// session should now be closed (`close`/`kill`). Framing and output-buffer
// overflows are not reported here; the Session surfaces them through
// ReadLine errors and Expired.
func (d *Dispatcher) Dispatch(s *Session, line string) bool {
	tokens, err := Tokenize(line)
	if err != nil {
		s.Write([]byte(NewError(AckArg, "", err.Error()).Line()))
		return false
	}
	if len(tokens) == 0 {
		s.Write([]byte(NewError(AckUnknown, "", "No command given").Line()))
		return false
	}
	name := tokens[0]

	switch name {
	case "command_list_begin", "command_list_ok_begin":
		if err := s.BeginList(name == "command_list_ok_begin"); err != nil {
			s.Write([]byte(err.(*Error).Line()))
		}
		return false
	case "command_list_end":
		if !s.InList() {
			s.Write([]byte(NewError(AckArg, name, "command_list_end without command_list_begin").Line()))
			return false
		}
		return d.runList(s)
	}

	if s.InList() {
		s.AppendListLine(line)
		return false
	}

	if closeNow, ack := d.execute(s, name, tokens[1:], 0); ack != nil {
		s.Write([]byte(ack.Line()))
		return closeNow
	} else {
		s.Write([]byte("OK\n"))
		return closeNow
	}
}

// runList executes every command queued since command_list_begin as one
// atomic batch: the first failure aborts the remainder and its ACK
// indexes the failing command (spec.md §4.4/§7).
func (d *Dispatcher) runList(s *Session) bool {
	cmds, okEach := s.EndList()
	for i, line := range cmds {
		tokens, err := Tokenize(line)
		if err != nil {
			s.Write([]byte(NewError(AckArg, "", err.Error()).Line()))
			return false
		}
		if len(tokens) == 0 {
			continue
		}
		closeNow, ack := d.execute(s, tokens[0], tokens[1:], i)
		if ack != nil {
			s.Write([]byte(ack.Line()))
			return closeNow
		}
		if okEach {
			s.Write([]byte("list_OK\n"))
		}
	}
	s.Write([]byte("OK\n"))
	return false
}

// execute looks up name, checks permission and arity, and runs its
// handler. index is the command's position within a list (0 outside one).
func (d *Dispatcher) execute(s *Session, name string, args []string, index int) (closeNow bool, ack *Error) {
	if name == "close" {
		return true, nil
	}
	if name == "kill" {
		return true, nil
	}

	entry, ok := d.table[name]
	if !ok {
		return false, &Error{Kind: AckUnknown, Index: index, Command: name, Message: "unknown command " + strconv.Quote(name)}
	}
	if s.Permission()&entry.Permission != entry.Permission {
		return false, &Error{Kind: AckPermission, Index: index, Command: name, Message: "you don't have permission for \"" + name + "\""}
	}
	if len(args) < entry.MinArgs || (entry.MaxArgs >= 0 && len(args) > entry.MaxArgs) {
		return false, &Error{Kind: AckArg, Index: index, Command: name, Message: "wrong number of arguments for \"" + name + "\""}
	}

	body, err := entry.Handler(&Context{Session: s, Server: d}, args)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.Index = index
			e.Command = name
			return false, e
		}
		return false, &Error{Kind: AckSystem, Index: index, Command: name, Message: err.Error()}
	}
	if body != "" {
		s.Write([]byte(body))
	}
	return false, nil
}

// argInt parses args[i] as an integer, returning the closed-set AckArg
// error MPD's own wire format uses on failure.
func argInt(args []string, i int) (int, error) {
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, NewError(AckArg, "", "need a positive integer")
	}
	return n, nil
}

func argFloat(args []string, i int) (float64, error) {
	v, err := strconv.ParseFloat(args[i], 64)
	if err != nil {
		return 0, NewError(AckArg, "", "need a number")
	}
	return v, nil
}

// argRange parses "start:end" or a single position into [start,end).
func argRange(s string) (start, end int, err error) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		start, err = strconv.Atoi(s[:i])
		if err != nil {
			return 0, 0, NewError(AckArg, "", "need a range")
		}
		end, err = strconv.Atoi(s[i+1:])
		if err != nil {
			return 0, 0, NewError(AckArg, "", "need a range")
		}
		return start, end, nil
	}
	start, err = strconv.Atoi(s)
	if err != nil {
		return 0, 0, NewError(AckArg, "", "need a positive integer")
	}
	return start, start + 1, nil
}
