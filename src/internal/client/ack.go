// Package client implements the mpdgo client session layer: line-framed
// command protocol, command-list batching, deferred output, and idle
// notifications (spec.md §4.4).
//
// Grounded on spec.md §4.4/§6 and original_source/src/command.c for the
// ACK wire format and numeric kind codes; the teacher has no client
// protocol of its own (muserv speaks UPnP SOAP, not a line protocol), so
// this package's shape follows spec.md directly, reusing the ambient
// logrus/pkg-errors idiom used throughout the rest of mpdgo.
package client

import "fmt"

// Kind is one of the closed set of ACK error kinds (spec.md §4.4/§7), with
// the numeric wire codes of original_source/src/command.c preserved since
// several MPD clients depend on them.
type Kind int

const (
	AckNotList       Kind = 1
	AckArg           Kind = 2
	AckPassword      Kind = 3
	AckPermission    Kind = 4
	AckUnknown       Kind = 5
	AckNoExist       Kind = 50
	AckPlaylistMax   Kind = 51
	AckSystem        Kind = 52
	AckPlaylistLoad  Kind = 53
	AckUpdateAlready Kind = 54
	AckPlayerSync    Kind = 55
	AckExist         Kind = 56
)

// Error is the ACK error carried back to a client (spec.md §4.4).
type Error struct {
	Kind    Kind
	Index   int // position of the failing command within a list, 0 outside one
	Command string
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError builds an Error for the given kind/command/message.
func NewError(kind Kind, command, message string) *Error {
	return &Error{Kind: kind, Command: command, Message: message}
}

// Line renders the ACK wire line: `ACK [<kind>@<index>] {<command>} <message>\n`.
func (e *Error) Line() string {
	return fmt.Sprintf("ACK [%d@%d] {%s} %s\n", e.Kind, e.Index, e.Command, e.Message)
}
