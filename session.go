package busybus

import (
	"fmt"
	"sync/atomic"

	"github.com/bbgo/busybus/transport"
)

// Credentials are the peer credentials captured when a session's
// connection was accepted.
type Credentials = transport.Credentials

// SessionState is a session's position in the OPENING/OPEN/CLOSING/CLOSED
// state machine of the handshake and router (§4.4, §4.6.1).
type SessionState int32

const (
	StateOpening SessionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Session is one accepted client connection, typed by its session-open
// type and tracked through the state machine described in §4.6.1.
//
// A provider Session's registry identity (registry.Entry.Provider) is the
// Session pointer itself: the registry stores it as an opaque `any` and only ever
// compares it, never dereferences it, which is how a remote method entry
// can outlive the provider that published it without becoming a dangling
// pointer hazard.
type Session struct {
	Conn  *transport.Conn
	Type  SOType
	Name  string // human name from the SO meta, capped at 32 bytes
	Creds Credentials

	// Token is the monotonic correlation counter assigned to caller
	// sessions; it is meaningless for other session types.
	Token uint32

	state atomic.Int32
}

// MaxNameLen is the cap on a session's human name, per §4.4.
const MaxNameLen = 32

func newSession(conn *transport.Conn, creds Credentials) *Session {
	s := &Session{Conn: conn, Creds: creds}
	s.state.Store(int32(StateOpening))
	return s
}

// State returns the session's current state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// setState transitions the session unconditionally. The router is the
// only writer; Session itself never decides its own transitions.
func (s *Session) setState(to SessionState) { s.state.Store(int32(to)) }

func truncateName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}
	return name[:MaxNameLen]
}
