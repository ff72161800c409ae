package session

import (
	"github.com/google/uuid"

	"github.com/cory-johannsen/mancala/internal/game/mancala"
)

// ID is a stable registry handle. IDs are never reused within a process.
type ID uint64

// State is the registration state of a session.
type State int

const (
	// Unregistered sessions have not yet supplied an accepted name.
	Unregistered State = iota
	// Registered sessions have a unique name and take part in turns.
	Registered
)

// Outbox receives server text destined for one client.
type Outbox interface {
	// WriteLine sends text followed by the line terminator.
	WriteLine(text string) error
}

// Session is one connected client.
type Session struct {
	// ID is the registry handle.
	ID ID
	// UID correlates log entries for this connection.
	UID string
	// Board holds this player's pits.
	Board mancala.Board
	// Prompted is true once the session was asked for a move and has not
	// answered with a valid one.
	Prompted bool
	// Out is where text for this client is written.
	Out Outbox

	state State
	name  string
}

func newSession(id ID, board mancala.Board, out Outbox) *Session {
	return &Session{
		ID:    id,
		UID:   uuid.New().String(),
		Board: board,
		Out:   out,
	}
}

// State returns the registration state.
func (s *Session) State() State { return s.state }

// Registered reports whether the session has a name.
func (s *Session) Registered() bool { return s.state == Registered }

// Name returns the session's name and whether it is registered.
func (s *Session) Name() (string, bool) {
	return s.name, s.state == Registered
}

// DisplayName returns the name, or the empty string when unregistered.
func (s *Session) DisplayName() string { return s.name }
