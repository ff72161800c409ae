// Package session tracks connected clients, their registration state, and
// whose turn it is.
package session

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/mancala/internal/game/mancala"
)

// ErrNotFound is returned when an ID does not name a live session.
var ErrNotFound = errors.New("session not found")

// ErrNameTaken is returned when registering a name already in use.
var ErrNameTaken = errors.New("name already in use")

// Registry is the ordered collection of live sessions. The most recently
// added session comes first; turn order is circular over that sequence.
//
// Registry is owned by the game loop goroutine and is not safe for
// concurrent use.
type Registry struct {
	sessions map[ID]*Session
	order    []ID
	nextID   ID

	mover    ID
	hasMover bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[ID]*Session),
		nextID:   1,
	}
}

// Add creates a session with the given board and outbox and links it at
// the front of the registry.
//
// Precondition: board must be non-nil.
// Postcondition: Returns the new Unregistered session.
func (r *Registry) Add(board mancala.Board, out Outbox) *Session {
	s := newSession(r.nextID, board, out)
	r.nextID++
	r.sessions[s.ID] = s
	r.order = append([]ID{s.ID}, r.order...)
	return s
}

// Register names an Unregistered session.
//
// Precondition: name must be non-empty.
// Postcondition: The session is Registered, or an error is returned and
// nothing changes.
func (r *Registry) Register(id ID, name string) error {
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("registering %d: %w", id, ErrNotFound)
	}
	if s.Registered() {
		return fmt.Errorf("session %d already registered as %q", id, s.name)
	}
	if _, taken := r.ByName(name); taken {
		return fmt.Errorf("registering %q: %w", name, ErrNameTaken)
	}
	s.name = name
	s.state = Registered
	return nil
}

// Remove unlinks a session. When it was the mover, the mover passes to the
// next registered session after it in circular order, or is cleared.
//
// Postcondition: Returns the removed session, or ErrNotFound.
func (r *Registry) Remove(id ID) (*Session, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("removing %d: %w", id, ErrNotFound)
	}

	wasMover := r.hasMover && r.mover == id
	var successor *Session
	if wasMover {
		successor = r.NextRegistered(id)
	}

	delete(r.sessions, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if wasMover {
		if successor != nil {
			r.mover = successor.ID
		} else {
			r.ClearMover()
		}
	}
	return s, nil
}

// Get returns the session for id.
func (r *Registry) Get(id ID) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// ByName returns the registered session with the given name.
func (r *Registry) ByName(name string) (*Session, bool) {
	for _, id := range r.order {
		s := r.sessions[id]
		if n, ok := s.Name(); ok && n == name {
			return s, true
		}
	}
	return nil, false
}

// Len returns the number of live sessions, registered or not.
func (r *Registry) Len() int { return len(r.order) }

// Sessions returns all sessions in registry order.
//
// Postcondition: Returns a fresh slice; callers may remove sessions while
// ranging over it.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Boards returns every session's board in registry order.
func (r *Registry) Boards() []mancala.Board {
	out := make([]mancala.Board, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id].Board)
	}
	return out
}

func (r *Registry) index(id ID) int {
	for i, oid := range r.order {
		if oid == id {
			return i
		}
	}
	return -1
}

// Next returns the session after id in circular order, registered or not.
// It returns nil when id is unknown.
func (r *Registry) Next(id ID) *Session {
	i := r.index(id)
	if i < 0 {
		return nil
	}
	return r.sessions[r.order[(i+1)%len(r.order)]]
}

// NextRegistered returns the first registered session after id in circular
// order, excluding id itself. It returns nil when there is none.
func (r *Registry) NextRegistered(id ID) *Session {
	i := r.index(id)
	if i < 0 {
		return nil
	}
	for step := 1; step < len(r.order); step++ {
		s := r.sessions[r.order[(i+step)%len(r.order)]]
		if s.Registered() {
			return s
		}
	}
	return nil
}

// Ring returns every session in circular order starting at id.
func (r *Registry) Ring(id ID) []*Session {
	i := r.index(id)
	if i < 0 {
		return nil
	}
	out := make([]*Session, 0, len(r.order))
	for step := 0; step < len(r.order); step++ {
		out = append(out, r.sessions[r.order[(i+step)%len(r.order)]])
	}
	return out
}

// Mover returns the session whose turn it is.
func (r *Registry) Mover() (*Session, bool) {
	if !r.hasMover {
		return nil, false
	}
	s, ok := r.sessions[r.mover]
	return s, ok
}

// SetMover makes id the current mover.
//
// Precondition: id names a Registered session.
// Postcondition: Returns an error and leaves the mover unchanged otherwise.
func (r *Registry) SetMover(id ID) error {
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("setting mover %d: %w", id, ErrNotFound)
	}
	if !s.Registered() {
		return fmt.Errorf("setting mover %d: session is not registered", id)
	}
	r.mover = id
	r.hasMover = true
	return nil
}

// ClearMover unsets the current mover.
func (r *Registry) ClearMover() {
	r.mover = 0
	r.hasMover = false
}

// IsMover reports whether id is the current mover.
func (r *Registry) IsMover(id ID) bool {
	return r.hasMover && r.mover == id
}
