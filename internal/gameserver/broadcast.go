package gameserver

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/mancala/internal/game/mancala"
	"github.com/cory-johannsen/mancala/internal/game/session"
)

// Broadcast sends text to every registered session.
func (g *Game) Broadcast(text string) {
	for _, s := range g.registry.Sessions() {
		if s.Registered() {
			g.send(s, text)
		}
	}
}

// BroadcastExcept sends text to every registered session other than except.
func (g *Game) BroadcastExcept(text string, except session.ID) {
	for _, s := range g.registry.Sessions() {
		if s.ID != except && s.Registered() {
			g.send(s, text)
		}
	}
}

// Status sends one board line per registered session, in registry order,
// to target; a nil target broadcasts the lines to everyone.
func (g *Game) Status(target *session.Session) {
	for _, s := range g.registry.Sessions() {
		name, ok := s.Name()
		if !ok {
			continue
		}
		line := RenderStatus(name, s.Board)
		if target == nil {
			g.Broadcast(line)
		} else {
			g.send(target, line)
		}
	}
}

// RenderStatus formats one player's board as "name: [0]4 ... [end pit]0".
func RenderStatus(name string, b mancala.Board) string {
	return name + ": " + b.String()
}

// send writes one line to s. A write error marks the session failed; later
// writes to it are skipped until the loop reaps it.
func (g *Game) send(s *session.Session, text string) {
	if g.isFailed[s.ID] {
		return
	}
	if err := s.Out.WriteLine(text); err != nil {
		g.logger.Warn("write failed",
			zap.Uint64("session", uint64(s.ID)),
			zap.String("session_uid", s.UID),
			zap.Error(err),
		)
		g.isFailed[s.ID] = true
		g.failed = append(g.failed, Failure{ID: s.ID, Err: err})
	}
}
