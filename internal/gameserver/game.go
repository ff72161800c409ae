// Package gameserver runs the Mancala game: registration, the turn engine,
// broadcasting, and the event loop that multiplexes client connections.
package gameserver

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mancala/internal/config"
	"github.com/cory-johannsen/mancala/internal/game/mancala"
	"github.com/cory-johannsen/mancala/internal/game/messages"
	"github.com/cory-johannsen/mancala/internal/game/session"
)

// Score is a registered player's final tally.
type Score struct {
	Name   string
	Points int
}

// Failure records a session whose outbox returned an error.
type Failure struct {
	ID  session.ID
	Err error
}

// Game owns the registry and applies client lines to it. Every method must
// be called from a single goroutine.
type Game struct {
	cfg      config.GameConfig
	text     messages.Catalog
	logger   *zap.Logger
	registry *session.Registry

	failed   []Failure
	isFailed map[session.ID]bool
}

// NewGame creates a game with no sessions.
//
// Precondition: cfg must be valid; logger must be non-nil.
func NewGame(cfg config.GameConfig, text messages.Catalog, logger *zap.Logger) *Game {
	return &Game{
		cfg:      cfg,
		text:     text,
		logger:   logger,
		registry: session.NewRegistry(),
		isFailed: make(map[session.ID]bool),
	}
}

// Registry exposes the session registry for inspection.
func (g *Game) Registry() *session.Registry { return g.registry }

// Join creates a session for a new connection, stocks its board from the
// current average, and sends the welcome prompt.
//
// Precondition: out must be non-nil.
// Postcondition: Returns the new Unregistered session, first in registry order.
func (g *Game) Join(out session.Outbox) *session.Session {
	stock := mancala.InitialStock(g.registry.Boards(), g.cfg.Pits, g.cfg.Pebbles)
	s := g.registry.Add(mancala.NewBoard(g.cfg.Pits, stock), out)
	g.logger.Debug("session created",
		zap.Uint64("session", uint64(s.ID)),
		zap.String("session_uid", s.UID),
		zap.Int("stock", stock),
	)
	g.send(s, g.text.Welcome)
	return s
}

// LineLimit returns the longest line the session may send next.
func (g *Game) LineLimit(id session.ID) int {
	if s, ok := g.registry.Get(id); ok && s.Registered() {
		return g.cfg.MaxMessage
	}
	return g.cfg.MaxName
}

// HandleLine applies one decoded line from a session: a name while
// unregistered, a move afterwards. Invalid input is answered with a retry
// message and changes nothing.
func (g *Game) HandleLine(id session.ID, line string) {
	s, ok := g.registry.Get(id)
	if !ok {
		return
	}
	if !s.Registered() {
		g.register(s, line)
		return
	}
	g.move(s, line)
}

func (g *Game) register(s *session.Session, line string) {
	// The loop's framing limit already rejects longer lines; this bounds
	// names from direct HandleLine callers.
	name := truncate(line, g.cfg.MaxName)
	if name == "" {
		g.send(s, g.text.EmptyName)
		return
	}
	if _, taken := g.registry.ByName(name); taken {
		g.send(s, g.text.DuplicateName)
		return
	}
	if err := g.registry.Register(s.ID, name); err != nil {
		g.logger.Warn("registration rejected", zap.String("session_uid", s.UID), zap.Error(err))
		g.send(s, g.text.DuplicateName)
		return
	}

	g.logger.Info("player joined", zap.String("player", name), zap.String("session_uid", s.UID))
	g.Broadcast(fmt.Sprintf(g.text.Joined, name))
	g.Status(s)

	mover, ok := g.registry.Mover()
	if !ok {
		// SetMover cannot fail here: s was registered above.
		_ = g.registry.SetMover(s.ID)
		return
	}
	g.send(s, fmt.Sprintf(g.text.CurrentTurn, mover.DisplayName()))
}

func (g *Game) move(s *session.Session, line string) {
	name := s.DisplayName()
	if !g.registry.IsMover(s.ID) {
		g.send(s, g.text.NotYourMove)
		return
	}
	pit, ok := ParseMove(line)
	if !ok {
		g.logger.Debug("unparseable move", zap.String("player", name), zap.String("line", line))
		g.send(s, g.text.InvalidMove)
		return
	}

	ring := g.registry.Ring(s.ID)
	rows := make([]mancala.Board, len(ring))
	for i, rs := range ring {
		rows[i] = rs.Board
	}
	land, err := mancala.Sow(rows, pit)
	if err != nil {
		g.logger.Debug("invalid move", zap.String("player", name), zap.Error(err))
		g.send(s, g.text.InvalidMove)
		return
	}

	bonus := land.InEndPit(g.cfg.Pits)
	g.logger.Info("player moved",
		zap.String("player", name),
		zap.Int("pit", pit),
		zap.Int("pebbles", land.Sown),
		zap.Bool("bonus", bonus),
	)
	g.BroadcastExcept(fmt.Sprintf(g.text.Moved, name, pit), s.ID)
	g.Status(nil)

	s.Prompted = false
	if bonus {
		return
	}
	if next := g.registry.NextRegistered(s.ID); next != nil {
		_ = g.registry.SetMover(next.ID)
	}
}

// Leave removes a session after its connection ended. Registered players'
// departure is announced to the others; the mover passes on if needed.
func (g *Game) Leave(id session.ID, cause error) {
	s, ok := g.registry.Get(id)
	if !ok {
		return
	}
	if name, registered := s.Name(); registered {
		g.logger.Info("player left",
			zap.String("player", name),
			zap.String("session_uid", s.UID),
			zap.NamedError("cause", cause),
		)
		g.BroadcastExcept(fmt.Sprintf(g.text.Left, name), id)
	} else {
		g.logger.Info("connection closed",
			zap.Uint64("session", uint64(id)),
			zap.String("session_uid", s.UID),
			zap.NamedError("cause", cause),
		)
	}
	if _, err := g.registry.Remove(id); err != nil {
		g.logger.Error("removing session", zap.Error(err))
	}
}

// PendingPrompt returns the mover when it still has to be asked for a move.
func (g *Game) PendingPrompt() (*session.Session, bool) {
	s, ok := g.registry.Mover()
	if !ok || !s.Registered() || s.Prompted || g.isFailed[s.ID] {
		return nil, false
	}
	return s, true
}

// Prompt tells everyone whose move it is and asks the mover for one.
//
// Precondition: s is the current mover.
// Postcondition: s.Prompted is true.
func (g *Game) Prompt(s *session.Session) {
	s.Prompted = true
	name := s.DisplayName()
	g.BroadcastExcept(fmt.Sprintf(g.text.WhoseMove, name), s.ID)
	g.send(s, g.text.YourMove)
}

// Over reports whether some session's row of regular pits is empty.
func (g *Game) Over() bool {
	for _, s := range g.registry.Sessions() {
		if s.Board.RowEmpty() {
			return true
		}
	}
	return false
}

// Settle announces the end of the game and every registered player's score.
//
// Postcondition: Returns the scores in registry order.
func (g *Game) Settle() []Score {
	g.logger.Info("game over")
	g.Broadcast(g.text.GameOver)

	var scores []Score
	for _, s := range g.registry.Sessions() {
		points := s.Board.Score()
		name, registered := s.Name()
		if !registered {
			g.logger.Info("unregistered session score",
				zap.String("session_uid", s.UID),
				zap.Int("points", points),
			)
			continue
		}
		g.logger.Info("final score", zap.String("player", name), zap.Int("points", points))
		g.Broadcast(fmt.Sprintf(g.text.Points, name, points))
		scores = append(scores, Score{Name: name, Points: points})
	}
	return scores
}

// TakeFailed returns and forgets the sessions whose writes failed since the
// last call.
func (g *Game) TakeFailed() []Failure {
	out := g.failed
	g.failed = nil
	g.isFailed = make(map[session.ID]bool)
	return out
}

// ParseMove reads a pit index from a move line: leading blanks, an optional
// sign, then decimal digits, ignoring anything after them. Lines with no
// digits are rejected.
func ParseMove(line string) (int, bool) {
	line = strings.TrimLeft(line, " \t")
	end := 0
	if end < len(line) && (line[end] == '+' || line[end] == '-') {
		end++
	}
	digits := end
	for end < len(line) && line[end] >= '0' && line[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(line[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
