package gameserver

import (
	"context"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/cory-johannsen/mancala/internal/frontend/telnet"
	"github.com/cory-johannsen/mancala/internal/game/session"
)

var _ telnet.SessionHandler = (*Loop)(nil)

// ErrGameOver is returned to connection handlers once the loop has exited.
var ErrGameOver = errors.New("game over")

// link ties a live session to its connection. The reader goroutine reads
// exactly one line per value received on arm, using it as the byte limit.
type link struct {
	id   session.ID
	conn *telnet.Conn
	arm  chan int
}

type admission struct {
	conn   *telnet.Conn
	linked chan *link
}

type inbound struct {
	id   session.ID
	line string
	err  error
}

// Loop is the connection multiplexer. Run owns the Game; connection
// goroutines started by the acceptor only frame input and hand it over
// through channels, so every game mutation happens on the Run goroutine.
type Loop struct {
	game   *Game
	logger *zap.Logger

	admissions chan admission
	inbound    chan inbound
	done       chan struct{}

	links map[session.ID]*link
}

// NewLoop creates a Loop driving game.
//
// Precondition: game and logger must be non-nil.
func NewLoop(game *Game, logger *zap.Logger) *Loop {
	return &Loop{
		game:       game,
		logger:     logger,
		admissions: make(chan admission),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
		links:      make(map[session.ID]*link),
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// HandleSession implements telnet.SessionHandler. It waits for the loop to
// admit the connection, then reads one line each time the loop asks for
// one until the loop drops the session or the game ends.
func (l *Loop) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	adm := admission{conn: conn, linked: make(chan *link, 1)}
	select {
	case l.admissions <- adm:
	case <-l.done:
		return ErrGameOver
	case <-ctx.Done():
		return ctx.Err()
	}
	lk := <-adm.linked

	for limit := range lk.arm {
		line, err := conn.ReadLine(limit)
		select {
		case l.inbound <- inbound{id: lk.id, line: line, err: err}:
		case <-l.done:
			return ErrGameOver
		case <-ctx.Done():
			return ctx.Err()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Run multiplexes connections until the game is over or ctx is cancelled.
// Each iteration either prompts the mover or handles one admission or one
// inbound line. When the game ends the scores are announced; in both cases
// every connection is closed before Run returns.
//
// Postcondition: Returns nil; Done is closed.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	defer l.closeAll()

	for !l.game.Over() {
		if s, ok := l.game.PendingPrompt(); ok {
			l.game.Prompt(s)
			l.reap()
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("game interrupted", zap.Int("sessions", l.game.Registry().Len()))
			return nil
		case adm := <-l.admissions:
			l.admit(adm)
		case ev := <-l.inbound:
			l.dispatch(ev)
		}
		l.reap()
	}

	scores := l.game.Settle()
	l.logger.Info("game settled", zap.Int("players", len(scores)))
	return nil
}

func (l *Loop) admit(adm admission) {
	s := l.game.Join(adm.conn)
	lk := &link{id: s.ID, conn: adm.conn, arm: make(chan int, 1)}
	l.links[s.ID] = lk
	adm.linked <- lk
	lk.arm <- l.game.LineLimit(s.ID)

	l.logger.Info("incoming connection",
		zap.Uint64("session", uint64(s.ID)),
		zap.String("session_uid", s.UID),
		zap.String("remote_addr", adm.conn.RemoteAddr().String()),
	)
}

func (l *Loop) dispatch(ev inbound) {
	lk, ok := l.links[ev.id]
	if !ok {
		return
	}
	if ev.err != nil {
		switch {
		case errors.Is(ev.err, telnet.ErrLineTooLong):
			l.logger.Warn("message is too long", zap.Uint64("session", uint64(ev.id)), zap.Error(ev.err))
		case errors.Is(ev.err, io.EOF), errors.Is(ev.err, net.ErrClosed):
			// Peer or server closed; Leave logs the departure.
		default:
			l.logger.Warn("read failed", zap.Uint64("session", uint64(ev.id)), zap.Error(ev.err))
		}
		l.drop(ev.id, ev.err)
		return
	}

	l.game.HandleLine(ev.id, ev.line)
	if _, alive := l.game.Registry().Get(ev.id); alive {
		lk.arm <- l.game.LineLimit(ev.id)
	}
}

// reap drops every session whose writes failed. Announcing a departure can
// fail further writes, so it repeats until nothing is left.
func (l *Loop) reap() {
	for {
		failed := l.game.TakeFailed()
		if len(failed) == 0 {
			return
		}
		for _, f := range failed {
			l.drop(f.ID, f.Err)
		}
	}
}

func (l *Loop) drop(id session.ID, cause error) {
	l.game.Leave(id, cause)
	lk, ok := l.links[id]
	if !ok {
		return
	}
	delete(l.links, id)
	close(lk.arm)
	_ = lk.conn.Close()
}

func (l *Loop) closeAll() {
	for id, lk := range l.links {
		close(lk.arm)
		_ = lk.conn.Close()
		delete(l.links, id)
	}
}
