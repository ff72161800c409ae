package gameserver

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/mancala/internal/config"
	"github.com/cory-johannsen/mancala/internal/game/mancala"
	"github.com/cory-johannsen/mancala/internal/game/messages"
	"github.com/cory-johannsen/mancala/internal/game/session"
)

// recorder is an Outbox capturing every line written to it.
type recorder struct {
	lines []string
	fail  error
}

func (r *recorder) WriteLine(text string) error {
	if r.fail != nil {
		return r.fail
	}
	r.lines = append(r.lines, text)
	return nil
}

func (r *recorder) take() []string {
	out := r.lines
	r.lines = nil
	return out
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{Pits: 6, Pebbles: 4, MaxName: 80, MaxMessage: 130}
}

func newTestGame(t *testing.T) *Game {
	return NewGame(testGameConfig(), messages.Default(), zaptest.NewLogger(t))
}

type player struct {
	s   *session.Session
	out *recorder
}

// join connects and registers a player, discarding the lines it received.
func join(t testing.TB, g *Game, name string) player {
	out := &recorder{}
	s := g.Join(out)
	g.HandleLine(s.ID, name)
	require.True(t, s.Registered(), "registering %q", name)
	out.take()
	return player{s: s, out: out}
}

func boards(g *Game) []mancala.Board {
	var out []mancala.Board
	for _, s := range g.Registry().Sessions() {
		out = append(out, append(mancala.Board(nil), s.Board...))
	}
	return out
}

func moverID(g *Game) session.ID {
	m, ok := g.Registry().Mover()
	if !ok {
		return 0
	}
	return m.ID
}

func TestJoin_WelcomesAndStocksDefault(t *testing.T) {
	g := newTestGame(t)
	out := &recorder{}
	s := g.Join(out)

	assert.Equal(t, []string{"Welcome to Mancala. What is your name?"}, out.lines)
	assert.Equal(t, mancala.Board{4, 4, 4, 4, 4, 4, 0}, s.Board)
	assert.False(t, s.Registered())
	assert.Equal(t, 80, g.LineLimit(s.ID))
}

func TestJoin_StocksFromAverageRoundedUp(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	a.s.Board[0] = 5 // 25 pebbles over 6 pits

	s := g.Join(&recorder{})
	assert.Equal(t, mancala.Board{5, 5, 5, 5, 5, 5, 0}, s.Board)
}

func TestJoin_AverageCountsUnregisteredSessions(t *testing.T) {
	g := newTestGame(t)
	first := g.Join(&recorder{})
	first.Board[0] = 10 // 30 pebbles, unregistered

	s := g.Join(&recorder{})
	assert.Equal(t, 5, s.Board[0])
}

func TestRegister_EmptyName(t *testing.T) {
	g := newTestGame(t)
	out := &recorder{}
	s := g.Join(out)
	out.take()

	g.HandleLine(s.ID, "")
	assert.Equal(t, []string{"Empty name, try again?"}, out.lines)
	assert.False(t, s.Registered())
	_, hasMover := g.Registry().Mover()
	assert.False(t, hasMover)
}

func TestRegister_DuplicateName(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")

	out := &recorder{}
	s := g.Join(out)
	out.take()
	g.HandleLine(s.ID, "alice")

	assert.Equal(t, []string{"Duplicate name, try again?"}, out.lines)
	assert.False(t, s.Registered())
	assert.Empty(t, a.out.lines, "existing players hear nothing")

	// The session can retry with another name.
	g.HandleLine(s.ID, "bob")
	assert.True(t, s.Registered())
}

func TestRegister_TruncatesToMaxName(t *testing.T) {
	cfg := testGameConfig()
	cfg.MaxName = 5
	g := NewGame(cfg, messages.Default(), zaptest.NewLogger(t))

	s := g.Join(&recorder{})
	g.HandleLine(s.ID, "abcdefgh")
	name, ok := s.Name()
	require.True(t, ok)
	assert.Equal(t, "abcde", name)

	// A longer name sharing the truncated prefix is a duplicate.
	out := &recorder{}
	s2 := g.Join(out)
	out.take()
	g.HandleLine(s2.ID, "abcdexyz")
	assert.Equal(t, []string{"Duplicate name, try again?"}, out.lines)
}

func TestRegister_FirstPlayerBecomesMoverSilently(t *testing.T) {
	g := newTestGame(t)
	out := &recorder{}
	s := g.Join(out)
	out.take()

	g.HandleLine(s.ID, "alice")

	assert.Equal(t, []string{
		"alice has joined the game.",
		"alice: [0]4 [1]4 [2]4 [3]4 [4]4 [5]4 [end pit]0",
	}, out.lines)
	assert.Equal(t, s.ID, moverID(g))
	assert.Equal(t, 130, g.LineLimit(s.ID))
}

func TestRegister_LaterPlayerToldWhoseTurn(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")

	out := &recorder{}
	s := g.Join(out)
	out.take()
	g.HandleLine(s.ID, "bob")

	// Registry order is most recent first.
	assert.Equal(t, []string{
		"bob has joined the game.",
		"bob: [0]4 [1]4 [2]4 [3]4 [4]4 [5]4 [end pit]0",
		"alice: [0]4 [1]4 [2]4 [3]4 [4]4 [5]4 [end pit]0",
		"now it's alice's turn.",
	}, out.lines)
	assert.Equal(t, []string{"bob has joined the game."}, a.out.lines)
	assert.Equal(t, a.s.ID, moverID(g))
}

func TestRegister_UnregisteredSessionsHearNothing(t *testing.T) {
	g := newTestGame(t)
	lurker := &recorder{}
	g.Join(lurker)
	lurker.take()

	join(t, g, "alice")
	assert.Empty(t, lurker.lines)
}

func TestPrompt(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	b := join(t, g, "bob")

	s, ok := g.PendingPrompt()
	require.True(t, ok)
	assert.Equal(t, a.s.ID, s.ID)

	g.Prompt(s)
	assert.Equal(t, []string{"Your move?"}, a.out.take())
	assert.Equal(t, []string{"It is alice's move."}, b.out.take())
	assert.True(t, a.s.Prompted)

	_, ok = g.PendingPrompt()
	assert.False(t, ok)
}

func TestPendingPrompt_NoMover(t *testing.T) {
	g := newTestGame(t)
	g.Join(&recorder{})
	_, ok := g.PendingPrompt()
	assert.False(t, ok)
}

func TestMove_TwoPlayerOpening(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	b := join(t, g, "bob")
	g.Prompt(a.s)
	a.out.take()
	b.out.take()

	g.HandleLine(a.s.ID, "0")

	assert.Equal(t, mancala.Board{0, 5, 5, 5, 5, 4, 0}, a.s.Board)
	assert.Equal(t, mancala.Board{4, 4, 4, 4, 4, 4, 0}, b.s.Board)
	assert.Equal(t, b.s.ID, moverID(g))
	assert.False(t, a.s.Prompted)

	status := []string{
		"bob: [0]4 [1]4 [2]4 [3]4 [4]4 [5]4 [end pit]0",
		"alice: [0]0 [1]5 [2]5 [3]5 [4]5 [5]4 [end pit]0",
	}
	assert.Equal(t, status, a.out.take())
	assert.Equal(t, append([]string{"alice's move is 0"}, status...), b.out.take())
}

func TestMove_BonusKeepsTurn(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	join(t, g, "bob")
	g.Prompt(a.s)

	a.s.Board[5] = 1
	g.HandleLine(a.s.ID, "5")

	assert.Equal(t, 1, a.s.Board.End())
	assert.Equal(t, a.s.ID, moverID(g))
	assert.False(t, a.s.Prompted, "the mover is prompted again")
	_, pending := g.PendingPrompt()
	assert.True(t, pending)
}

func TestMove_SinglePlayerKeepsTurn(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	g.Prompt(a.s)

	g.HandleLine(a.s.ID, "0")
	assert.Equal(t, a.s.ID, moverID(g))
}

func TestMove_NotYourMove(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	b := join(t, g, "bob")
	g.Prompt(a.s)
	a.out.take()
	b.out.take()
	before := boards(g)

	g.HandleLine(b.s.ID, "0")

	assert.Equal(t, []string{"It's not your move."}, b.out.lines)
	assert.Empty(t, a.out.lines)
	assert.Equal(t, before, boards(g))
	assert.Equal(t, a.s.ID, moverID(g))
	assert.True(t, a.s.Prompted)
}

func TestMove_Invalid(t *testing.T) {
	for _, line := range []string{"-1", "6", "99", "x", "", "+", "99999999999999999999"} {
		t.Run(fmt.Sprintf("%q", line), func(t *testing.T) {
			g := newTestGame(t)
			a := join(t, g, "alice")
			b := join(t, g, "bob")
			g.Prompt(a.s)
			a.out.take()
			b.out.take()
			before := boards(g)

			g.HandleLine(a.s.ID, line)

			assert.Equal(t, []string{"Invalid move, try again?"}, a.out.lines)
			assert.Empty(t, b.out.lines)
			assert.Equal(t, before, boards(g))
			assert.Equal(t, a.s.ID, moverID(g))
			assert.True(t, a.s.Prompted)
		})
	}
}

func TestMove_EmptyPit(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	g.Prompt(a.s)
	a.out.take()
	a.s.Board[2] = 0

	g.HandleLine(a.s.ID, "2")
	assert.Equal(t, []string{"Invalid move, try again?"}, a.out.lines)
	assert.Equal(t, 0, a.s.Board[2])
}

func TestMove_SowsIntoUnregisteredButSkipsThemForTurns(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	lurker := g.Join(&recorder{})
	c := join(t, g, "carol")
	// Order: carol, lurker, alice. After alice comes carol.
	g.Prompt(a.s)

	a.s.Board[5] = 8
	g.HandleLine(a.s.ID, "5")

	// 1 into alice's end pit, then 6 into carol's row, then 1 into the lurker.
	assert.Equal(t, mancala.Board{5, 5, 5, 5, 5, 5, 0}, c.s.Board)
	assert.Equal(t, mancala.Board{5, 4, 4, 4, 4, 4, 0}, lurker.Board)
	assert.Equal(t, c.s.ID, moverID(g))
}

func TestLeave_RegisteredMover(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	b := join(t, g, "bob")
	g.Prompt(a.s)
	b.out.take()

	g.Leave(a.s.ID, errors.New("eof"))

	assert.Equal(t, []string{"alice has left the game."}, b.out.lines)
	assert.Equal(t, b.s.ID, moverID(g))
	_, ok := g.Registry().Get(a.s.ID)
	assert.False(t, ok)
	_, pending := g.PendingPrompt()
	assert.True(t, pending)
}

func TestLeave_Unregistered(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	s := g.Join(&recorder{})

	g.Leave(s.ID, nil)
	assert.Empty(t, a.out.lines)
	assert.Equal(t, 1, g.Registry().Len())
	assert.Equal(t, a.s.ID, moverID(g))
}

func TestLeave_LastPlayerClearsMover(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	g.Leave(a.s.ID, nil)
	_, ok := g.Registry().Mover()
	assert.False(t, ok)
	g.Leave(a.s.ID, nil) // unknown IDs are ignored
}

func TestOver(t *testing.T) {
	g := newTestGame(t)
	assert.False(t, g.Over(), "no sessions")

	a := join(t, g, "alice")
	join(t, g, "bob")
	assert.False(t, g.Over())

	copy(a.s.Board, mancala.Board{0, 0, 0, 0, 0, 1, 23})
	assert.False(t, g.Over())

	a.s.Board[5] = 0
	assert.True(t, g.Over())
}

func TestSettle(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	b := join(t, g, "bob")
	lurker := g.Join(&recorder{})
	copy(a.s.Board, mancala.Board{0, 0, 0, 0, 0, 0, 20})
	copy(b.s.Board, mancala.Board{1, 2, 3, 0, 0, 0, 2})
	lurker.Board[0] = 9
	a.out.take()

	scores := g.Settle()

	assert.Equal(t, []Score{{Name: "bob", Points: 8}, {Name: "alice", Points: 20}}, scores)
	want := []string{"Game over!", "bob has 8 points", "alice has 20 points"}
	assert.Equal(t, want, a.out.lines)
	assert.Equal(t, want, b.out.lines)
}

func TestSend_FailureIsRecordedOnce(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	b := join(t, g, "bob")
	a.out.take()
	b.out.fail = errors.New("broken pipe")

	g.Broadcast("one")
	g.Broadcast("two")

	failed := g.TakeFailed()
	require.Len(t, failed, 1)
	assert.Equal(t, b.s.ID, failed[0].ID)
	assert.EqualError(t, failed[0].Err, "broken pipe")
	assert.Equal(t, []string{"one", "two"}, a.out.lines)
	assert.Empty(t, g.TakeFailed())
}

func TestPendingPrompt_SkipsFailedMover(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	a.out.fail = errors.New("reset")
	g.Broadcast("x")

	_, ok := g.PendingPrompt()
	assert.False(t, ok)
}

func TestBroadcastExcept(t *testing.T) {
	g := newTestGame(t)
	a := join(t, g, "alice")
	b := join(t, g, "bob")
	a.out.take()

	g.BroadcastExcept("hi", a.s.ID)
	assert.Empty(t, a.out.lines)
	assert.Equal(t, []string{"hi"}, b.out.lines)
}

func TestParseMove(t *testing.T) {
	cases := []struct {
		line string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{"5", 5, true},
		{"3abc", 3, true},
		{"+2", 2, true},
		{"-1", -1, true},
		{"12 34", 12, true},
		{"  4", 4, true},
		{"abc", 0, false},
		{"", 0, false},
		{"-", 0, false},
		{"x3", 0, false},
		{"99999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseMove(tc.line)
		assert.Equal(t, tc.ok, ok, "line %q", tc.line)
		assert.Equal(t, tc.want, got, "line %q", tc.line)
	}
}

func TestRenderStatus(t *testing.T) {
	assert.Equal(t, "zed: [0]1 [1]0 [end pit]3", RenderStatus("zed", mancala.Board{1, 0, 3}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "a", truncate("aé", 2))
}

// newPropertyGame builds a game with n registered players for property tests.
func newPropertyGame(t *rapid.T, n int) (*Game, []player) {
	g := NewGame(testGameConfig(), messages.Default(), zap.NewNop())
	players := make([]player, 0, n)
	for i := 0; i < n; i++ {
		out := &recorder{}
		s := g.Join(out)
		g.HandleLine(s.ID, fmt.Sprintf("p%d", i))
		if !s.Registered() {
			t.Fatalf("p%d did not register", i)
		}
		players = append(players, player{s: s, out: out})
	}
	return g, players
}

func totalPebbles(g *Game) int {
	return mancala.Total(g.Registry().Boards())
}

// Property: whatever lines arrive from whichever player, the pebble total
// is unchanged and the mover is always a registered session.
func TestPropertyGame_Conservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "players")
		g, players := newPropertyGame(t, n)
		total := totalPebbles(g)

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps && !g.Over(); i++ {
			if s, ok := g.PendingPrompt(); ok {
				g.Prompt(s)
			}
			p := players[rapid.IntRange(0, n-1).Draw(t, "sender")]
			line := rapid.SampledFrom([]string{"0", "1", "2", "3", "4", "5", "6", "-1", "x"}).Draw(t, "line")
			g.HandleLine(p.s.ID, line)

			assert.Equal(t, total, totalPebbles(g))
			m, ok := g.Registry().Mover()
			if assert.True(t, ok) {
				assert.True(t, m.Registered())
			}
		}
	})
}

// Property: N players each making a non-bonus move hand the turn all the
// way round back to the first mover.
func TestPropertyGame_TurnOrderIsCircular(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(t, "players")
		g, _ := newPropertyGame(t, n)
		start := moverID(g)

		for i := 0; i < n; i++ {
			m, ok := g.Registry().Mover()
			if !ok {
				t.Fatalf("no mover")
			}
			pit := -1
			for p := 0; p < m.Board.Pits(); p++ {
				if c := m.Board[p]; c > 0 && c != m.Board.Pits()-p {
					pit = p
					break
				}
			}
			if pit < 0 {
				t.Skip("no non-bonus move available")
			}
			g.HandleLine(m.ID, fmt.Sprint(pit))
			if i < n-1 {
				assert.NotEqual(t, start, moverID(g))
			}
		}
		assert.Equal(t, start, moverID(g))
	})
}

// Property: a move is a bonus exactly when the pit holds its distance to
// the end pit.
func TestPropertyGame_BonusPredicate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 4).Draw(t, "players")
		g, _ := newPropertyGame(t, n)
		m, _ := g.Registry().Mover()
		pit := rapid.IntRange(0, 5).Draw(t, "pit")
		m.Board[pit] = rapid.IntRange(1, 30).Draw(t, "pebbles")
		bonus := m.Board[pit] == 6-pit

		g.HandleLine(m.ID, fmt.Sprint(pit))

		assert.Equal(t, bonus, moverID(g) == m.ID)
	})
}

func TestMessagesOverrideIsUsed(t *testing.T) {
	text := messages.Default()
	text.Welcome = "Name?"
	g := NewGame(testGameConfig(), text, zaptest.NewLogger(t))
	out := &recorder{}
	g.Join(out)
	assert.Equal(t, []string{"Name?"}, out.lines)
	assert.True(t, strings.HasPrefix(messages.Default().Welcome, "Welcome"))
}
