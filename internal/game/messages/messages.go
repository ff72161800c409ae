// Package messages holds the text the server sends to clients.
package messages

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the set of client-facing texts. Templates taking arguments
// are fmt format strings; the verbs each one receives are listed beside it.
type Catalog struct {
	Welcome       string `yaml:"welcome"`
	EmptyName     string `yaml:"empty_name"`
	DuplicateName string `yaml:"duplicate_name"`
	Joined        string `yaml:"joined"`       // name
	Left          string `yaml:"left"`         // name
	CurrentTurn   string `yaml:"current_turn"` // mover name
	NotYourMove   string `yaml:"not_your_move"`
	InvalidMove   string `yaml:"invalid_move"`
	Moved         string `yaml:"moved"`      // name, pit
	WhoseMove     string `yaml:"whose_move"` // mover name
	YourMove      string `yaml:"your_move"`
	GameOver      string `yaml:"game_over"`
	Points        string `yaml:"points"` // name, points
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		Welcome:       "Welcome to Mancala. What is your name?",
		EmptyName:     "Empty name, try again?",
		DuplicateName: "Duplicate name, try again?",
		Joined:        "%s has joined the game.",
		Left:          "%s has left the game.",
		CurrentTurn:   "now it's %s's turn.",
		NotYourMove:   "It's not your move.",
		InvalidMove:   "Invalid move, try again?",
		Moved:         "%s's move is %d",
		WhoseMove:     "It is %s's move.",
		YourMove:      "Your move?",
		GameOver:      "Game over!",
		Points:        "%s has %d points",
	}
}

// Validate checks that every text is present and single-line, and that
// each text renders cleanly with the arguments the game passes to it.
// Plain texts must not contain formatting verbs.
//
// Postcondition: Returns nil if the catalog is usable, or an error naming
// every offending key.
func (c Catalog) Validate() error {
	fields := []struct {
		key, text string
		args      []any
	}{
		{"welcome", c.Welcome, nil},
		{"empty_name", c.EmptyName, nil},
		{"duplicate_name", c.DuplicateName, nil},
		{"joined", c.Joined, []any{"name"}},
		{"left", c.Left, []any{"name"}},
		{"current_turn", c.CurrentTurn, []any{"name"}},
		{"not_your_move", c.NotYourMove, nil},
		{"invalid_move", c.InvalidMove, nil},
		{"moved", c.Moved, []any{"name", 0}},
		{"whose_move", c.WhoseMove, []any{"name"}},
		{"your_move", c.YourMove, nil},
		{"game_over", c.GameOver, nil},
		{"points", c.Points, []any{"name", 0}},
	}
	var errs []string
	for _, f := range fields {
		switch {
		case strings.TrimSpace(f.text) == "":
			errs = append(errs, fmt.Sprintf("%s must not be empty", f.key))
		case strings.ContainsAny(f.text, "\r\n"):
			errs = append(errs, fmt.Sprintf("%s must be a single line", f.key))
		case !rendersCleanly(f.text, f.args):
			errs = append(errs, fmt.Sprintf("%s must take exactly %s", f.key, describeArgs(f.args)))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// rendersCleanly reports whether text formats args with no fmt error
// markers such as %!d(string=...) or %!(EXTRA ...).
// Plain texts are checked with no arguments, so any verb in them is
// reported as missing.
func rendersCleanly(text string, args []any) bool {
	return !strings.Contains(fmt.Sprintf(text, args...), "%!")
}

func describeArgs(args []any) string {
	if len(args) == 0 {
		return "no formatting verbs"
	}
	verbs := make([]string, len(args))
	for i, a := range args {
		switch a.(type) {
		case int:
			verbs[i] = "%d"
		default:
			verbs[i] = "%s"
		}
	}
	return "the verbs " + strings.Join(verbs, " then ")
}

// Load reads a YAML file of overrides on top of the default catalog. Keys
// absent from the file keep their default text.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a valid Catalog or a non-nil error.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("reading %s: %w", path, err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parsing message file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("message file %s: %w", path, err)
	}
	return c, nil
}
