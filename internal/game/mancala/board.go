// Package mancala implements the pit arithmetic of the shared Mancala board.
package mancala

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPitOutOfRange is returned when a move names a pit outside the regular row.
var ErrPitOutOfRange = errors.New("pit out of range")

// ErrEmptyPit is returned when a move names a pit holding no pebbles.
var ErrEmptyPit = errors.New("pit is empty")

// Board is one player's row: regular pits at indices 0..len-2 and the end
// pit at the last index.
type Board []int

// NewBoard creates a board with pits regular pits holding pebbles each and
// an empty end pit.
//
// Precondition: pits >= 1; pebbles >= 0.
// Postcondition: Returns a Board of length pits+1.
func NewBoard(pits, pebbles int) Board {
	b := make(Board, pits+1)
	for i := 0; i < pits; i++ {
		b[i] = pebbles
	}
	return b
}

// Pits returns the number of regular pits.
func (b Board) Pits() int { return len(b) - 1 }

// End returns the pebble count of the end pit.
func (b Board) End() int { return b[len(b)-1] }

// Stock returns the sum of the regular pits.
func (b Board) Stock() int {
	n := 0
	for _, p := range b[:b.Pits()] {
		n += p
	}
	return n
}

// Score returns the sum of every pit including the end pit.
func (b Board) Score() int {
	return b.Stock() + b.End()
}

// RowEmpty reports whether every regular pit is zero.
func (b Board) RowEmpty() bool {
	for _, p := range b[:b.Pits()] {
		if p != 0 {
			return false
		}
	}
	return true
}

// String renders the board as "[0]4 [1]4 ... [end pit]0".
func (b Board) String() string {
	var sb strings.Builder
	for i, p := range b[:b.Pits()] {
		fmt.Fprintf(&sb, "[%d]%d ", i, p)
	}
	fmt.Fprintf(&sb, "[end pit]%d", b.End())
	return sb.String()
}

// InitialStock returns the per-pit pebble count for a newly created board:
// the average regular-pit stock over boards, rounded up, or dflt when boards
// is empty.
//
// Precondition: pits >= 1.
func InitialStock(boards []Board, pits, dflt int) int {
	if len(boards) == 0 {
		return dflt
	}
	total := 0
	for _, b := range boards {
		total += b.Stock()
	}
	// Integer division truncates toward zero, so an empty game yields 1.
	return (total-1)/(len(boards)*pits) + 1
}

// Landing identifies where the last sown pebble was placed.
type Landing struct {
	// Row is the index into the rows passed to Sow.
	Row int
	// Pit is the pit index within that row.
	Pit int
	// Sown is the number of pebbles taken from the chosen pit.
	Sown int
}

// InEndPit reports whether the last pebble landed in the mover's own end pit.
func (l Landing) InEndPit(pits int) bool {
	return l.Row == 0 && l.Pit == pits
}

// Sow empties pit of rows[0] and distributes its pebbles one at a time
// along the rows. rows[0] is the mover's board; rows[1:] follow in turn
// order and the distribution wraps back to rows[0]. The mover's end pit may
// receive a pebble only during the initial run on the mover's row; once the
// distribution leaves that row every end pit, the mover's included, is
// skipped.
//
// Precondition: rows is non-empty and every board has the same length.
// Postcondition: On error no board is modified. On success the total
// number of pebbles across rows is unchanged.
func Sow(rows []Board, pit int) (Landing, error) {
	mover := rows[0]
	pits := mover.Pits()
	if pit < 0 || pit >= pits {
		return Landing{}, fmt.Errorf("pit %d: %w", pit, ErrPitOutOfRange)
	}
	if mover[pit] == 0 {
		return Landing{}, fmt.Errorf("pit %d: %w", pit, ErrEmptyPit)
	}

	k := mover[pit]
	mover[pit] = 0

	land := Landing{Row: 0, Pit: pit, Sown: k}
	row, i, ceiling := 0, pit, pits
	for k > 0 {
		if i < ceiling {
			i++
			rows[row][i]++
			k--
			land.Row, land.Pit = row, i
			continue
		}
		ceiling = pits - 1
		i = -1
		row = (row + 1) % len(rows)
	}
	return land, nil
}

// Total returns the number of pebbles across all boards, end pits included.
func Total(boards []Board) int {
	n := 0
	for _, b := range boards {
		n += b.Score()
	}
	return n
}
