package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Cell is one occupied day and slot of a term's grid. Joint lab sessions hold several assignments.
type Cell struct {
	Day         Day
	Slot        TimeSlot
	Assignments []models.Assignment
}

// Label joins the assignment labels one per line.
func (c Cell) Label() string {
	parts := make([]string, len(c.Assignments))
	for i, a := range c.Assignments {
		parts[i] = a.Label()
	}
	return strings.Join(parts, "\n")
}

type cellKey struct {
	day   Day
	label string
}

// WeeklyGrid maps day and slot to the assignment placed there. Each cell is written at most once.
type WeeklyGrid struct {
	cells map[cellKey]*Cell
}

// NewWeeklyGrid returns an empty grid.
func NewWeeklyGrid() *WeeklyGrid {
	return &WeeklyGrid{cells: make(map[cellKey]*Cell)}
}

// IsFree reports whether no occupied cell on day shares any time with slot.
// Lab windows span several lattice slots, so room occupancy is checked by time rather than label.
func (g *WeeklyGrid) IsFree(day Day, slot TimeSlot) bool {
	for key, cell := range g.cells {
		if key.day == day && overlapsStrict(cell.Slot.Interval, slot.Interval) {
			return false
		}
	}
	return true
}

// Place writes assignments into the cell for day and slot.
func (g *WeeklyGrid) Place(day Day, slot TimeSlot, assignments ...models.Assignment) error {
	key := cellKey{day: day, label: slot.Label}
	if _, taken := g.cells[key]; taken {
		return fmt.Errorf("%w: %s %s", ErrCellOccupied, day, slot.Label)
	}
	if !g.IsFree(day, slot) {
		return fmt.Errorf("%w: %s %s overlaps an occupied slot", ErrCellOccupied, day, slot.Label)
	}
	g.cells[key] = &Cell{Day: day, Slot: slot, Assignments: append([]models.Assignment(nil), assignments...)}
	return nil
}

// Cell returns the cell at day and slot label.
func (g *WeeklyGrid) Cell(day Day, label string) (Cell, bool) {
	c, ok := g.cells[cellKey{day: day, label: label}]
	if !ok {
		return Cell{}, false
	}
	return *c, true
}

// Label returns the display text at day and slot label, or "" when empty.
func (g *WeeklyGrid) Label(day Day, label string) string {
	c, ok := g.Cell(day, label)
	if !ok {
		return ""
	}
	return c.Label()
}

// Cells returns every occupied cell ordered by day then slot time.
func (g *WeeklyGrid) Cells() []Cell {
	out := make([]Cell, 0, len(g.cells))
	for _, c := range g.cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		if out[i].Slot.Start != out[j].Slot.Start {
			return out[i].Slot.Start < out[j].Slot.Start
		}
		return out[i].Slot.End < out[j].Slot.End
	})
	return out
}

// Count returns how many cells hold an assignment of subject with the given kind.
func (g *WeeklyGrid) Count(subject string, kind models.SessionKind) int {
	n := 0
	for _, c := range g.cells {
		if holds(c, subject, kind) {
			n++
		}
	}
	return n
}

// HasSession reports whether day already holds a session of subject with the given kind.
func (g *WeeklyGrid) HasSession(day Day, subject string, kind models.SessionKind) bool {
	for key, c := range g.cells {
		if key.day == day && holds(c, subject, kind) {
			return true
		}
	}
	return false
}

func holds(c *Cell, subject string, kind models.SessionKind) bool {
	for _, a := range c.Assignments {
		if a.Subject == subject && a.Kind == kind {
			return true
		}
	}
	return false
}
