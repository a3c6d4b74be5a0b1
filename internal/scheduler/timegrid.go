package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Clock is a wall-clock time expressed in minutes after midnight.
type Clock int

// ParseClock reads "H:MM" or "HH:MM".
func ParseClock(raw string) (Clock, error) {
	raw = strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return 0, fmt.Errorf("invalid clock %q: want H:MM", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock %q: hour out of range", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: minute out of range", raw)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(raw string) Clock {
	c, err := ParseClock(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%d:%02d", int(c)/60, int(c)%60)
}

// Day is a teaching day, Monday through Saturday.
type Day int

const (
	Monday Day = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var dayNames = [...]string{"", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// AllDays lists the six teaching days in calendar order.
func AllDays() []Day {
	return []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}
}

func (d Day) String() string {
	if d < Monday || d > Saturday {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNames[d]
}

// Valid reports whether d is one of the six teaching days.
func (d Day) Valid() bool {
	return d >= Monday && d <= Saturday
}

// ParseDay accepts full or three-letter day names in any case.
func ParseDay(raw string) (Day, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for d := Monday; d <= Saturday; d++ {
		full := strings.ToLower(dayNames[d])
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", raw)
}

// TimeSlot is one labelled window of the weekly grid.
type TimeSlot struct {
	Label string
	Interval
	Lab bool
}

// ParseTimeSlot reads "9:00-9:55".
func ParseTimeSlot(raw string, lab bool) (TimeSlot, error) {
	iv, err := ParseInterval(raw)
	if err != nil {
		return TimeSlot{}, err
	}
	return TimeSlot{Label: iv.String(), Interval: iv, Lab: lab}, nil
}

// GridSpec is the textual form of a TimeGrid, as found in run files and requests.
type GridSpec struct {
	Days                   []string   `yaml:"days" json:"days"`
	Slots                  []string   `yaml:"slots" json:"slots"`
	LabSlots               []string   `yaml:"lab_slots" json:"labSlots"`
	TutorialExcludedStarts []string   `yaml:"tutorial_excluded_starts" json:"tutorialExcludedStarts"`
	BatchCycle             [][]string `yaml:"batch_cycle" json:"batchCycle"`
}

// DefaultGridSpec returns the stock weekly layout.
func DefaultGridSpec() GridSpec {
	return GridSpec{
		Days: []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
		Slots: []string{
			"9:00-9:55", "9:55-10:50", "11:05-12:00", "12:00-12:55",
			"13:45-14:40", "14:40-15:35", "15:35-16:30",
		},
		LabSlots:               []string{"12:00-13:50", "15:35-17:25"},
		TutorialExcludedStarts: []string{"9:55", "12:00"},
		BatchCycle:             [][]string{{"batch1", "batch2"}, {"batch2", "batch3"}, {"batch1", "batch3"}},
	}
}

// Merge fills every empty field of s from fallback.
func (s GridSpec) Merge(fallback GridSpec) GridSpec {
	if len(s.Days) == 0 {
		s.Days = fallback.Days
	}
	if len(s.Slots) == 0 {
		s.Slots = fallback.Slots
	}
	if len(s.LabSlots) == 0 {
		s.LabSlots = fallback.LabSlots
	}
	if s.TutorialExcludedStarts == nil {
		s.TutorialExcludedStarts = fallback.TutorialExcludedStarts
	}
	if len(s.BatchCycle) == 0 {
		s.BatchCycle = fallback.BatchCycle
	}
	return s
}

// TimeGrid is the parsed weekly layout shared by every term of a run. It is read-only once built.
type TimeGrid struct {
	Days                   []Day
	Slots                  []TimeSlot
	LabSlots               []TimeSlot
	TutorialExcludedStarts map[Clock]bool
	BatchCycle             [][2]string
}

// NewTimeGrid validates spec and builds a TimeGrid. Lattice slots are kept in start order.
func NewTimeGrid(spec GridSpec) (*TimeGrid, error) {
	g := &TimeGrid{TutorialExcludedStarts: make(map[Clock]bool)}

	seenDay := make(map[Day]bool)
	for _, raw := range spec.Days {
		d, err := ParseDay(raw)
		if err != nil {
			return nil, err
		}
		if seenDay[d] {
			return nil, fmt.Errorf("day %s listed twice", d)
		}
		seenDay[d] = true
		g.Days = append(g.Days, d)
	}
	if len(g.Days) == 0 {
		return nil, fmt.Errorf("time grid needs at least one day")
	}

	var err error
	if g.Slots, err = parseSlots(spec.Slots, false); err != nil {
		return nil, err
	}
	if len(g.Slots) == 0 {
		return nil, fmt.Errorf("time grid needs at least one lattice slot")
	}
	if g.LabSlots, err = parseSlots(spec.LabSlots, true); err != nil {
		return nil, err
	}
	for i := 1; i < len(g.Slots); i++ {
		if g.Slots[i].Start < g.Slots[i-1].End {
			return nil, fmt.Errorf("lattice slots %s and %s overlap", g.Slots[i-1].Label, g.Slots[i].Label)
		}
	}

	for _, raw := range spec.TutorialExcludedStarts {
		c, err := ParseClock(raw)
		if err != nil {
			return nil, err
		}
		g.TutorialExcludedStarts[c] = true
	}

	for _, pair := range spec.BatchCycle {
		if len(pair) != 2 || pair[0] == "" || pair[1] == "" {
			return nil, fmt.Errorf("batch cycle entries must name two batches, got %v", pair)
		}
		g.BatchCycle = append(g.BatchCycle, [2]string{pair[0], pair[1]})
	}
	if len(g.BatchCycle) == 0 {
		return nil, fmt.Errorf("batch cycle must have at least one entry")
	}

	return g, nil
}

// DefaultTimeGrid returns the stock grid.
func DefaultTimeGrid() *TimeGrid {
	g, err := NewTimeGrid(DefaultGridSpec())
	if err != nil {
		panic(err)
	}
	return g
}

func parseSlots(raw []string, lab bool) ([]TimeSlot, error) {
	slots := make([]TimeSlot, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		slot, err := ParseTimeSlot(r, lab)
		if err != nil {
			return nil, err
		}
		if seen[slot.Label] {
			return nil, fmt.Errorf("slot %s listed twice", slot.Label)
		}
		seen[slot.Label] = true
		slots = append(slots, slot)
	}
	sortSlots(slots)
	return slots, nil
}

// Columns returns lattice and lab slots together, ordered by start then end.
func (g *TimeGrid) Columns() []TimeSlot {
	cols := make([]TimeSlot, 0, len(g.Slots)+len(g.LabSlots))
	seen := make(map[string]bool)
	for _, s := range append(append([]TimeSlot{}, g.Slots...), g.LabSlots...) {
		if seen[s.Label] {
			continue
		}
		seen[s.Label] = true
		cols = append(cols, s)
	}
	sortSlots(cols)
	return cols
}

// Slot finds a lattice or lab slot by label.
func (g *TimeGrid) Slot(label string) (TimeSlot, bool) {
	for _, s := range g.Slots {
		if s.Label == label {
			return s, true
		}
	}
	for _, s := range g.LabSlots {
		if s.Label == label {
			return s, true
		}
	}
	return TimeSlot{}, false
}

func sortSlots(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].End < slots[j].End
	})
}

// Cutoffs maps each day to the latest end time allowed for theory and tutorial sessions.
type Cutoffs struct {
	byDay    map[Day]Clock
	fallback Clock
}

// ParseCutoffs reads day name to "HH:MM" pairs. Days not listed use fallback.
func ParseCutoffs(raw map[string]string, fallback Clock) (Cutoffs, error) {
	c := Cutoffs{byDay: make(map[Day]Clock, len(raw)), fallback: fallback}
	for name, value := range raw {
		d, err := ParseDay(name)
		if err != nil {
			return Cutoffs{}, err
		}
		t, err := ParseClock(value)
		if err != nil {
			return Cutoffs{}, fmt.Errorf("cutoff for %s: %w", d, err)
		}
		c.byDay[d] = t
	}
	return c, nil
}

// For returns the cutoff applying to d.
func (c Cutoffs) For(d Day) Clock {
	if t, ok := c.byDay[d]; ok {
		return t
	}
	return c.fallback
}
