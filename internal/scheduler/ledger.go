package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Ledger records every interval booked per teacher per day across all terms of a run.
// No teacher ever holds two overlapping intervals on one day.
//
// Unavailability windows are kept apart from bookings. They clash only with sessions that
// strictly overlap them, so a session ending as a window starts is still allowed.
type Ledger struct {
	mu       sync.RWMutex
	bookings map[string]map[Day][]Interval
	blocked  map[string]map[Day][]Interval
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		bookings: make(map[string]map[Day][]Interval),
		blocked:  make(map[string]map[Day][]Interval),
	}
}

// Block marks teacher unavailable for iv on day. Windows may touch or overlap each other.
func (l *Ledger) Block(teacher string, day Day, iv Interval) {
	l.mu.Lock()
	defer l.mu.Unlock()
	days, ok := l.blocked[teacher]
	if !ok {
		days = make(map[Day][]Interval)
		l.blocked[teacher] = days
	}
	days[day] = append(days[day], iv)
}

// Blocked returns teacher's unavailability windows on day in start order.
func (l *Ledger) Blocked(teacher string, day Day) []Interval {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := append([]Interval(nil), l.blocked[teacher][day]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// IsFree reports whether teacher has no booking on day overlapping iv.
func (l *Ledger) IsFree(teacher string, day Day, iv Interval) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, clash := l.conflict(teacher, day, iv)
	return !clash
}

// HasAdjacent reports whether teacher has a booking on day within threshold of iv.
func (l *Ledger) HasAdjacent(teacher string, day Day, iv Interval, threshold time.Duration) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, booked := range l.bookings[teacher][day] {
		if IsAdjacent(iv, booked, threshold) {
			return true
		}
	}
	return false
}

// Book records iv for teacher on day.
func (l *Ledger) Book(teacher string, day Day, iv Interval) error {
	return l.BookAll(day, iv, teacher)
}

// BookAll records iv on day for every distinct teacher, or for none if any of them clashes.
func (l *Ledger) BookAll(day Day, iv Interval, teachers ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	distinct := uniqueStrings(teachers)
	for _, t := range distinct {
		if existing, clash := l.conflict(t, day, iv); clash {
			return &LedgerConflictError{Teacher: t, Day: day, Interval: iv, Existing: existing}
		}
	}
	for _, t := range distinct {
		days, ok := l.bookings[t]
		if !ok {
			days = make(map[Day][]Interval)
			l.bookings[t] = days
		}
		days[day] = append(days[day], iv)
	}
	return nil
}

// Bookings returns teacher's intervals on day in start order.
func (l *Ledger) Bookings(teacher string, day Day) []Interval {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := append([]Interval(nil), l.bookings[teacher][day]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Teachers lists every teacher with at least one booking.
func (l *Ledger) Teachers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.bookings))
	for name := range l.bookings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Ledger) conflict(teacher string, day Day, iv Interval) (Interval, bool) {
	for _, booked := range l.bookings[teacher][day] {
		if Overlaps(iv, booked) {
			return booked, true
		}
	}
	for _, window := range l.blocked[teacher][day] {
		if overlapsStrict(iv, window) {
			return window, true
		}
	}
	return Interval{}, false
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
