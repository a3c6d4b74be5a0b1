package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// Interval is a closed wall-clock range on one day.
type Interval struct {
	Start Clock
	End   Clock
}

// ParseInterval reads "H:MM-H:MM".
func ParseInterval(raw string) (Interval, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return Interval{}, fmt.Errorf("invalid time range %q: want H:MM-H:MM", raw)
	}
	start, err := ParseClock(from)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClock(to)
	if err != nil {
		return Interval{}, err
	}
	if end <= start {
		return Interval{}, fmt.Errorf("invalid time range %q: end must follow start", raw)
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// Duration is the length of the interval.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.End-iv.Start) * time.Minute
}

// Overlaps reports whether a and b share any instant. Touching endpoints count.
func Overlaps(a, b Interval) bool {
	return a.Start <= b.End && b.Start <= a.End
}

// IsAdjacent reports whether the gap between a and b, in either direction, is under threshold.
func IsAdjacent(a, b Interval, threshold time.Duration) bool {
	return gap(a.Start, b.End) < threshold || gap(b.Start, a.End) < threshold
}

// overlapsStrict is the half-open test used for room occupancy: back-to-back slots share the room fine.
func overlapsStrict(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func span(a, b Interval) Interval {
	iv := a
	if b.Start < iv.Start {
		iv.Start = b.Start
	}
	if b.End > iv.End {
		iv.End = b.End
	}
	return iv
}

func gap(a, b Clock) time.Duration {
	d := a - b
	if d < 0 {
		d = -d
	}
	return time.Duration(d) * time.Minute
}
