package scheduler

import (
	"math/rand"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Observer receives one call per required session once its search ends.
type Observer interface {
	ObservePlacement(kind models.SessionKind, attempts int, placed bool)
}

// window is one or more slots taken together by a single session.
type window []TimeSlot

func (w window) span() Interval {
	iv := w[0].Interval
	for _, s := range w[1:] {
		iv = span(iv, s.Interval)
	}
	return iv
}

// placer runs the bounded randomized search shared by every strategy. Day order is shuffled once;
// each session resumes scanning on the day after the previous session landed.
type placer struct {
	rng     *rand.Rand
	days    []Day
	cursor  int
	passes  int
	shuffle bool
}

func newPlacer(rng *rand.Rand, days []Day, passes int, shuffleCandidates bool) *placer {
	order := append([]Day(nil), days...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	if passes < 1 {
		passes = 1
	}
	return &placer{rng: rng, days: order, passes: passes, shuffle: shuffleCandidates}
}

// place commits the first accepted candidate. It reports how many candidates were tried.
func (p *placer) place(
	candidates func(Day) []window,
	accept func(Day, window) bool,
	commit func(Day, window) error,
) (int, bool, error) {
	attempts := 0
	for pass := 0; pass < p.passes; pass++ {
		for i := range p.days {
			idx := (p.cursor + i) % len(p.days)
			day := p.days[idx]

			cands := append([]window(nil), candidates(day)...)
			if p.shuffle {
				p.rng.Shuffle(len(cands), func(a, b int) { cands[a], cands[b] = cands[b], cands[a] })
			}
			for _, w := range cands {
				attempts++
				if !accept(day, w) {
					continue
				}
				if err := commit(day, w); err != nil {
					return attempts, false, err
				}
				p.cursor = (idx + 1) % len(p.days)
				return attempts, true, nil
			}
		}
	}
	return attempts, false, nil
}
