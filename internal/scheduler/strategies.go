package scheduler

import (
	"context"
	"strings"

	"github.com/noah-isme/timetable-engine/internal/models"
)

type subject struct {
	name    string
	teacher string
	credits CreditTriple
}

// placeJointLabs puts every pure-practical subject of the term into the same double slots so their
// batches rotate through the lab together.
func (r *termRun) placeJointLabs(ctx context.Context) error {
	var group []subject
	for _, s := range r.subjects {
		if s.credits.IsPurePractical() {
			group = append(group, s)
		}
	}
	if len(group) == 0 {
		return nil
	}

	names := make([]string, len(group))
	teachers := make([]string, len(group))
	for i, s := range group {
		names[i] = s.name
		teachers[i] = s.teacher
	}
	teachers = uniqueStrings(teachers)

	pairs := r.adjacentPairs()
	p := newPlacer(r.rng, r.grid.Days, r.cfg.AttemptPasses, false)
	required := r.cfg.JointLabSessions

	for session := 0; session < required; session++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := session + 1
		attempts, ok, err := p.place(
			func(Day) []window { return pairs },
			func(day Day, w window) bool {
				if !r.cellsFree(day, w) {
					return false
				}
				iv := w.span()
				for _, t := range teachers {
					if !r.ledger.IsFree(t, day, iv) || r.ledger.HasAdjacent(t, day, iv, r.cfg.AdjacencyThreshold) {
						return false
					}
				}
				return true
			},
			func(day Day, w window) error {
				assignments := make([]models.Assignment, len(group))
				for i, s := range group {
					assignments[i] = models.Assignment{
						Subject:     s.name,
						Teacher:     s.teacher,
						Kind:        models.SessionLab,
						BatchNumber: batch,
						Joint:       true,
					}
				}
				return r.commit(day, w, teachers, assignments...)
			},
		)
		r.observe(models.SessionLab, attempts, ok)
		if err != nil {
			return err
		}
		if !ok {
			return r.unschedulable(strings.Join(names, ", "), strings.Join(teachers, ", "), models.SessionLab, session, required, attempts)
		}
	}
	return nil
}

// placeIndividualLabs gives every other subject with practical credit its own lab windows,
// labelling each session with the next batch pair of the term's cycle.
func (r *termRun) placeIndividualLabs(ctx context.Context) error {
	labs := make([]window, len(r.grid.LabSlots))
	for i, s := range r.grid.LabSlots {
		labs[i] = window{s}
	}

	for _, s := range r.subjects {
		if s.credits.Practical == 0 || s.credits.IsPurePractical() {
			continue
		}
		p := newPlacer(r.rng, r.grid.Days, r.cfg.AttemptPasses, true)
		required := r.cfg.LabSessionsPerSubject

		for session := 0; session < required; session++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			attempts, ok, err := p.place(
				func(Day) []window { return labs },
				func(day Day, w window) bool {
					return r.cellsFree(day, w) && r.ledger.IsFree(s.teacher, day, w.span())
				},
				func(day Day, w window) error {
					pair := r.cycle.current()
					err := r.commit(day, w, []string{s.teacher}, models.Assignment{
						Subject: s.name,
						Teacher: s.teacher,
						Kind:    models.SessionLab,
						Batches: []string{pair[0], pair[1]},
					})
					if err == nil {
						r.cycle.advance()
					}
					return err
				},
			)
			r.observe(models.SessionLab, attempts, ok)
			if err != nil {
				return err
			}
			if !ok {
				return r.unschedulable(s.name, s.teacher, models.SessionLab, session, required, attempts)
			}
		}
	}
	return nil
}

// placeTheory books single lattice slots ending by the day's cutoff.
func (r *termRun) placeTheory(ctx context.Context) error {
	for _, s := range r.subjects {
		required := s.credits.Theory
		if required == 0 {
			continue
		}
		p := newPlacer(r.rng, r.grid.Days, r.cfg.AttemptPasses, true)

		for session := 0; session < required; session++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			attempts, ok, err := p.place(
				r.theoryWindows,
				func(day Day, w window) bool {
					if !r.cfg.AllowSameDayTheory && r.week.HasSession(day, s.name, models.SessionTheory) {
						return false
					}
					return r.cellsFree(day, w) && r.ledger.IsFree(s.teacher, day, w.span())
				},
				func(day Day, w window) error {
					return r.commit(day, w, []string{s.teacher}, models.Assignment{
						Subject: s.name,
						Teacher: s.teacher,
						Kind:    models.SessionTheory,
					})
				},
			)
			r.observe(models.SessionTheory, attempts, ok)
			if err != nil {
				return err
			}
			if !ok {
				return r.unschedulable(s.name, s.teacher, models.SessionTheory, session, required, attempts)
			}
		}
	}
	return nil
}

// placeTutorials books consecutive lattice pairs that end by the cutoff and do not start at an
// excluded time.
func (r *termRun) placeTutorials(ctx context.Context) error {
	for _, s := range r.subjects {
		required := s.credits.Tutorial
		if required == 0 {
			continue
		}
		p := newPlacer(r.rng, r.grid.Days, r.cfg.AttemptPasses, true)

		for session := 0; session < required; session++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			attempts, ok, err := p.place(
				r.tutorialWindows,
				func(day Day, w window) bool {
					return r.cellsFree(day, w) && r.ledger.IsFree(s.teacher, day, w.span())
				},
				func(day Day, w window) error {
					return r.commit(day, w, []string{s.teacher}, models.Assignment{
						Subject: s.name,
						Teacher: s.teacher,
						Kind:    models.SessionTutorial,
					})
				},
			)
			r.observe(models.SessionTutorial, attempts, ok)
			if err != nil {
				return err
			}
			if !ok {
				return r.unschedulable(s.name, s.teacher, models.SessionTutorial, session, required, attempts)
			}
		}
	}
	return nil
}

func (r *termRun) theoryWindows(day Day) []window {
	cutoff := r.cutoffs.For(day)
	out := make([]window, 0, len(r.grid.Slots))
	for _, s := range r.grid.Slots {
		if s.End <= cutoff {
			out = append(out, window{s})
		}
	}
	return out
}

func (r *termRun) tutorialWindows(day Day) []window {
	cutoff := r.cutoffs.For(day)
	slots := r.grid.Slots
	out := make([]window, 0, len(slots))
	for i := 0; i+1 < len(slots); i++ {
		first, second := slots[i], slots[i+1]
		if second.End > cutoff || r.grid.TutorialExcludedStarts[first.Start] {
			continue
		}
		out = append(out, window{first, second})
	}
	return out
}

// adjacentPairs lists consecutive lattice slots with no gap between them.
func (r *termRun) adjacentPairs() []window {
	slots := r.grid.Slots
	var out []window
	for i := 0; i+1 < len(slots); i++ {
		if slots[i].End == slots[i+1].Start {
			out = append(out, window{slots[i], slots[i+1]})
		}
	}
	return out
}

func (r *termRun) cellsFree(day Day, w window) bool {
	for _, s := range w {
		if !r.week.IsFree(day, s) {
			return false
		}
	}
	return true
}

// commit books the window's full span for teachers and writes every cell of the window.
// The ledger is checked first so a clash leaves the grid untouched.
func (r *termRun) commit(day Day, w window, teachers []string, assignments ...models.Assignment) error {
	if err := r.ledger.BookAll(day, w.span(), teachers...); err != nil {
		return err
	}
	for _, s := range w {
		if err := r.week.Place(day, s, assignments...); err != nil {
			return err
		}
	}
	return nil
}

func (r *termRun) unschedulable(subject, teacher string, kind models.SessionKind, placed, required, attempts int) error {
	return &UnschedulableSessionError{
		Term:     r.term.Semester,
		Subject:  subject,
		Teacher:  teacher,
		Kind:     kind,
		Placed:   placed,
		Required: required,
		Attempts: attempts,
		Phase:    r.phase,
	}
}

func (r *termRun) observe(kind models.SessionKind, attempts int, ok bool) {
	if r.observer != nil {
		r.observer.ObservePlacement(kind, attempts, ok)
	}
}

// batchCycle rotates lab batch pairs within one term.
type batchCycle struct {
	pairs [][2]string
	idx   int
}

func (c *batchCycle) current() [2]string { return c.pairs[c.idx] }

func (c *batchCycle) advance() { c.idx = (c.idx + 1) % len(c.pairs) }
