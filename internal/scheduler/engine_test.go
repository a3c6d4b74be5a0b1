package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func allCutoffs(value string) map[string]string {
	out := make(map[string]string)
	for _, d := range AllDays() {
		out[d.String()] = value
	}
	return out
}

func mathPhysicsTerm() models.TermDescription {
	return models.TermDescription{
		Semester:     "Semester 3",
		TermStart:    "01/08/2024",
		TermEnd:      "30/11/2024",
		Room:         "B-204",
		StudentCount: 60,
		Subjects: []models.SubjectEntry{
			{Name: "Math", Teacher: "T1", Credits: "3:1:0"},
			{Name: "Physics", Teacher: "T2", Credits: "0:0:2"},
		},
		DayCutoffs: allCutoffs("16:30"),
	}
}

func assertLedgerConsistent(t *testing.T, l *Ledger) {
	t.Helper()
	for _, teacher := range l.Teachers() {
		for _, day := range AllDays() {
			bookings := l.Bookings(teacher, day)
			for i := range bookings {
				for j := i + 1; j < len(bookings); j++ {
					assert.False(t, Overlaps(bookings[i], bookings[j]),
						"teacher %s on %s: %s overlaps %s", teacher, day, bookings[i], bookings[j])
				}
			}
		}
	}
}

func TestScheduleMathPhysicsEndToEnd(t *testing.T) {
	for seed := int64(1); seed <= 30; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			engine := NewEngine(nil, DefaultConfig(), WithSeed(seed))
			ledger := NewLedger()

			tt, err := engine.Schedule(context.Background(), mathPhysicsTerm(), ledger)
			require.NoError(t, err)
			assert.Equal(t, PhaseDone, tt.Phase)

			assert.Equal(t, 3, tt.Week.Count("Math", models.SessionTheory))
			assert.Equal(t, 2, tt.Week.Count("Math", models.SessionTutorial))
			assert.Equal(t, 6, tt.Week.Count("Physics", models.SessionLab))
			assertLedgerConsistent(t, ledger)

			var tutorials []Cell
			batches := map[int]int{}
			for _, c := range tt.Week.Cells() {
				require.NotEmpty(t, c.Assignments)
				if c.Assignments[0].Kind == models.SessionTutorial {
					tutorials = append(tutorials, c)
				}
				if c.Assignments[0].Subject == "Physics" {
					assert.True(t, c.Assignments[0].Joint)
					batches[c.Assignments[0].BatchNumber]++
				}
			}
			assert.Equal(t, map[int]int{1: 2, 2: 2, 3: 2}, batches)

			require.Len(t, tutorials, 2)
			assert.Equal(t, tutorials[0].Day, tutorials[1].Day)
			assert.Equal(t, "Math (Tutorial) - T1", tutorials[0].Label())
			assert.False(t, engine.Grid().TutorialExcludedStarts[tutorials[0].Slot.Start])
		})
	}
}

func TestScheduleTutorialPairsAvoidExcludedStarts(t *testing.T) {
	term := mathPhysicsTerm()
	term.Subjects = []models.SubjectEntry{{Name: "Stats", Teacher: "T5", Credits: "0:3:0"}}
	term.DayCutoffs = allCutoffs("15:35")
	excluded := []Clock{MustClock("9:55"), MustClock("12:00")}

	for seed := int64(1); seed <= 30; seed++ {
		engine := NewEngine(nil, DefaultConfig(), WithSeed(seed))
		tt, err := engine.Schedule(context.Background(), term, NewLedger())
		require.NoError(t, err, "seed %d", seed)
		require.Equal(t, 6, tt.Week.Count("Stats", models.SessionTutorial), "seed %d", seed)

		byDay := map[Day][]Cell{}
		for _, c := range tt.Week.Cells() {
			require.Equal(t, models.SessionTutorial, c.Assignments[0].Kind)
			byDay[c.Day] = append(byDay[c.Day], c)
		}
		pairs := 0
		for day, cells := range byDay {
			require.Zero(t, len(cells)%2, "seed %d: odd tutorial cells on %s", seed, day)
			for i := 0; i < len(cells); i += 2 {
				first, second := cells[i], cells[i+1]
				assert.Equal(t, first.Slot.End, second.Slot.Start, "seed %d: %s and %s are not consecutive", seed, first.Slot.Label, second.Slot.Label)
				assert.NotContains(t, excluded, first.Slot.Start, "seed %d: tutorial starts at %s", seed, first.Slot.Label)
				assert.LessOrEqual(t, second.Slot.End, MustClock("15:35"), "seed %d: %s ends after cutoff", seed, second.Slot.Label)
				pairs++
			}
		}
		assert.Equal(t, 3, pairs, "seed %d", seed)
	}
}

func TestScheduleRespectsCutoffs(t *testing.T) {
	term := mathPhysicsTerm()
	term.Subjects = append(term.Subjects, models.SubjectEntry{Name: "Chem", Teacher: "T3", Credits: "2:0:1"})
	term.DayCutoffs = allCutoffs("12:55")

	for seed := int64(1); seed <= 20; seed++ {
		engine := NewEngine(nil, DefaultConfig(), WithSeed(seed))
		tt, err := engine.Schedule(context.Background(), term, NewLedger())
		require.NoError(t, err, "seed %d", seed)

		for _, c := range tt.Week.Cells() {
			kind := c.Assignments[0].Kind
			if kind == models.SessionTheory || kind == models.SessionTutorial {
				assert.LessOrEqual(t, c.Slot.End, MustClock("12:55"), "seed %d: %s ends after cutoff", seed, c.Slot.Label)
			}
		}
		assert.Equal(t, 2, tt.Week.Count("Chem", models.SessionLab))
	}
}

func TestScheduleIndividualLabsRotateBatches(t *testing.T) {
	term := models.TermDescription{
		Semester: "Semester 5",
		Subjects: []models.SubjectEntry{
			{Name: "Chem", Teacher: "T3", Credits: "1:0:1"},
			{Name: "Bio", Teacher: "T4", Credits: "1:0:1"},
		},
	}
	engine := NewEngine(nil, DefaultConfig(), WithSeed(7))

	tt, err := engine.Schedule(context.Background(), term, NewLedger())
	require.NoError(t, err)

	pairs := map[string]int{}
	for _, c := range tt.Week.Cells() {
		a := c.Assignments[0]
		if a.Kind != models.SessionLab {
			continue
		}
		assert.True(t, c.Slot.Lab)
		require.Len(t, a.Batches, 2)
		pairs[a.Batches[0]+"&"+a.Batches[1]]++
	}
	assert.Equal(t, map[string]int{"batch1&batch2": 2, "batch2&batch3": 1, "batch1&batch3": 1}, pairs)
}

func TestScheduleCreditErrorNamesTrimmedSubject(t *testing.T) {
	term := mathPhysicsTerm()
	term.Subjects[0].Name = "  Math  "
	term.Subjects[0].Credits = "3:one:0"

	_, err := NewEngine(nil, DefaultConfig(), WithSeed(1)).Schedule(context.Background(), term, NewLedger())
	var credit *InvalidCreditFormatError
	require.True(t, errors.As(err, &credit))
	assert.Equal(t, "Math", credit.Subject)
}

func TestScheduleRejectsMalformedCreditsBeforePlacing(t *testing.T) {
	term := mathPhysicsTerm()
	term.Subjects = append(term.Subjects, models.SubjectEntry{Name: "Chem", Teacher: "T3", Credits: "x:1:0"})
	ledger := NewLedger()

	_, err := NewEngine(nil, DefaultConfig(), WithSeed(1)).Schedule(context.Background(), term, ledger)

	var credErr *InvalidCreditFormatError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, "Chem", credErr.Subject)
	assert.Empty(t, ledger.Teachers())
}

func TestScheduleSameDayTheoryGuard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowSameDayTheory = false
	term := models.TermDescription{
		Semester: "Semester 1",
		Subjects: []models.SubjectEntry{{Name: "Math", Teacher: "T1", Credits: "6:0:0"}},
	}

	tt, err := NewEngine(nil, cfg, WithSeed(3)).Schedule(context.Background(), term, NewLedger())
	require.NoError(t, err)
	for _, d := range AllDays() {
		assert.True(t, tt.Week.HasSession(d, "Math", models.SessionTheory), "missing theory on %s", d)
	}

	term.Subjects[0].Credits = "7:0:0"
	_, err = NewEngine(nil, cfg, WithSeed(3)).Schedule(context.Background(), term, NewLedger())
	var unsched *UnschedulableSessionError
	require.True(t, errors.As(err, &unsched))
	assert.Equal(t, 6, unsched.Placed)
	assert.Equal(t, 7, unsched.Required)
	assert.Equal(t, PhaseIndividualPracticalsPlaced, unsched.Phase)
}

func TestScheduleJointLabBudgetExhausted(t *testing.T) {
	grid, err := NewTimeGrid(GridSpec{
		Days:       []string{"Monday"},
		Slots:      []string{"9:00-9:55", "9:55-10:50"},
		LabSlots:   []string{"12:00-13:50"},
		BatchCycle: [][]string{{"batch1", "batch2"}},
	})
	require.NoError(t, err)
	term := models.TermDescription{
		Semester: "Semester 2",
		Subjects: []models.SubjectEntry{{Name: "Physics", Teacher: "T2", Credits: "0:0:2"}},
	}

	_, err = NewEngine(grid, DefaultConfig(), WithSeed(1)).Schedule(context.Background(), term, NewLedger())

	var unsched *UnschedulableSessionError
	require.True(t, errors.As(err, &unsched))
	assert.Equal(t, models.SessionLab, unsched.Kind)
	assert.Equal(t, 1, unsched.Placed)
	assert.Equal(t, 3, unsched.Required)
	assert.Equal(t, PhaseInit, unsched.Phase)
	assert.Equal(t, 1, unsched.Attempts)
	assert.True(t, errors.Is(err, appErrors.ErrUnschedulableSession))
}

func TestJointLabAvoidsAdjacentTeacherBookings(t *testing.T) {
	grid, err := NewTimeGrid(GridSpec{
		Days:       []string{"Monday"},
		Slots:      []string{"9:00-9:55", "9:55-10:50", "10:52-11:40", "13:00-13:55", "13:55-14:50"},
		LabSlots:   []string{"15:00-16:50"},
		BatchCycle: [][]string{{"batch1", "batch2"}},
	})
	require.NoError(t, err)
	ledger := NewLedger()
	require.NoError(t, ledger.Book("T2", Monday, iv(t, "10:52-11:40")))

	cfg := DefaultConfig()
	cfg.JointLabSessions = 1
	term := models.TermDescription{
		Semester: "Semester 2",
		Subjects: []models.SubjectEntry{{Name: "Physics", Teacher: "T2", Credits: "0:0:1"}},
	}
	tt, err := NewEngine(grid, cfg, WithSeed(1)).Schedule(context.Background(), term, ledger)
	require.NoError(t, err)

	assert.Equal(t, "", tt.Week.Label(Monday, "9:00-9:55"))
	assert.Equal(t, "Physics (Lab - Batch 1) - T2", tt.Week.Label(Monday, "13:00-13:55"))
	assert.Equal(t, "Physics (Lab - Batch 1) - T2", tt.Week.Label(Monday, "13:55-14:50"))
}

func TestScheduleAllSharedTeacherNeverDoubleBooked(t *testing.T) {
	heavy := func(name string) models.TermDescription {
		return models.TermDescription{
			Semester:   name,
			Subjects:   []models.SubjectEntry{{Name: "Math " + name, Teacher: "T1", Credits: "14:0:0"}},
			DayCutoffs: allCutoffs("16:30"),
		}
	}

	for seed := int64(1); seed <= 10; seed++ {
		ledger := NewLedger()
		engine := NewEngine(nil, DefaultConfig(), WithSeed(seed))

		done, err := engine.ScheduleAll(context.Background(), []models.TermDescription{heavy("A"), heavy("B")}, ledger)

		var unsched *UnschedulableSessionError
		require.True(t, errors.As(err, &unsched), "seed %d", seed)
		assert.Equal(t, "B", unsched.Term)
		assert.Equal(t, "T1", unsched.Teacher)
		require.Len(t, done, 1)
		assertLedgerConsistent(t, ledger)
	}
}

func TestScheduleAllSharedTeacherDisjointPlacement(t *testing.T) {
	termA := mathPhysicsTerm()
	termB := mathPhysicsTerm()
	termB.Semester = "Semester 5"
	termB.Subjects = []models.SubjectEntry{{Name: "Algebra", Teacher: "T1", Credits: "3:1:0"}}
	ledger := NewLedger()

	done, err := NewEngine(nil, DefaultConfig(), WithSeed(11)).
		ScheduleAll(context.Background(), []models.TermDescription{termA, termB}, ledger)
	require.NoError(t, err)
	require.Len(t, done, 2)
	assertLedgerConsistent(t, ledger)

	for _, a := range done[0].Week.Cells() {
		for _, b := range done[1].Week.Cells() {
			if a.Day != b.Day || a.Assignments[0].Teacher != "T1" || b.Assignments[0].Teacher != "T1" {
				continue
			}
			assert.False(t, overlapsStrict(a.Slot.Interval, b.Slot.Interval), "T1 double booked on %s", a.Day)
		}
	}
}

func TestScheduleHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(nil, DefaultConfig(), WithSeed(1)).Schedule(ctx, mathPhysicsTerm(), NewLedger())
	assert.ErrorIs(t, err, context.Canceled)
}

type countingObserver struct {
	calls  map[models.SessionKind]int
	failed int
}

func (o *countingObserver) ObservePlacement(kind models.SessionKind, attempts int, placed bool) {
	if o.calls == nil {
		o.calls = map[models.SessionKind]int{}
	}
	o.calls[kind]++
	if !placed {
		o.failed++
	}
}

func TestScheduleReportsPlacementsToObserver(t *testing.T) {
	obs := &countingObserver{}
	_, err := NewEngine(nil, DefaultConfig(), WithSeed(5), WithObserver(obs)).
		Schedule(context.Background(), mathPhysicsTerm(), NewLedger())
	require.NoError(t, err)

	assert.Equal(t, 3, obs.calls[models.SessionTheory])
	assert.Equal(t, 1, obs.calls[models.SessionTutorial])
	assert.Equal(t, 3, obs.calls[models.SessionLab])
	assert.Zero(t, obs.failed)
}

func TestScheduleIsReproducibleForSeed(t *testing.T) {
	render := func() []string {
		tt, err := NewEngine(nil, DefaultConfig(), WithSeed(99)).Schedule(context.Background(), mathPhysicsTerm(), NewLedger())
		require.NoError(t, err)
		var out []string
		for _, c := range tt.Week.Cells() {
			out = append(out, c.Day.String()+" "+c.Slot.Label+" "+c.Label())
		}
		return out
	}
	assert.Equal(t, render(), render())
}
