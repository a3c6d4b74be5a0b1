package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// Phase is the last placement stage a term completed.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePurePracticalsPlaced
	PhaseIndividualPracticalsPlaced
	PhaseTheoryPlaced
	PhaseTutorialsPlaced
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhasePurePracticalsPlaced:
		return "PURE_PRACTICALS_PLACED"
	case PhaseIndividualPracticalsPlaced:
		return "INDIVIDUAL_PRACTICALS_PLACED"
	case PhaseTheoryPlaced:
		return "THEORY_PLACED"
	case PhaseTutorialsPlaced:
		return "TUTORIALS_PLACED"
	case PhaseDone:
		return "DONE"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Config tunes placement.
type Config struct {
	// AttemptPasses is how many full scans over every day and candidate a session gets.
	AttemptPasses      int
	AdjacencyThreshold time.Duration
	DefaultCutoff      Clock
	AllowSameDayTheory bool
	JointLabSessions   int
	// LabSessionsPerSubject applies to subjects that also have theory or tutorial credit.
	LabSessionsPerSubject int
}

// DefaultConfig mirrors the stock timetable rules.
func DefaultConfig() Config {
	return Config{
		AttemptPasses:         1,
		AdjacencyThreshold:    5 * time.Minute,
		DefaultCutoff:         MustClock("16:30"),
		AllowSameDayTheory:    true,
		JointLabSessions:      3,
		LabSessionsPerSubject: 2,
	}
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver receives placement attempt counts.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithRand sets the shuffling source.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// WithSeed seeds a fresh shuffling source.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.rng = rand.New(rand.NewSource(seed)) }
}

// Engine places every session of a term onto a weekly grid. The shuffling source is not
// goroutine safe, so an Engine serves one run at a time.
type Engine struct {
	grid     *TimeGrid
	cfg      Config
	rng      *rand.Rand
	logger   *zap.Logger
	observer Observer
}

// NewEngine builds an engine over grid. A nil grid uses the stock layout.
func NewEngine(grid *TimeGrid, cfg Config, opts ...Option) *Engine {
	if grid == nil {
		grid = DefaultTimeGrid()
	}
	def := DefaultConfig()
	if cfg.AttemptPasses <= 0 {
		cfg.AttemptPasses = def.AttemptPasses
	}
	if cfg.AdjacencyThreshold <= 0 {
		cfg.AdjacencyThreshold = def.AdjacencyThreshold
	}
	if cfg.DefaultCutoff <= 0 {
		cfg.DefaultCutoff = def.DefaultCutoff
	}
	if cfg.JointLabSessions < 0 {
		cfg.JointLabSessions = 0
	}
	if cfg.LabSessionsPerSubject < 0 {
		cfg.LabSessionsPerSubject = 0
	}
	e := &Engine{
		grid:   grid,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Grid exposes the layout the engine places onto.
func (e *Engine) Grid() *TimeGrid { return e.grid }

// Timetable is a completed term.
type Timetable struct {
	Term    models.TermDescription
	Week    *WeeklyGrid
	Cutoffs Cutoffs
	Phase   Phase
}

type termRun struct {
	*Engine
	term     models.TermDescription
	subjects []subject
	cutoffs  Cutoffs
	week     *WeeklyGrid
	ledger   *Ledger
	cycle    *batchCycle
	phase    Phase
}

// Schedule places one term against ledger. Credits of every subject are checked before anything is
// placed; placements are never rolled back.
func (e *Engine) Schedule(ctx context.Context, term models.TermDescription, ledger *Ledger) (*Timetable, error) {
	if ledger == nil {
		return nil, errors.New("scheduler: nil ledger")
	}

	subjects, err := parseSubjects(term)
	if err != nil {
		return nil, err
	}
	cutoffs, err := ParseCutoffs(term.DayCutoffs, e.cfg.DefaultCutoff)
	if err != nil {
		return nil, fmt.Errorf("term %s: %w", term.Semester, err)
	}

	r := &termRun{
		Engine:   e,
		term:     term,
		subjects: subjects,
		cutoffs:  cutoffs,
		week:     NewWeeklyGrid(),
		ledger:   ledger,
		cycle:    &batchCycle{pairs: e.grid.BatchCycle},
		phase:    PhaseInit,
	}

	steps := []struct {
		done Phase
		run  func(context.Context) error
	}{
		{PhasePurePracticalsPlaced, r.placeJointLabs},
		{PhaseIndividualPracticalsPlaced, r.placeIndividualLabs},
		{PhaseTheoryPlaced, r.placeTheory},
		{PhaseTutorialsPlaced, r.placeTutorials},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			e.logger.Warn("term scheduling stopped",
				zap.String("term", term.Semester),
				zap.String("phase", r.phase.String()),
				zap.Error(err),
			)
			return nil, err
		}
		r.phase = step.done
		e.logger.Debug("phase complete", zap.String("term", term.Semester), zap.String("phase", r.phase.String()))
	}
	r.phase = PhaseDone

	return &Timetable{Term: term, Week: r.week, Cutoffs: cutoffs, Phase: r.phase}, nil
}

// ScheduleAll places terms in order against one ledger. It stops at the first failing term and
// returns the timetables finished before it.
func (e *Engine) ScheduleAll(ctx context.Context, terms []models.TermDescription, ledger *Ledger) ([]*Timetable, error) {
	out := make([]*Timetable, 0, len(terms))
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		tt, err := e.Schedule(ctx, term, ledger)
		if err != nil {
			return out, err
		}
		out = append(out, tt)
	}
	return out, nil
}

func parseSubjects(term models.TermDescription) ([]subject, error) {
	out := make([]subject, 0, len(term.Subjects))
	for _, entry := range term.Subjects {
		name := strings.TrimSpace(entry.Name)
		credits, err := ParseCredits(name, entry.Credits)
		if err != nil {
			return nil, err
		}
		out = append(out, subject{
			name:    name,
			teacher: strings.TrimSpace(entry.Teacher),
			credits: credits,
		})
	}
	return out, nil
}
