package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/pkg/config"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

type timetableRepository interface {
	CreateRun(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error
	InsertTimetable(ctx context.Context, exec sqlx.ExtContext, tt *models.TermTimetable) error
	InsertCells(ctx context.Context, exec sqlx.ExtContext, cells []models.TimetableCell) error
	FindRun(ctx context.Context, id string) (*models.TimetableRun, error)
	ListByRun(ctx context.Context, runID string) ([]models.TermTimetable, error)
	ListCells(ctx context.Context, timetableID string) ([]models.TimetableCell, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type runCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type runMetrics interface {
	scheduler.Observer
	ObserveRun(status models.RunStatus, duration time.Duration)
}

type queryMetrics interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// TimetableServiceConfig governs generation defaults.
type TimetableServiceConfig struct {
	Scheduler config.SchedulerConfig
	CacheTTL  time.Duration
}

// TimetableService runs the scheduling engine and keeps the resulting runs retrievable.
type TimetableService struct {
	engineCfg scheduler.Config
	seed      int64
	maxTerms  int
	cacheTTL  time.Duration

	repo      timetableRepository
	tx        txProvider
	cache     runCache
	metrics   runMetrics
	validator *validator.Validate
	logger    *zap.Logger
	runs      *runStore
	now       func() time.Time
}

// NewTimetableService wires generation dependencies. repo and tx may be nil when persistence is off.
func NewTimetableService(
	repo timetableRepository,
	tx txProvider,
	cache runCache,
	metrics runMetrics,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) (*TimetableService, error) {
	engineCfg, err := EngineConfig(cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.Scheduler.RunTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TimetableService{
		engineCfg: engineCfg,
		seed:      cfg.Scheduler.Seed,
		maxTerms:  cfg.Scheduler.MaxTerms,
		cacheTTL:  cfg.CacheTTL,
		repo:      repo,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		runs:      newRunStore(ttl),
		now:       time.Now,
	}, nil
}

// EngineConfig converts environment settings into engine rules. Zero values keep the stock rules.
func EngineConfig(cfg config.SchedulerConfig) (scheduler.Config, error) {
	out := scheduler.DefaultConfig()
	if cfg.AttemptPasses > 0 {
		out.AttemptPasses = cfg.AttemptPasses
	}
	if cfg.AdjacencyThreshold > 0 {
		out.AdjacencyThreshold = cfg.AdjacencyThreshold
	}
	if cfg.DefaultCutoff != "" {
		cutoff, err := scheduler.ParseClock(cfg.DefaultCutoff)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("default cutoff: %w", err)
		}
		out.DefaultCutoff = cutoff
	}
	out.AllowSameDayTheory = cfg.AllowSameDayTheory
	if cfg.JointLabSessions > 0 {
		out.JointLabSessions = cfg.JointLabSessions
	}
	if cfg.LabSessionsPerSubject > 0 {
		out.LabSessionsPerSubject = cfg.LabSessionsPerSubject
	}
	return out, nil
}

// ResolveGrid builds the grid for a run. Fields missing from spec fall back to the stock layout.
func ResolveGrid(spec *scheduler.GridSpec) (*scheduler.TimeGrid, error) {
	if spec == nil {
		return scheduler.DefaultTimeGrid(), nil
	}
	return scheduler.NewTimeGrid(spec.Merge(scheduler.DefaultGridSpec()))
}

// BlockUnavailable marks each unavailability window in ledger before any term is placed.
func BlockUnavailable(ledger *scheduler.Ledger, slots []models.TeacherUnavailableSlot) error {
	for _, slot := range slots {
		day, err := scheduler.ParseDay(slot.Day)
		if err != nil {
			return fmt.Errorf("teacher %s: %w", slot.Teacher, err)
		}
		iv, err := scheduler.ParseInterval(slot.TimeRange)
		if err != nil {
			return fmt.Errorf("teacher %s: %w", slot.Teacher, err)
		}
		ledger.Block(slot.Teacher, day, iv)
	}
	return nil
}

// Generate schedules every term of the request in order against one teacher ledger.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableRunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	if s.maxTerms > 0 && len(req.Terms) > s.maxTerms {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d terms may be scheduled per run", s.maxTerms))
	}

	grid, err := ResolveGrid(req.TimeGrid)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time grid")
	}
	ledger := scheduler.NewLedger()
	if err := BlockUnavailable(ledger, req.TeacherUnavailable); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher unavailability")
	}

	seed := s.resolveSeed(req.Seed)
	opts := []scheduler.Option{scheduler.WithSeed(seed), scheduler.WithLogger(s.logger)}
	if s.metrics != nil {
		opts = append(opts, scheduler.WithObserver(s.metrics))
	}
	engine := scheduler.NewEngine(grid, s.engineCfg, opts...)

	started := s.now()
	timetables, err := engine.ScheduleAll(ctx, req.Terms, ledger)
	elapsed := s.now().Sub(started)
	if err != nil {
		s.observeRun(models.RunStatusFailed, elapsed)
		s.logger.Warn("timetable generation failed",
			zap.Int64("seed", seed),
			zap.Int("terms_completed", len(timetables)),
			zap.Error(err),
		)
		return nil, mapSchedulingError(err)
	}
	s.observeRun(models.RunStatusCompleted, elapsed)

	view := dto.TimetableRunResponse{
		RunID:     uuid.NewString(),
		Status:    models.RunStatusCompleted,
		Seed:      seed,
		CreatedAt: s.now().UTC(),
	}
	for _, tt := range timetables {
		view.Timetables = append(view.Timetables, BuildTermView(uuid.NewString(), tt, grid))
	}

	if err := s.persist(ctx, view, timetables, grid); err != nil {
		return nil, err
	}
	s.runs.Save(view)
	s.cacheView(ctx, view)

	s.logger.Info("timetable run generated",
		zap.String("run_id", view.RunID),
		zap.Int64("seed", seed),
		zap.Int("terms", len(view.Timetables)),
		zap.Duration("elapsed", elapsed),
	)
	return &view, nil
}

// Get returns a run from memory, the cache, or the database in that order.
func (s *TimetableService) Get(ctx context.Context, runID string) (*dto.TimetableRunResponse, error) {
	if view, ok := s.runs.Get(runID); ok {
		return &view, nil
	}
	if s.cache != nil {
		var cached dto.TimetableRunResponse
		hit, err := s.cache.Get(ctx, runCacheKey(runID), &cached)
		if err != nil {
			s.logger.Warn("run cache lookup failed", zap.String("run_id", runID), zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}
	if s.repo == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found or expired")
	}

	view, err := s.load(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.cacheView(ctx, *view)
	return view, nil
}

// Sweep drops expired in-memory runs.
func (s *TimetableService) Sweep() int {
	return s.runs.Sweep()
}

func (s *TimetableService) resolveSeed(requested *int64) int64 {
	if requested != nil {
		return *requested
	}
	if s.seed != 0 {
		return s.seed
	}
	return s.now().UnixNano()
}

func (s *TimetableService) persist(ctx context.Context, view dto.TimetableRunResponse, timetables []*scheduler.Timetable, grid *scheduler.TimeGrid) (err error) {
	if s.repo == nil || s.tx == nil {
		return nil
	}
	meta, err := encodeRunMeta(grid)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run metadata")
	}

	defer s.observeQuery("timetable_persist", s.now())
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	run := &models.TimetableRun{
		ID:        view.RunID,
		Status:    view.Status,
		Seed:      view.Seed,
		TermCount: len(view.Timetables),
		Meta:      meta,
		CreatedAt: view.CreatedAt,
	}
	if err = s.repo.CreateRun(ctx, tx, run); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable run")
		return err
	}

	for i, term := range view.Timetables {
		record := &models.TermTimetable{
			ID:           term.ID,
			RunID:        view.RunID,
			Position:     i,
			Semester:     term.Semester,
			RoomNumber:   term.Room,
			StudentCount: term.StudentCount,
			TermStart:    term.TermStart,
			TermEnd:      term.TermEnd,
			OutputName:   term.OutputName,
			Phase:        term.Phase,
			CreatedAt:    view.CreatedAt,
		}
		if err = s.repo.InsertTimetable(ctx, tx, record); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist term timetable")
			return err
		}
		if err = s.repo.InsertCells(ctx, tx, cellRows(term.ID, timetables[i])); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable cells")
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable transaction")
		return err
	}
	return nil
}

func (s *TimetableService) load(ctx context.Context, runID string) (*dto.TimetableRunResponse, error) {
	defer s.observeQuery("timetable_load", s.now())
	run, err := s.repo.FindRun(ctx, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}

	var meta runMeta
	if len(run.Meta) > 0 {
		if err := json.Unmarshal(run.Meta, &meta); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode run metadata")
		}
	}

	terms, err := s.repo.ListByRun(ctx, runID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term timetables")
	}
	view := &dto.TimetableRunResponse{
		RunID:     run.ID,
		Status:    run.Status,
		Seed:      run.Seed,
		CreatedAt: run.CreatedAt,
	}
	for _, term := range terms {
		cells, err := s.repo.ListCells(ctx, term.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable cells")
		}
		view.Timetables = append(view.Timetables, viewFromRows(term, cells, meta))
	}
	return view, nil
}

func (s *TimetableService) cacheView(ctx context.Context, view dto.TimetableRunResponse) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, runCacheKey(view.RunID), view, s.cacheTTL); err != nil {
		s.logger.Warn("run cache write failed", zap.String("run_id", view.RunID), zap.Error(err))
	}
}

func (s *TimetableService) observeRun(status models.RunStatus, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveRun(status, elapsed)
	}
}

func (s *TimetableService) observeQuery(label string, started time.Time) {
	if m, ok := s.metrics.(queryMetrics); ok {
		m.ObserveDBQuery(label, s.now().Sub(started))
	}
}

func runCacheKey(runID string) string {
	return "runs:" + runID
}

// mapSchedulingError converts engine failures into API errors.
func mapSchedulingError(err error) error {
	var credit *scheduler.InvalidCreditFormatError
	var unschedulable *scheduler.UnschedulableSessionError
	switch {
	case errors.As(err, &credit):
		return appErrors.Wrap(err, appErrors.ErrInvalidCreditFormat.Code, appErrors.ErrInvalidCreditFormat.Status, credit.Error())
	case errors.As(err, &unschedulable):
		return appErrors.Wrap(err, appErrors.ErrUnschedulableSession.Code, appErrors.ErrUnschedulableSession.Status, unschedulable.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation cancelled")
	case errors.Is(err, scheduler.ErrCellOccupied), errors.Is(err, appErrors.ErrConflict):
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable placement inconsistency")
	default:
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
}
