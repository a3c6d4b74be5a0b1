package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/pkg/config"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
)

func sampleTerm(semester, mathTeacher string) models.TermDescription {
	return models.TermDescription{
		Semester:     semester,
		TermStart:    "01/08/2024",
		TermEnd:      "30/11/2024",
		Room:         "B-204",
		StudentCount: 60,
		Subjects: []models.SubjectEntry{
			{Name: "Math", Teacher: mathTeacher, Credits: "3:1:0"},
			{Name: "Chem", Teacher: "T3", Credits: "1:0:1"},
		},
	}
}

func seedPtr(v int64) *int64 { return &v }

func newTimetableServiceFixture(t *testing.T, repo timetableRepository, tx txProvider, cache runCache, metrics runMetrics) *TimetableService {
	t.Helper()
	svc, err := NewTimetableService(repo, tx, cache, metrics, nil, zap.NewNop(), TimetableServiceConfig{
		Scheduler: config.SchedulerConfig{
			AttemptPasses:      1,
			AdjacencyThreshold: 5 * time.Minute,
			DefaultCutoff:      "16:30",
			AllowSameDayTheory: true,
			JointLabSessions:   3,
			MaxTerms:           4,
			RunTTL:             time.Hour,
		},
	})
	require.NoError(t, err)
	return svc
}

func TestTimetableServiceGenerateAndGet(t *testing.T) {
	metrics := &runMetricsStub{}
	svc := newTimetableServiceFixture(t, nil, nil, nil, metrics)

	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Terms: []models.TermDescription{sampleTerm("Semester 3", "T1"), sampleTerm("Semester 5", "T4")},
		Seed:  seedPtr(7),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, resp.Status)
	assert.Equal(t, int64(7), resp.Seed)
	require.Len(t, resp.Timetables, 2)

	first := resp.Timetables[0]
	assert.Equal(t, "DONE", first.Phase)
	assert.Len(t, first.Days, 6)
	assert.Equal(t, "9:00-9:55", first.Columns[0])
	assert.Contains(t, first.Columns, "12:00-13:50")

	theory := 0
	for _, day := range first.Days {
		for _, cell := range day.Cells {
			if cell.Label == "Math (Theory) - T1" {
				theory++
			}
		}
	}
	assert.Equal(t, 3, theory)

	got, err := svc.Get(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, got.RunID)

	assert.Equal(t, []models.RunStatus{models.RunStatusCompleted}, metrics.runs)
	assert.NotZero(t, metrics.placements)
}

func TestTimetableServiceSeedReproducible(t *testing.T) {
	svc := newTimetableServiceFixture(t, nil, nil, nil, nil)
	req := dto.GenerateTimetableRequest{Terms: []models.TermDescription{sampleTerm("Semester 3", "T1")}, Seed: seedPtr(99)}

	a, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	b, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.Timetables[0].Days, b.Timetables[0].Days)
}

func TestTimetableServiceValidation(t *testing.T) {
	svc := newTimetableServiceFixture(t, nil, nil, nil, nil)

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	term := sampleTerm("Semester 3", "T1")
	term.TermStart = "2024-08-01"
	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{Terms: []models.TermDescription{term}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	terms := make([]models.TermDescription, 5)
	for i := range terms {
		terms[i] = sampleTerm("Semester", "T1")
	}
	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{Terms: terms})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at most 4 terms")
}

func TestTimetableServiceMapsInvalidCredits(t *testing.T) {
	metrics := &runMetricsStub{}
	svc := newTimetableServiceFixture(t, nil, nil, nil, metrics)
	term := sampleTerm("Semester 3", "T1")
	term.Subjects[1].Credits = "1:x:1"

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{Terms: []models.TermDescription{term}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCreditFormat.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrInvalidCreditFormat.Status, appErr.Status)

	var credit *scheduler.InvalidCreditFormatError
	assert.True(t, errors.As(err, &credit))
	assert.Equal(t, "Chem", credit.Subject)
	assert.Equal(t, []models.RunStatus{models.RunStatusFailed}, metrics.runs)
}

func TestTimetableServiceMapsUnschedulable(t *testing.T) {
	svc := newTimetableServiceFixture(t, nil, nil, nil, nil)
	heavy := func(semester string) models.TermDescription {
		return models.TermDescription{
			Semester: semester, TermStart: "01/08/2024", TermEnd: "30/11/2024", Room: "R1",
			Subjects: []models.SubjectEntry{{Name: "Algo", Teacher: "Shared", Credits: "14:0:0"}},
		}
	}

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Terms: []models.TermDescription{heavy("A"), heavy("B")},
		Seed:  seedPtr(1),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnschedulableSession.Code, appErrors.FromError(err).Code)
	assert.True(t, errors.Is(err, appErrors.ErrUnschedulableSession))
}

func TestTimetableServiceBlocksTeacherUnavailability(t *testing.T) {
	svc := newTimetableServiceFixture(t, nil, nil, nil, nil)
	var blocked []models.TeacherUnavailableSlot
	for _, d := range []string{"Monday", "Tuesday", "Wednesday"} {
		blocked = append(blocked, models.TeacherUnavailableSlot{Teacher: "T1", Day: d, TimeRange: "08:00-18:00"})
	}

	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Terms:              []models.TermDescription{sampleTerm("Semester 3", "T1")},
		TeacherUnavailable: blocked,
		Seed:               seedPtr(3),
	})
	require.NoError(t, err)
	for _, day := range resp.Timetables[0].Days[:3] {
		for _, cell := range day.Cells {
			for _, a := range cell.Assignments {
				assert.NotEqual(t, "T1", a.Teacher, "T1 placed on blocked %s", day.Day)
			}
		}
	}

	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Terms:              []models.TermDescription{sampleTerm("Semester 3", "T1")},
		TeacherUnavailable: []models.TeacherUnavailableSlot{{Teacher: "T1", Day: "Funday", TimeRange: "9:00-10:00"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBlockUnavailableKeepsNeighbouringSlots(t *testing.T) {
	ledger := scheduler.NewLedger()
	err := BlockUnavailable(ledger, []models.TeacherUnavailableSlot{
		{Teacher: "T1", Day: "Monday", TimeRange: "12:55-13:45"},
		{Teacher: "T1", Day: "monday", TimeRange: "13:45-14:40"},
	})
	require.NoError(t, err)

	assert.True(t, ledger.IsFree("T1", scheduler.Monday, scheduler.Interval{Start: scheduler.MustClock("12:00"), End: scheduler.MustClock("12:55")}))
	assert.True(t, ledger.IsFree("T1", scheduler.Monday, scheduler.Interval{Start: scheduler.MustClock("14:40"), End: scheduler.MustClock("15:35")}))
	assert.False(t, ledger.IsFree("T1", scheduler.Monday, scheduler.Interval{Start: scheduler.MustClock("13:45"), End: scheduler.MustClock("14:40")}))
	assert.Len(t, ledger.Blocked("T1", scheduler.Monday), 2)
}

func TestTimetableServiceGridOverride(t *testing.T) {
	svc := newTimetableServiceFixture(t, nil, nil, nil, nil)

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Terms:    []models.TermDescription{sampleTerm("Semester 3", "T1")},
		TimeGrid: &scheduler.GridSpec{Slots: []string{"9:00-10:00", "9:30-10:30"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServicePersistsInTransaction(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := newTimetableRepoStub()
	svc := newTimetableServiceFixture(t, repo, tx, nil, nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Terms: []models.TermDescription{sampleTerm("Semester 3", "T1")},
		Seed:  seedPtr(5),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Contains(t, repo.runs, resp.RunID)
	assert.Equal(t, 1, repo.runs[resp.RunID].TermCount)
	termID := resp.Timetables[0].ID
	require.Len(t, repo.terms[resp.RunID], 1)
	assert.Equal(t, "DONE", repo.terms[resp.RunID][0].Phase)
	assert.NotEmpty(t, repo.cells[termID])
	for _, cell := range repo.cells[termID] {
		assert.Equal(t, termID, cell.TimetableID)
	}
}

func TestTimetableServiceRollsBackOnFailure(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	repo := newTimetableRepoStub()
	repo.cellErr = errors.New("disk full")
	svc := newTimetableServiceFixture(t, repo, tx, nil, nil)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Terms: []models.TermDescription{sampleTerm("Semester 3", "T1")},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGetLoadsFromRepository(t *testing.T) {
	repo := newTimetableRepoStub()
	repo.runs["run-1"] = &models.TimetableRun{
		ID: "run-1", Status: models.RunStatusCompleted, Seed: 11, TermCount: 1,
		Meta: types.JSONText(`{"columns":["9:00-9:55","12:00-13:50"],"days":["Monday","Tuesday"]}`),
	}
	repo.terms["run-1"] = []models.TermTimetable{{ID: "tt-1", RunID: "run-1", Semester: "Semester 3", RoomNumber: "B-204", Phase: "DONE"}}
	repo.cells["tt-1"] = []models.TimetableCell{
		{TimetableID: "tt-1", Day: 2, SlotLabel: "12:00-13:50", Subject: "Physics", Teacher: "T2", Kind: models.SessionLab, BatchNumber: 1, Joint: true, Label: "Physics (Lab - Batch 1) - T2"},
		{TimetableID: "tt-1", Day: 2, SlotLabel: "12:00-13:50", Subject: "Physics", Teacher: "T2", Kind: models.SessionLab, BatchNumber: 2, Joint: true, Label: "Physics (Lab - Batch 2) - T2"},
		{TimetableID: "tt-1", Day: 1, SlotLabel: "9:00-9:55", Subject: "Math", Teacher: "T1", Kind: models.SessionTheory, Label: "Math (Theory) - T1"},
	}
	cache := newRunCacheStub()
	svc := newTimetableServiceFixture(t, repo, nil, cache, nil)

	view, err := svc.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, view.Timetables, 1)
	term := view.Timetables[0]
	require.Len(t, term.Days, 2)
	assert.Equal(t, "Math (Theory) - T1", term.Days[0].Cells[0].Label)
	require.Len(t, term.Days[1].Cells, 1)
	assert.Equal(t, "Physics (Lab - Batch 1) - T2\nPhysics (Lab - Batch 2) - T2", term.Days[1].Cells[0].Label)
	assert.Len(t, term.Days[1].Cells[0].Assignments, 2)
	assert.Contains(t, cache.items, "runs:run-1")

	_, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGetUsesCache(t *testing.T) {
	cache := newRunCacheStub()
	cache.items["runs:cached"] = dto.TimetableRunResponse{RunID: "cached", Seed: 4}
	svc := newTimetableServiceFixture(t, nil, nil, cache, nil)

	view, err := svc.Get(context.Background(), "cached")
	require.NoError(t, err)
	assert.Equal(t, int64(4), view.Seed)

	_, err = svc.Get(context.Background(), "absent")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEngineConfigOverrides(t *testing.T) {
	cfg, err := EngineConfig(config.SchedulerConfig{AttemptPasses: 3, DefaultCutoff: "15:35", JointLabSessions: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.AttemptPasses)
	assert.Equal(t, scheduler.MustClock("15:35"), cfg.DefaultCutoff)
	assert.Equal(t, 2, cfg.JointLabSessions)
	assert.Equal(t, 2, cfg.LabSessionsPerSubject)
	assert.False(t, cfg.AllowSameDayTheory)

	_, err = EngineConfig(config.SchedulerConfig{DefaultCutoff: "noon"})
	assert.Error(t, err)
}

// --- Fixtures ---

type runMetricsStub struct {
	runs       []models.RunStatus
	placements int
}

func (m *runMetricsStub) ObserveRun(status models.RunStatus, _ time.Duration) {
	m.runs = append(m.runs, status)
}

func (m *runMetricsStub) ObservePlacement(models.SessionKind, int, bool) {
	m.placements++
}

type timetableRepoStub struct {
	runs    map[string]*models.TimetableRun
	terms   map[string][]models.TermTimetable
	cells   map[string][]models.TimetableCell
	cellErr error
}

func newTimetableRepoStub() *timetableRepoStub {
	return &timetableRepoStub{
		runs:  make(map[string]*models.TimetableRun),
		terms: make(map[string][]models.TermTimetable),
		cells: make(map[string][]models.TimetableCell),
	}
}

func (r *timetableRepoStub) CreateRun(_ context.Context, _ sqlx.ExtContext, run *models.TimetableRun) error {
	stored := *run
	r.runs[run.ID] = &stored
	return nil
}

func (r *timetableRepoStub) InsertTimetable(_ context.Context, _ sqlx.ExtContext, tt *models.TermTimetable) error {
	r.terms[tt.RunID] = append(r.terms[tt.RunID], *tt)
	return nil
}

func (r *timetableRepoStub) InsertCells(_ context.Context, _ sqlx.ExtContext, cells []models.TimetableCell) error {
	if r.cellErr != nil {
		return r.cellErr
	}
	for _, c := range cells {
		r.cells[c.TimetableID] = append(r.cells[c.TimetableID], c)
	}
	return nil
}

func (r *timetableRepoStub) FindRun(_ context.Context, id string) (*models.TimetableRun, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return run, nil
}

func (r *timetableRepoStub) ListByRun(_ context.Context, runID string) ([]models.TermTimetable, error) {
	return r.terms[runID], nil
}

func (r *timetableRepoStub) ListCells(_ context.Context, timetableID string) ([]models.TimetableCell, error) {
	return r.cells[timetableID], nil
}

type runCacheStub struct {
	items map[string]dto.TimetableRunResponse
}

func newRunCacheStub() *runCacheStub {
	return &runCacheStub{items: make(map[string]dto.TimetableRunResponse)}
}

func (c *runCacheStub) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	item, ok := c.items[key]
	if !ok {
		return false, nil
	}
	*(dest.(*dto.TimetableRunResponse)) = item
	return true, nil
}

func (c *runCacheStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.items[key] = value.(dto.TimetableRunResponse)
	return nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
