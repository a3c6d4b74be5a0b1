package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// TimetableRepository persists generation runs with their term grids and cells.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateRun inserts the run header.
func (r *TimetableRepository) CreateRun(ctx context.Context, exec sqlx.ExtContext, run *models.TimetableRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if len(run.Meta) == 0 {
		run.Meta = types.JSONText(`{}`)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO timetable_runs (id, status, seed, term_count, meta, created_at)
VALUES (:id, :status, :seed, :term_count, :meta, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, run); err != nil {
		return fmt.Errorf("insert timetable run: %w", err)
	}
	return nil
}

// InsertTimetable inserts one term header belonging to a run.
func (r *TimetableRepository) InsertTimetable(ctx context.Context, exec sqlx.ExtContext, tt *models.TermTimetable) error {
	if tt == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if tt.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	if tt.ID == "" {
		tt.ID = uuid.NewString()
	}
	if tt.CreatedAt.IsZero() {
		tt.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO term_timetables (id, run_id, position, semester, room_number, student_count, term_start, term_end, output_name, phase, created_at)
VALUES (:id, :run_id, :position, :semester, :room_number, :student_count, :term_start, :term_end, :output_name, :phase, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, tt); err != nil {
		return fmt.Errorf("insert term timetable: %w", err)
	}
	return nil
}

// InsertCells inserts the cells of one term grid.
func (r *TimetableRepository) InsertCells(ctx context.Context, exec sqlx.ExtContext, cells []models.TimetableCell) error {
	if len(cells) == 0 {
		return nil
	}
	target := r.exec(exec)

	const query = `
INSERT INTO timetable_cells (id, timetable_id, day, slot_label, subject, teacher, kind, batches, batch_number, joint, label)
VALUES (:id, :timetable_id, :day, :slot_label, :subject, :teacher, :kind, :batches, :batch_number, :joint, :label)`
	for i := range cells {
		cell := &cells[i]
		if cell.ID == "" {
			cell.ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, cell); err != nil {
			return fmt.Errorf("insert timetable cell: %w", err)
		}
	}
	return nil
}

// FindRun loads a run by id. It returns sql.ErrNoRows when absent.
func (r *TimetableRepository) FindRun(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT id, status, seed, term_count, meta, created_at FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListByRun returns a run's term headers in input order.
func (r *TimetableRepository) ListByRun(ctx context.Context, runID string) ([]models.TermTimetable, error) {
	const query = `SELECT id, run_id, position, semester, room_number, student_count, term_start, term_end, output_name, phase, created_at
FROM term_timetables WHERE run_id = $1 ORDER BY position ASC`
	var out []models.TermTimetable
	if err := r.db.SelectContext(ctx, &out, query, runID); err != nil {
		return nil, fmt.Errorf("list term timetables: %w", err)
	}
	return out, nil
}

// ListCells returns a term grid's cells ordered by day and slot.
func (r *TimetableRepository) ListCells(ctx context.Context, timetableID string) ([]models.TimetableCell, error) {
	const query = `SELECT id, timetable_id, day, slot_label, subject, teacher, kind, batches, batch_number, joint, label
FROM timetable_cells WHERE timetable_id = $1 ORDER BY day ASC, slot_label ASC`
	var out []models.TimetableCell
	if err := r.db.SelectContext(ctx, &out, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable cells: %w", err)
	}
	return out, nil
}
