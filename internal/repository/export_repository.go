package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-engine/internal/models"
)

// ExportRepository persists export job state.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// Create inserts a queued export job.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job == nil {
		return fmt.Errorf("export job payload is nil")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO timetable_exports (id, run_id, format, status, file_paths, created_at)
VALUES (:id, :run_id, :format, :status, :file_paths, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("insert export job: %w", err)
	}
	return nil
}

// UpdateStatus moves a job to status, recording files, error message and finish time.
func (r *ExportRepository) UpdateStatus(ctx context.Context, id string, status models.ExportStatus, files models.ExportFiles, errMsg *string, finishedAt *time.Time) error {
	const query = `UPDATE timetable_exports SET status = $1, file_paths = $2, error = $3, finished_at = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, status, files, errMsg, finishedAt, id)
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("export job rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID loads an export job.
func (r *ExportRepository) FindByID(ctx context.Context, id string) (*models.ExportJob, error) {
	const query = `SELECT id, run_id, format, status, file_paths, error, created_at, finished_at FROM timetable_exports WHERE id = $1`
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}
