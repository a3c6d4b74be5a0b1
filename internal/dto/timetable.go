package dto

import (
	"time"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
)

// GenerateTimetableRequest schedules one or more terms against a shared teacher ledger.
type GenerateTimetableRequest struct {
	Terms              []models.TermDescription        `json:"terms" validate:"required,min=1,dive"`
	Seed               *int64                          `json:"seed"`
	TeacherUnavailable []models.TeacherUnavailableSlot `json:"teacherUnavailable" validate:"omitempty,dive"`
	TimeGrid           *scheduler.GridSpec             `json:"timeGrid"`
	Export             bool                            `json:"export"`
	Format             string                          `json:"format" validate:"omitempty,oneof=xlsx csv pdf"`
}

// TimetableCellView is one occupied cell of a term grid.
type TimetableCellView struct {
	Slot        string              `json:"slot"`
	Label       string              `json:"label"`
	Assignments []models.Assignment `json:"assignments"`
}

// TimetableDayView lists a day's occupied cells in column order.
type TimetableDayView struct {
	Day   string              `json:"day"`
	Cells []TimetableCellView `json:"cells"`
}

// TermTimetableView is the rendered weekly grid of one term.
type TermTimetableView struct {
	ID           string             `json:"id"`
	Semester     string             `json:"semester"`
	Room         string             `json:"room"`
	StudentCount int                `json:"studentCount"`
	TermStart    string             `json:"termStart"`
	TermEnd      string             `json:"termEnd"`
	OutputName   string             `json:"outputName"`
	Phase        string             `json:"phase"`
	Columns      []string           `json:"columns"`
	Days         []TimetableDayView `json:"days"`
}

// TimetableRunResponse is the result of a successful generation run.
type TimetableRunResponse struct {
	RunID      string              `json:"runId"`
	Status     models.RunStatus    `json:"status"`
	Seed       int64               `json:"seed"`
	CreatedAt  time.Time           `json:"createdAt"`
	Timetables []TermTimetableView `json:"timetables"`
	Export     *ExportJobResponse  `json:"export,omitempty"`
}

// CreateExportRequest asks for a run to be rendered to files.
type CreateExportRequest struct {
	Format string `json:"format" validate:"omitempty,oneof=xlsx csv pdf"`
}

// ExportFileLink is a signed download link for one rendered file.
type ExportFileLink struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExportJobResponse reports export progress and, once finished, download links.
type ExportJobResponse struct {
	ID         string              `json:"id"`
	RunID      string              `json:"runId"`
	Format     models.ExportFormat `json:"format"`
	Status     models.ExportStatus `json:"status"`
	Files      []ExportFileLink    `json:"files,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}

// IssueTokenRequest describes an operator-issued API token.
type IssueTokenRequest struct {
	Subject string          `json:"subject" validate:"required"`
	Role    models.UserRole `json:"role" validate:"required,oneof=ADMIN SCHEDULER VIEWER"`
	TTL     time.Duration   `json:"ttl"`
}
