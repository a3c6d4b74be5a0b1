package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportFormat enumerates supported timetable file formats.
type ExportFormat string

const (
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
)

// Valid reports whether f is a known format.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatXLSX, ExportFormatCSV, ExportFormatPDF:
		return true
	}
	return false
}

// ExportStatus captures background export lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob tracks rendering a run's timetables to files.
type ExportJob struct {
	ID           string       `db:"id" json:"id"`
	RunID        string       `db:"run_id" json:"run_id"`
	Format       ExportFormat `db:"format" json:"format"`
	Status       ExportStatus `db:"status" json:"status"`
	Files        ExportFiles  `db:"file_paths" json:"files"`
	ErrorMessage *string      `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}

// ExportFiles is the list of stored file names, persisted as JSONB.
type ExportFiles []string

// Value marshals the list to JSON for persistence.
func (f ExportFiles) Value() (driver.Value, error) {
	if f == nil {
		f = ExportFiles{}
	}
	data, err := json.Marshal([]string(f))
	if err != nil {
		return nil, fmt.Errorf("marshal export files: %w", err)
	}
	return data, nil
}

// Scan unmarshals a JSON array of file names.
func (f *ExportFiles) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportFiles", value)
	}
	if len(data) == 0 {
		*f = nil
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("unmarshal export files: %w", err)
	}
	*f = names
	return nil
}
