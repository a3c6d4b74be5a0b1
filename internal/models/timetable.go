package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SessionKind is the teaching form of a placed session.
type SessionKind string

const (
	SessionTheory   SessionKind = "THEORY"
	SessionTutorial SessionKind = "TUTORIAL"
	SessionLab      SessionKind = "LAB"
)

// Assignment is one subject occupying a grid cell.
type Assignment struct {
	Subject     string      `json:"subject"`
	Teacher     string      `json:"teacher"`
	Kind        SessionKind `json:"kind"`
	Batches     []string    `json:"batches,omitempty"`
	BatchNumber int         `json:"batchNumber,omitempty"`
	Joint       bool        `json:"joint,omitempty"`
}

// Label renders the assignment the way it appears in exported sheets.
func (a Assignment) Label() string {
	switch {
	case a.Kind == SessionLab && a.Joint:
		return fmt.Sprintf("%s (Lab - Batch %d) - %s", a.Subject, a.BatchNumber, a.Teacher)
	case a.Kind == SessionLab && len(a.Batches) > 0:
		return fmt.Sprintf("%s (Lab) - %s (%s)", a.Subject, a.Teacher, strings.Join(a.Batches, " & "))
	case a.Kind == SessionLab:
		return fmt.Sprintf("%s (Lab) - %s", a.Subject, a.Teacher)
	case a.Kind == SessionTutorial:
		return fmt.Sprintf("%s (Tutorial) - %s", a.Subject, a.Teacher)
	default:
		return fmt.Sprintf("%s (Theory) - %s", a.Subject, a.Teacher)
	}
}

// RunStatus captures the outcome of a generation request.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// TimetableRun groups every term generated against one teacher ledger.
type TimetableRun struct {
	ID        string         `db:"id" json:"id"`
	Status    RunStatus      `db:"status" json:"status"`
	Seed      int64          `db:"seed" json:"seed"`
	TermCount int            `db:"term_count" json:"term_count"`
	Meta      types.JSONText `db:"meta" json:"meta,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// TermTimetable is the persisted header of one term's weekly grid.
type TermTimetable struct {
	ID           string    `db:"id" json:"id"`
	RunID        string    `db:"run_id" json:"run_id"`
	Position     int       `db:"position" json:"position"`
	Semester     string    `db:"semester" json:"semester"`
	RoomNumber   string    `db:"room_number" json:"room_number"`
	StudentCount int       `db:"student_count" json:"student_count"`
	TermStart    string    `db:"term_start" json:"term_start"`
	TermEnd      string    `db:"term_end" json:"term_end"`
	OutputName   string    `db:"output_name" json:"output_name"`
	Phase        string    `db:"phase" json:"phase"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TimetableCell is one assignment in a persisted grid. Joint lab cells produce one row per subject.
type TimetableCell struct {
	ID          string      `db:"id" json:"id"`
	TimetableID string      `db:"timetable_id" json:"timetable_id"`
	Day         int         `db:"day" json:"day"`
	SlotLabel   string      `db:"slot_label" json:"slot_label"`
	Subject     string      `db:"subject" json:"subject"`
	Teacher     string      `db:"teacher" json:"teacher"`
	Kind        SessionKind `db:"kind" json:"kind"`
	Batches     string      `db:"batches" json:"batches"`
	BatchNumber int         `db:"batch_number" json:"batch_number"`
	Joint       bool        `db:"joint" json:"joint"`
	Label       string      `db:"label" json:"label"`
}
