package models

// SubjectEntry is one row of a term's teaching load.
type SubjectEntry struct {
	Name    string `json:"name" yaml:"name" validate:"required"`
	Teacher string `json:"teacher" yaml:"teacher" validate:"required"`
	Credits string `json:"credits" yaml:"credits" validate:"required"`
}

// TermDescription is the complete input for scheduling one term. Dates use dd/mm/yyyy.
type TermDescription struct {
	Semester     string            `json:"semester" yaml:"semester" validate:"required"`
	TermStart    string            `json:"termStart" yaml:"term_start" validate:"required,datetime=02/01/2006"`
	TermEnd      string            `json:"termEnd" yaml:"term_end" validate:"required,datetime=02/01/2006"`
	Room         string            `json:"room" yaml:"room" validate:"required"`
	StudentCount int               `json:"studentCount" yaml:"student_count" validate:"gte=0"`
	Subjects     []SubjectEntry    `json:"subjects" yaml:"subjects" validate:"required,min=1,dive"`
	DayCutoffs   map[string]string `json:"dayCutoffs,omitempty" yaml:"day_cutoffs"`
	OutputDir    string            `json:"outputDir,omitempty" yaml:"output_dir"`
	OutputName   string            `json:"outputName,omitempty" yaml:"output_name"`
}

// FileBase returns the export file name without extension.
func (t TermDescription) FileBase() string {
	if t.OutputName != "" {
		return t.OutputName
	}
	return t.Semester
}

// TeacherUnavailableSlot blocks a teacher for a window on one day before any placement.
type TeacherUnavailableSlot struct {
	Teacher   string `json:"teacher" yaml:"teacher" validate:"required"`
	Day       string `json:"day" yaml:"day" validate:"required"`
	TimeRange string `json:"timeRange" yaml:"time_range" validate:"required"`
}
