package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
)

const runFileVersion = 1

// runFile is the YAML document consumed by generate and validate.
type runFile struct {
	Version            int                             `yaml:"version"`
	Seed               *int64                          `yaml:"seed"`
	TimeGrid           *scheduler.GridSpec             `yaml:"time_grid"`
	TeacherUnavailable []models.TeacherUnavailableSlot `yaml:"teacher_unavailable" validate:"omitempty,dive"`
	Terms              []models.TermDescription        `yaml:"terms" validate:"required,min=1,dive"`
}

func loadRunFile(path string) (*runFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file: %w", err)
	}
	defer f.Close()
	return decodeRunFile(f)
}

func decodeRunFile(r io.Reader) (*runFile, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("run file is empty")
	}

	var rf runFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("decode run file: %w", err)
	}
	if rf.Version == 0 {
		rf.Version = runFileVersion
	}
	if rf.Version != runFileVersion {
		return nil, fmt.Errorf("unsupported run file version %d", rf.Version)
	}
	if err := validator.New().Struct(rf); err != nil {
		return nil, fmt.Errorf("invalid run file: %w", err)
	}
	return &rf, nil
}

// check parses every credit string and day cutoff without running placement.
func (rf *runFile) check() []error {
	var problems []error
	for _, term := range rf.Terms {
		for _, subject := range term.Subjects {
			if _, err := scheduler.ParseCredits(subject.Name, subject.Credits); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", term.Semester, err))
			}
		}
		for day, clock := range term.DayCutoffs {
			if _, err := scheduler.ParseDay(day); err != nil {
				problems = append(problems, fmt.Errorf("%s: cutoff day: %w", term.Semester, err))
			}
			if _, err := scheduler.ParseClock(clock); err != nil {
				problems = append(problems, fmt.Errorf("%s: cutoff %s: %w", term.Semester, day, err))
			}
		}
	}
	return problems
}
