package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/pkg/export"
)

// runMeta is stored with a persisted run so its grid layout can be rebuilt without the engine.
type runMeta struct {
	Columns []string `json:"columns"`
	Days    []string `json:"days"`
}

func gridColumns(grid *scheduler.TimeGrid) []string {
	cols := grid.Columns()
	out := make([]string, len(cols))
	for i, slot := range cols {
		out[i] = slot.Label
	}
	return out
}

func gridDays(grid *scheduler.TimeGrid) []string {
	out := make([]string, len(grid.Days))
	for i, d := range grid.Days {
		out[i] = d.String()
	}
	return out
}

// BuildTermView renders a scheduled term into its response form.
func BuildTermView(id string, tt *scheduler.Timetable, grid *scheduler.TimeGrid) dto.TermTimetableView {
	view := dto.TermTimetableView{
		ID:           id,
		Semester:     tt.Term.Semester,
		Room:         tt.Term.Room,
		StudentCount: tt.Term.StudentCount,
		TermStart:    tt.Term.TermStart,
		TermEnd:      tt.Term.TermEnd,
		OutputName:   tt.Term.FileBase(),
		Phase:        tt.Phase.String(),
		Columns:      gridColumns(grid),
	}
	byDay := make(map[scheduler.Day][]dto.TimetableCellView, len(grid.Days))
	for _, cell := range tt.Week.Cells() {
		byDay[cell.Day] = append(byDay[cell.Day], dto.TimetableCellView{
			Slot:        cell.Slot.Label,
			Label:       cell.Label(),
			Assignments: cell.Assignments,
		})
	}
	for _, d := range grid.Days {
		view.Days = append(view.Days, dto.TimetableDayView{Day: d.String(), Cells: byDay[d]})
	}
	return view
}

// TermSheet lays a term view out as metadata followed by the day by slot matrix.
func TermSheet(view dto.TermTimetableView) export.Sheet {
	sheet := export.Sheet{
		Name: view.Semester,
		Meta: []export.MetaField{
			{Key: "Semester", Value: view.Semester},
			{Key: "Room Number", Value: view.Room},
			{Key: "Number of Students", Value: strconv.Itoa(view.StudentCount)},
			{Key: "Term Start", Value: view.TermStart},
			{Key: "Term End", Value: view.TermEnd},
		},
		Headers: append([]string{"Day"}, view.Columns...),
	}
	index := make(map[string]int, len(view.Columns))
	for i, col := range view.Columns {
		index[col] = i + 1
	}
	for _, day := range view.Days {
		row := make([]string, len(sheet.Headers))
		row[0] = day.Day
		for _, cell := range day.Cells {
			if i, ok := index[cell.Slot]; ok {
				row[i] = cell.Label
			}
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

func encodeRunMeta(grid *scheduler.TimeGrid) (types.JSONText, error) {
	data, err := json.Marshal(runMeta{Columns: gridColumns(grid), Days: gridDays(grid)})
	if err != nil {
		return nil, fmt.Errorf("encode run meta: %w", err)
	}
	return types.JSONText(data), nil
}

// cellRows flattens a term grid into one row per assignment.
func cellRows(timetableID string, tt *scheduler.Timetable) []models.TimetableCell {
	var rows []models.TimetableCell
	for _, cell := range tt.Week.Cells() {
		for _, a := range cell.Assignments {
			rows = append(rows, models.TimetableCell{
				TimetableID: timetableID,
				Day:         int(cell.Day),
				SlotLabel:   cell.Slot.Label,
				Subject:     a.Subject,
				Teacher:     a.Teacher,
				Kind:        a.Kind,
				Batches:     strings.Join(a.Batches, ","),
				BatchNumber: a.BatchNumber,
				Joint:       a.Joint,
				Label:       a.Label(),
			})
		}
	}
	return rows
}

// viewFromRows rebuilds a term view from persisted rows. Rows sharing a day and slot form one cell.
func viewFromRows(term models.TermTimetable, rows []models.TimetableCell, meta runMeta) dto.TermTimetableView {
	view := dto.TermTimetableView{
		ID:           term.ID,
		Semester:     term.Semester,
		Room:         term.RoomNumber,
		StudentCount: term.StudentCount,
		TermStart:    term.TermStart,
		TermEnd:      term.TermEnd,
		OutputName:   term.OutputName,
		Phase:        term.Phase,
		Columns:      meta.Columns,
	}
	order := make(map[string]int, len(meta.Columns))
	for i, col := range meta.Columns {
		order[col] = i
	}

	type key struct {
		day  int
		slot string
	}
	cells := make(map[key]*dto.TimetableCellView)
	byDay := make(map[int][]key)
	for _, row := range rows {
		k := key{day: row.Day, slot: row.SlotLabel}
		cell, ok := cells[k]
		if !ok {
			cell = &dto.TimetableCellView{Slot: row.SlotLabel}
			cells[k] = cell
			byDay[row.Day] = append(byDay[row.Day], k)
		}
		var batches []string
		if row.Batches != "" {
			batches = strings.Split(row.Batches, ",")
		}
		cell.Assignments = append(cell.Assignments, models.Assignment{
			Subject:     row.Subject,
			Teacher:     row.Teacher,
			Kind:        row.Kind,
			Batches:     batches,
			BatchNumber: row.BatchNumber,
			Joint:       row.Joint,
		})
		if cell.Label == "" {
			cell.Label = row.Label
		} else {
			cell.Label += "\n" + row.Label
		}
	}

	for _, name := range meta.Days {
		d, err := scheduler.ParseDay(name)
		if err != nil {
			continue
		}
		keys := byDay[int(d)]
		sort.Slice(keys, func(a, b int) bool { return order[keys[a].slot] < order[keys[b].slot] })
		day := dto.TimetableDayView{Day: d.String()}
		for _, k := range keys {
			day.Cells = append(day.Cells, *cells[k])
		}
		view.Days = append(view.Days, day)
	}
	return view
}
