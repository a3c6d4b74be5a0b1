package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/pkg/export"
)

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
}

type workbookRenderer interface {
	Render(sheets ...export.Sheet) ([]byte, error)
}

// RenderedFile is one output file of a run export.
type RenderedFile struct {
	Name string
	Data []byte
	// Term is the index of the rendered term, or -1 for a workbook holding every term.
	Term int
}

// TimetableRenderer turns run views into spreadsheet, CSV or PDF files.
type TimetableRenderer struct {
	xlsx workbookRenderer
	csv  sheetRenderer
	pdf  sheetRenderer
}

// NewTimetableRenderer uses the stock exporters for any nil renderer.
func NewTimetableRenderer(xlsx workbookRenderer, csv, pdf sheetRenderer) *TimetableRenderer {
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &TimetableRenderer{xlsx: xlsx, csv: csv, pdf: pdf}
}

// Render produces the files for view. With split unset an xlsx export is a single workbook with one
// sheet per term; otherwise every term gets its own file with a "Timetable" sheet.
func (r *TimetableRenderer) Render(view dto.TimetableRunResponse, format models.ExportFormat, split bool) ([]RenderedFile, error) {
	if len(view.Timetables) == 0 {
		return nil, fmt.Errorf("run %s has no timetables", view.RunID)
	}
	if !format.Valid() {
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	if format == models.ExportFormatXLSX && !split {
		sheets := make([]export.Sheet, len(view.Timetables))
		for i, term := range view.Timetables {
			sheets[i] = TermSheet(term)
		}
		data, err := r.xlsx.Render(sheets...)
		if err != nil {
			return nil, err
		}
		return []RenderedFile{{Name: "timetables.xlsx", Data: data, Term: -1}}, nil
	}

	used := make(map[string]int, len(view.Timetables))
	out := make([]RenderedFile, 0, len(view.Timetables))
	for i, term := range view.Timetables {
		sheet := TermSheet(term)
		var (
			data []byte
			err  error
		)
		switch format {
		case models.ExportFormatXLSX:
			sheet.Name = "Timetable"
			data, err = r.xlsx.Render(sheet)
		case models.ExportFormatCSV:
			data, err = r.csv.Render(sheet)
		case models.ExportFormatPDF:
			data, err = r.pdf.Render(sheet)
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", term.Semester, err)
		}
		out = append(out, RenderedFile{Name: uniqueFilename(term.OutputName, string(format), used), Data: data, Term: i})
	}
	return out, nil
}

func uniqueFilename(base, ext string, used map[string]int) string {
	name := sanitizeFilename(base)
	used[name]++
	if n := used[name]; n > 1 {
		name = fmt.Sprintf("%s_%d", name, n)
	}
	return name + "." + ext
}

func sanitizeFilename(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "timetable"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
