package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxColumnWidth = 20
	xlsxRowHeight   = 30
)

// XLSXExporter renders sheets into a workbook, one worksheet per Sheet.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render lays out each sheet as metadata rows, one blank row, then the matrix.
func (e *XLSXExporter) Render(sheets ...Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one sheet")
	}
	book := excelize.NewFile()
	defer book.Close()

	wrap, err := book.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create xlsx style: %w", err)
	}

	defaultSheet := book.GetSheetName(0)
	used := make(map[string]int, len(sheets))
	for i, sheet := range sheets {
		if err := sheet.validate(); err != nil {
			return nil, err
		}
		name := sheetName(sheet.Name, i, used)
		if i == 0 {
			if err := book.SetSheetName(defaultSheet, name); err != nil {
				return nil, fmt.Errorf("rename xlsx sheet: %w", err)
			}
		} else if _, err := book.NewSheet(name); err != nil {
			return nil, fmt.Errorf("add xlsx sheet: %w", err)
		}
		if err := writeSheet(book, name, sheet, wrap); err != nil {
			return nil, err
		}
	}

	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(book *excelize.File, name string, sheet Sheet, style int) error {
	row := 1
	for _, field := range sheet.Meta {
		if err := book.SetSheetRow(name, cellName(1, row), &[]interface{}{field.Key, field.Value}); err != nil {
			return fmt.Errorf("write xlsx meta: %w", err)
		}
		row++
	}
	if len(sheet.Meta) > 0 {
		row++
	}

	header := make([]interface{}, len(sheet.Headers))
	for i, h := range sheet.Headers {
		header[i] = h
	}
	if err := book.SetSheetRow(name, cellName(1, row), &header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	first := row
	row++

	for _, values := range sheet.Rows {
		record := make([]interface{}, len(sheet.Headers))
		for i := range sheet.Headers {
			record[i] = cellAt(values, i)
		}
		if err := book.SetSheetRow(name, cellName(1, row), &record); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
		if err := book.SetRowHeight(name, row, xlsxRowHeight); err != nil {
			return fmt.Errorf("size xlsx row: %w", err)
		}
		row++
	}

	lastCol, err := excelize.ColumnNumberToName(len(sheet.Headers))
	if err != nil {
		return fmt.Errorf("resolve xlsx column: %w", err)
	}
	if err := book.SetColWidth(name, "A", lastCol, xlsxColumnWidth); err != nil {
		return fmt.Errorf("size xlsx columns: %w", err)
	}
	if err := book.SetCellStyle(name, cellName(1, first), cellName(len(sheet.Headers), row-1), style); err != nil {
		return fmt.Errorf("style xlsx matrix: %w", err)
	}
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

var sheetNameReplacer = strings.NewReplacer(":", "-", "\\", "-", "/", "-", "?", "", "*", "", "[", "(", "]", ")")

// sheetName applies the 31 character limit and keeps names unique.
func sheetName(raw string, index int, used map[string]int) string {
	name := strings.TrimSpace(sheetNameReplacer.Replace(raw))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", index+1)
	}
	if len(name) > 31 {
		name = name[:31]
	}
	if n, ok := used[name]; ok {
		used[name] = n + 1
		suffix := fmt.Sprintf(" (%d)", n+1)
		if len(name)+len(suffix) > 31 {
			name = name[:31-len(suffix)]
		}
		name += suffix
	}
	used[name]++
	return name
}
