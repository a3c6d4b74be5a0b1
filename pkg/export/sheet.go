package export

import "fmt"

// MetaField is one "key: value" line rendered above the matrix.
type MetaField struct {
	Key   string
	Value string
}

// Sheet is a titled block of metadata followed by a header row and body rows.
type Sheet struct {
	Name    string
	Meta    []MetaField
	Headers []string
	Rows    [][]string
}

func (s Sheet) validate() error {
	if len(s.Headers) == 0 {
		return fmt.Errorf("sheet %q requires at least one header", s.Name)
	}
	for i, row := range s.Rows {
		if len(row) > len(s.Headers) {
			return fmt.Errorf("sheet %q row %d has %d cells for %d headers", s.Name, i, len(row), len(s.Headers))
		}
	}
	return nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
