package compiler

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/emiliopalmerini/caseconf/internal/domain"
)

// Column headers of a configuration file. Header case is fixed.
const (
	ColUser      = "User"
	ColCaseNo    = "Case No."
	ColPath      = "Path"
	ColCollapse  = "Collapse"
	ColHighlight = "Highlight"
	ColTop       = "Top"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// IsCSVFile reports whether name has a .csv extension, ignoring case.
func IsCSVFile(name string) bool {
	return name != "" && strings.EqualFold(filepath.Ext(name), ".csv")
}

// ReadCSV reads header-driven rows. Unknown columns are ignored and missing
// columns read as empty cells.
func ReadCSV(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, csvError(err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	cell := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	rows := make([]Row, 0)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		rows = append(rows, Row{
			User:      cell(record, ColUser),
			CaseNo:    cell(record, ColCaseNo),
			Path:      cell(record, ColPath),
			Collapse:  cell(record, ColCollapse),
			Highlight: cell(record, ColHighlight),
			Top:       cell(record, ColTop),
		})
	}
	return rows, nil
}

// CompileCSV reads and compiles a configuration file in one step.
func CompileCSV(r io.Reader) ([]domain.DisplayConfiguration, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return Compile(rows)
}
