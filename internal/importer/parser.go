package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is a parsed delimited file. Rows may be shorter than Headers.
// Lines[i] is the physical 1-indexed line Rows[i] starts on.
type Table struct {
	Headers []string
	Rows    [][]string
	Lines   []int
}

// Line returns the file line of data row i, falling back to header + i when unknown.
func (t *Table) Line(i int) int {
	if i >= 0 && i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// Cell returns row[idx], or "" when the row is too short.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Parse reads comma separated text. The first non-blank record is the header row.
// Quoted fields may hold delimiters, newlines and doubled quotes; an unterminated
// quoted field fails the whole parse.
func Parse(data []byte) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	table := &Table{Headers: []string{}, Rows: [][]string{}, Lines: []int{}}
	if len(bytes.TrimSpace(data)) == 0 {
		return table, nil
	}
	if line, ok := unterminatedQuote(data); ok {
		return nil, &appErr.ParseError{Line: line, Msg: "unterminated quoted field"}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &appErr.ParseError{Line: pe.Line, Msg: pe.Err.Error()}
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlankRecord(record) {
			continue
		}
		if len(table.Headers) == 0 {
			headers := make([]string, len(record))
			for i, h := range record {
				headers[i] = strings.TrimSpace(h)
			}
			table.Headers = headers
			continue
		}
		line, _ := reader.FieldPos(0)
		table.Rows = append(table.Rows, record)
		table.Lines = append(table.Lines, line)
	}
	return table, nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// unterminatedQuote scans with the same lazy quoting rules the csv reader is
// configured with and returns the 1-indexed line of a quoted field that never closes.
func unterminatedQuote(data []byte) (int, bool) {
	line := 1
	openLine := 0
	inQuotes := false
	fieldStart := true
	for i := 0; i < len(data); i++ {
		ch := data[i]
		if inQuotes {
			switch ch {
			case '\n':
				line++
			case '"':
				if i+1 < len(data) && data[i+1] == '"' {
					i++
					continue
				}
				if i+1 == len(data) || data[i+1] == ',' || data[i+1] == '\n' || data[i+1] == '\r' {
					inQuotes = false
				}
			}
			continue
		}
		switch ch {
		case '"':
			if fieldStart {
				inQuotes = true
				openLine = line
			}
			fieldStart = false
		case ',':
			fieldStart = true
		case '\n':
			line++
			fieldStart = true
		case '\r':
		default:
			fieldStart = false
		}
	}
	return openLine, inQuotes
}
