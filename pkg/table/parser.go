// Package table turns the tab and newline delimited text produced by chart
// models into records.
package table

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Mode tells how the records of a table are represented
type Mode int

const (
	// Raw records are ordered cell sequences, the first line included
	Raw Mode = iota
	// Keyed records map header names to cells, the first line is the header
	Keyed
)

func (m Mode) String() string {
	if m == Keyed {
		return "keyed"
	}
	return "raw"
}

// Record is one parsed row. Exactly one of Fields or Cells is set.
type Record struct {
	Fields map[string]string
	Cells  []string
}

// IsKeyed reports whether the record maps headers to cells
func (r Record) IsKeyed() bool {
	return r.Fields != nil
}

// MarshalJSON encodes keyed records as objects and raw records as arrays
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Fields != nil {
		return json.Marshal(r.Fields)
	}
	if r.Cells == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Cells)
}

// Table is a parse result together with its layout
type Table struct {
	Mode Mode
	// Headers holds the distinct header names in first-seen order. Empty in raw mode.
	Headers []string
	Records []Record
}

// Parse converts model text into records.
//
// Lines are split on '\n' and blank lines dropped. If the first line has
// more than one tab separated column it is the header and every other line
// becomes a keyed record; short rows map missing headers to "", surplus
// cells are dropped and a repeated header keeps the last column's value.
// Otherwise every line, the first included, becomes a raw record.
func Parse(text string) []Record {
	return ParseTable(text).Records
}

// ParseTable is Parse that also reports the mode and header order
func ParseTable(text string) Table {
	rows := nonBlankLines(text)
	if len(rows) == 0 {
		return Table{Mode: Raw, Records: []Record{}}
	}

	headers := strings.Split(rows[0], "\t")
	if len(headers) <= 1 {
		records := make([]Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, Record{Cells: strings.Split(row, "\t")})
		}
		return Table{Mode: Raw, Records: records}
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := strings.Split(row, "\t")
		fields := make(map[string]string, len(headers))
		for j, header := range headers {
			if j < len(cells) {
				fields[header] = cells[j]
			} else {
				fields[header] = ""
			}
		}
		records = append(records, Record{Fields: fields})
	}
	return Table{Mode: Keyed, Headers: uniqueHeaders(headers), Records: records}
}

func nonBlankLines(text string) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	rows := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			rows = append(rows, line)
		}
	}
	return rows
}

func uniqueHeaders(headers []string) []string {
	seen := make(map[string]struct{}, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
