package table

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes a parsed table as CSV. Keyed tables get a header line
// built from the distinct header names; raw tables are written row by row
// with their own cell counts.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)

	if t.Mode == Keyed {
		if err := cw.Write(t.Headers); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		row := make([]string, len(t.Headers))
		for i, rec := range t.Records {
			for j, h := range t.Headers {
				row[j] = rec.Fields[h]
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row %d: %w", i, err)
			}
		}
	} else {
		for i, rec := range t.Records {
			if err := cw.Write(rec.Cells); err != nil {
				return fmt.Errorf("failed to write csv row %d: %w", i, err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
