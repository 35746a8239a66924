package google

import (
	"fmt"
	"strings"

	"ledger/internal/core"
)

// rowsFromValues converts a values matrix (as returned by the Sheets API)
// into canonical rows. The first row is the header; columns are matched by
// name, case-insensitively. Rows that are entirely blank are dropped since
// the API returns trailing empty rows after edits.
func rowsFromValues(t core.TableName, values [][]any) []core.Row {
	if len(values) == 0 {
		return []core.Row{}
	}
	headers := toStrings(values[0])
	cols := t.Columns()
	src := make([]int, len(cols))
	for i, c := range cols {
		src[i] = indexOf(headers, c)
	}

	out := []core.Row{}
	for _, raw := range values[1:] {
		cells := toStrings(raw)
		row := make(core.Row, len(cols))
		blank := true
		for i, j := range src {
			row[i] = safeGet(cells, j)
			if row[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		out = append(out, core.NormalizeRow(t, row))
	}
	return out
}

// cleanRows trims every cell and removes rows whose cells are all empty,
// matching what rowsFromValues reads back. It always returns a non-nil
// slice.
func cleanRows(rows []core.Row) []core.Row {
	out := make([]core.Row, 0, len(rows))
	for _, r := range rows {
		row := make(core.Row, len(r))
		blank := true
		for i, c := range r {
			row[i] = strings.TrimSpace(c)
			if row[i] != "" {
				blank = false
			}
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out
}
