package core

// ConformRow pads or truncates r to the table's width.
func ConformRow(t TableName, r Row) Row {
	width := len(schemas[t].columns)
	out := make(Row, width)
	copy(out, r)
	return out
}

// NormalizeRow applies the read-time rules to one row: the row is
// conformed to the table width, date cells are rewritten as YYYY-MM-DD
// (malformed dates become empty) and a project's Paid Status is derived
// from its installments.
func NormalizeRow(t TableName, r Row) Row {
	out := ConformRow(t, r)
	for _, col := range schemas[t].dates {
		i := t.ColumnIndex(col)
		d, _ := ParseDate(out[i])
		out[i] = d.String()
	}
	if t == Projects {
		p := ProjectFromRow(out)
		out[t.ColumnIndex(ColPaidStatus)] = p.PaidStatus()
	}
	return out
}

// NormalizeRows applies NormalizeRow to every row.
func NormalizeRows(t TableName, rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = NormalizeRow(t, r)
	}
	return out
}

// ConformByHeader maps rows read under an arbitrary header onto the
// canonical columns by name. Missing columns are empty; unknown columns
// are dropped. A nil or canonical header only conforms the width.
func ConformByHeader(t TableName, header []string, rows []Row) []Row {
	cols := schemas[t].columns
	if len(header) == 0 || equalHeader(header, cols) {
		out := make([]Row, len(rows))
		for i, r := range rows {
			out[i] = ConformRow(t, r)
		}
		return out
	}
	src := make([]int, len(cols))
	for i, c := range cols {
		src[i] = -1
		for j, h := range header {
			if h == c {
				src[i] = j
				break
			}
		}
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		row := make(Row, len(cols))
		for k, j := range src {
			if j >= 0 && j < len(r) {
				row[k] = r[j]
			}
		}
		out[i] = row
	}
	return out
}

func equalHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
