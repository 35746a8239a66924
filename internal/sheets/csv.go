package sheets

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"

	"ledger/internal/core"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodeCSV writes the header followed by rows.
func EncodeCSV(columns []string, rows []core.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		if err := w.Write(r); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCSV reads a header row and the records after it. A leading UTF-8
// BOM is ignored and rows may have any width.
func DecodeCSV(data []byte) (header []string, rows []core.Row, err error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err = r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read record: %w", err)
		}
		rows = append(rows, core.Row(rec))
	}
	return header, rows, nil
}

// DecodeTable parses data as a snapshot of table: rows are conformed to
// the canonical columns and normalized.
func DecodeTable(table core.TableName, data []byte) (core.Table, error) {
	header, rows, err := DecodeCSV(data)
	if err != nil {
		return core.Table{}, err
	}
	t := core.NewTable(table)
	t.Rows = core.NormalizeRows(table, core.ConformByHeader(table, header, rows))
	return t, nil
}

// EncodeTable serializes rows under the table's canonical header.
func EncodeTable(table core.TableName, rows []core.Row) ([]byte, error) {
	return EncodeCSV(table.Columns(), rows)
}

// ContentVersion is the version of a serialized table.
func ContentVersion(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
