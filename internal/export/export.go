// Package export converts the ledger tables to and from XLSX workbooks.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ledger/internal/core"

	"github.com/xuri/excelize/v2"
)

// ErrNoTables is returned when an imported workbook has no sheet named
// after a ledger table.
var ErrNoTables = errors.New("workbook has no ledger sheets")

// numFmtMoney is the builtin "#,##0.00" format.
const numFmtMoney = 4

// Workbook writes one sheet per table, in core.AllTables order. Tables
// missing from the map get a header-only sheet.
func Workbook(tables map[core.TableName]core.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E0E0E0"}},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: numFmtMoney})
	if err != nil {
		return nil, fmt.Errorf("money style: %w", err)
	}

	for i, name := range core.AllTables {
		sheet := string(name)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		if err := writeSheet(f, name, tables[name], header, money); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, t core.TableName, tbl core.Table, headerStyle, moneyStyle int) error {
	sheet := string(t)
	cols := t.Columns()
	isMoney := make(map[int]bool)
	for _, c := range t.MoneyColumns() {
		isMoney[t.ColumnIndex(c)] = true
	}

	for c, name := range cols {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
		width := float64(len(name) + 4)
		colName, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(sheet, colName, colName, width); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for r, row := range tbl.Rows {
		for c := range cols {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			value := ""
			if c < len(row) {
				value = row[c]
			}
			// Unparsable amounts keep their text.
			if m, err := core.ParseAmount(value); isMoney[c] && err == nil {
				v, _ := m.Decimal().Float64()
				if err := f.SetCellFloat(sheet, cell, v, 2, 64); err != nil {
					return err
				}
				if err := f.SetCellStyle(sheet, cell, cell, moneyStyle); err != nil {
					return err
				}
				continue
			}
			if err := f.SetCellStr(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// ImportWorkbook reads every sheet named after a ledger table. Columns are
// matched by header name; currency cells are rewritten in plain form and
// Excel date serials are converted to YYYY-MM-DD.
func ImportWorkbook(r io.Reader) (map[core.TableName][]core.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	out := make(map[core.TableName][]core.Row)
	for _, sheet := range f.GetSheetList() {
		t, err := core.ParseTableName(sheet)
		if err != nil {
			continue
		}
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		out[t] = importRows(t, rows)
	}
	if len(out) == 0 {
		return nil, ErrNoTables
	}
	return out, nil
}

func importRows(t core.TableName, raw [][]string) []core.Row {
	if len(raw) == 0 {
		return nil
	}
	header := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		header[i] = strings.TrimSpace(h)
	}
	var body []core.Row
	for _, r := range raw[1:] {
		if blankRow(r) {
			continue
		}
		body = append(body, core.Row(r))
	}
	rows := core.ConformByHeader(t, header, body)

	money := t.MoneyColumns()
	dates := t.DateColumns()
	for _, row := range rows {
		for _, c := range money {
			i := t.ColumnIndex(c)
			if strings.TrimSpace(row[i]) != "" {
				row[i] = core.CoerceAmount(row[i]).String()
			}
		}
		for _, c := range dates {
			i := t.ColumnIndex(c)
			row[i] = fromSerial(row[i])
		}
	}
	return core.NormalizeRows(t, rows)
}

// fromSerial converts an Excel date serial; anything else is returned as is.
func fromSerial(v string) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || serial < 20000 || serial > 80000 {
		return v
	}
	d, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return d.Format(core.DateLayout)
}

func blankRow(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
