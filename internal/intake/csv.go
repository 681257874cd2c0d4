// Package intake turns uploaded survey exports into classifier rows.
package intake

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/refset/prevd-classifier/internal/classifier"
)

// duplicateSeparator joins the values of repeated headers.
const duplicateSeparator = "\n---\n"

var (
	ErrNoData = errors.New("CSV has no data")
	ErrNoRows = errors.New("CSV has no valid rows")
)

// Row is one data line keyed by header and in column order.
type Row struct {
	RawData    map[string]string     `json:"rawData"`
	RawEntries []classifier.RawEntry `json:"rawEntries"`
}

// Upload is a parsed survey export.
type Upload struct {
	Filename string   `json:"filename"`
	Headers  []string `json:"headers"`
	Rows     []Row    `json:"rows"`
}

// ParseCSV reads a survey export. The first record is the header row; data
// rows with no non-blank value are dropped.
func ParseCSV(r io.Reader) (*Upload, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	headers := make([]string, len(records[0]))
	for i, cell := range records[0] {
		headers[i] = cleanCell(cell)
	}

	up := &Upload{Headers: headers}
	for _, cells := range records[1:] {
		row := buildRow(headers, cells)
		if row.blank() {
			continue
		}
		up.Rows = append(up.Rows, row)
	}
	if len(up.Rows) == 0 {
		return nil, ErrNoRows
	}
	return up, nil
}

func buildRow(headers, cells []string) Row {
	width := max(len(headers), len(cells))
	row := Row{
		RawData:    make(map[string]string, width),
		RawEntries: make([]classifier.RawEntry, 0, width),
	}
	for i := range width {
		header := ColumnName(headers, i)
		value := ""
		if i < len(cells) {
			value = strings.TrimSpace(cells[i])
		}
		row.RawEntries = append(row.RawEntries, classifier.RawEntry{Header: header, Value: value, ColumnIndex: i})
		if prev, ok := row.RawData[header]; ok {
			row.RawData[header] = strings.TrimSpace(prev + duplicateSeparator + value)
		} else {
			row.RawData[header] = value
		}
	}
	return row
}

// ColumnName is the header of column i, or a positional name when it is blank or missing.
func ColumnName(headers []string, i int) string {
	if i < len(headers) {
		if h := strings.TrimSpace(headers[i]); h != "" {
			return h
		}
	}
	return fmt.Sprintf("column_%d", i+1)
}

// blank checks the cells rather than RawData, where a repeated header holds
// the separator even when every cell is empty.
func (r Row) blank() bool {
	for _, e := range r.RawEntries {
		if strings.TrimSpace(e.Value) != "" {
			return false
		}
	}
	return true
}

func cleanCell(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}
