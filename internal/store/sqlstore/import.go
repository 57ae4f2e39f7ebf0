package sqlstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"taskscope/internal/store"
)

// ReadRows decodes an export holding an array of rows or a single row.
func ReadRows(r io.Reader) ([]store.Row, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	var rows []store.Row
	if err := json.Unmarshal(raw, &rows); err == nil {
		return normalizeNumbers(rows), nil
	}
	var row store.Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode export: expected an array or object of rows")
	}
	return normalizeNumbers([]store.Row{row}), nil
}

// ReadRowsFile is ReadRows over a file.
func ReadRowsFile(path string) ([]store.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := ReadRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// normalizeNumbers turns whole float64 top-level values into int64 so integer
// columns keep their type.
func normalizeNumbers(rows []store.Row) []store.Row {
	for _, r := range rows {
		for k, v := range r {
			if f, ok := v.(float64); ok && f == float64(int64(f)) {
				r[k] = int64(f)
			}
		}
	}
	return rows
}
