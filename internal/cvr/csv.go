package cvr

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSV extracts batches from a CSV-format CVR export.
func ReadCSV(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	exp, err := ParseCSV(f, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}

// ParseCSV reads a CSV export from r. The first four rows are headers
// (event, contest, choice, column names); every following row is a ballot.
func ParseCSV(r io.Reader, source string) (*Export, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var header [4][]string
	for i := range header {
		row, err := reader.Read()
		if err != nil {
			return nil, fmt.Errorf("%w: header row %d: %v", ErrMalformed, i+1, err)
		}
		header[i] = row
	}

	exp := &Export{Path: source}
	if len(header[0]) > 0 {
		exp.Description = header[0][0]
	}
	if len(header[0]) > 1 {
		exp.Version = header[0][1]
	}

	cols := header[3]
	tabCol := columnIndex(cols, "Tabulator", "TabulatorNum")
	batCol := columnIndex(cols, "Batch", "BatchId")
	recCol := columnIndex(cols, "Record", "RecordId")
	if tabCol < 0 || batCol < 0 || recCol < 0 {
		return nil, fmt.Errorf("%w: missing Tabulator/Batch/Record columns in %v", ErrMalformed, cols)
	}
	last := max(tabCol, batCol, recCol)

	set := newBatchSet(source)
	line := 4
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		if len(row) <= last {
			// Trailing blank or summary rows carry no ballot.
			continue
		}
		tab, err1 := csvInt(row[tabCol])
		bat, err2 := csvInt(row[batCol])
		if err1 != nil || err2 != nil {
			exp.Skipped++
			continue
		}
		key := Key{Tabulator: int(tab), Batch: int(bat)}
		rec, err := csvInt(row[recCol])
		if err != nil {
			set.fail(key, fmt.Errorf("line %d: record id %q", line, row[recCol]))
			continue
		}
		set.add(key, rec)
	}
	exp.Batches = set.batches()
	return exp, nil
}

// columnIndex returns the index of the first matching column name, or -1.
func columnIndex(cols []string, names ...string) int {
	for _, name := range names {
		for i, c := range cols {
			if strings.TrimSpace(c) == name {
				return i
			}
		}
	}
	return -1
}

// csvInt parses integers written plainly or in the ="123" spreadsheet style.
func csvInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 3 && s[0] == '=' && s[1] == '"' && s[len(s)-1] == '"' {
		s = s[2 : len(s)-1]
	}
	return strconv.ParseInt(s, 10, 64)
}
