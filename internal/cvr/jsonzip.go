package cvr

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	eventManifestName     = "ElectionEventManifest.json"
	tabulatorManifestName = "TabulatorManifest.json"
	sanitizedRecordID     = "X"
)

type eventManifest struct {
	Version string `json:"Version"`
	List    []struct {
		Description string `json:"Description"`
	} `json:"List"`
}

type tabulatorManifest struct {
	List []struct {
		ID   flexValue `json:"Id"`
		Type string    `json:"Type"`
	} `json:"List"`
}

type cvrExportFile struct {
	Sessions []session `json:"Sessions"`
}

type session struct {
	TabulatorID flexValue `json:"TabulatorId"`
	BatchID     flexValue `json:"BatchId"`
	RecordID    flexValue `json:"RecordId"`
	ModifyDate  string    `json:"ModifyDate,omitempty"`
}

// flexValue holds a JSON number or string verbatim; exports write ids
// either way and sanitized records use the string "X".
type flexValue string

func (v *flexValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = flexValue(s)
		return nil
	}
	*v = flexValue(data)
	return nil
}

func (v flexValue) int64() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
}

// ReadJSONZip extracts batches from a zipped JSON-format CVR export.
func ReadJSONZip(filename string) (*Export, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer zr.Close()

	exp, err := parseJSONZip(&zr.Reader, filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return exp, nil
}

// ParseJSONZip reads a zipped JSON export from r.
func ParseJSONZip(r io.ReaderAt, size int64, source string) (*Export, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return parseJSONZip(zr, source)
}

func parseJSONZip(zr *zip.Reader, source string) (*Export, error) {
	exp := &Export{Path: source, TabulatorModels: make(map[int]string)}

	var event eventManifest
	if err := readZipJSON(zr, eventManifestName, &event); err != nil {
		return nil, err
	}
	exp.Version = event.Version
	if len(event.List) > 0 {
		exp.Description = event.List[0].Description
	}

	var tabs tabulatorManifest
	if err := readZipJSON(zr, tabulatorManifestName, &tabs); err != nil {
		return nil, err
	}
	for _, t := range tabs.List {
		id, err := t.ID.int64()
		if err != nil {
			return nil, fmt.Errorf("%w: tabulator id %q", ErrMalformed, t.ID)
		}
		exp.TabulatorModels[int(id)] = t.Type
	}

	set := newBatchSet(source)
	for _, f := range zr.File {
		name := path.Base(f.Name)
		if !strings.HasPrefix(name, "CvrExport") || !strings.HasSuffix(name, ".json") {
			continue
		}
		var doc cvrExportFile
		if err := decodeZipFile(f, &doc); err != nil {
			return nil, err
		}
		for _, s := range doc.Sessions {
			tab, err1 := s.TabulatorID.int64()
			bat, err2 := s.BatchID.int64()
			if err1 != nil || err2 != nil {
				exp.Skipped++
				continue
			}
			key := Key{Tabulator: int(tab), Batch: int(bat)}
			b := set.get(key)
			b.Model = exp.TabulatorModels[key.Tabulator]
			noteTimestamp(b, s.ModifyDate)

			if string(s.RecordID) == sanitizedRecordID {
				exp.Skipped++
				set.withhold(key)
				continue
			}
			rec, err := s.RecordID.int64()
			if err != nil {
				set.fail(key, fmt.Errorf("%s: record id %q", name, s.RecordID))
				continue
			}
			set.add(key, rec)
		}
	}
	exp.Batches = set.batches()
	return exp, nil
}

// noteTimestamp keeps the earliest parseable session timestamp of a batch.
func noteTimestamp(b *Batch, raw string) {
	if raw == "" {
		return
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return
	}
	if b.Timestamp == nil || ts.Before(*b.Timestamp) {
		b.Timestamp = &ts
	}
}

func readZipJSON(zr *zip.Reader, name string, v any) error {
	for _, f := range zr.File {
		if f.Name == name || path.Base(f.Name) == name {
			return decodeZipFile(f, v)
		}
	}
	return fmt.Errorf("%w: missing %s", ErrMalformed, name)
}

func decodeZipFile(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrMalformed, f.Name, err)
	}
	return nil
}
