package cvr

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// ReadImageZip extracts batches from an archive of ballot images named
// <tabulator>_<batch>_<record>[_...].tif.
func ReadImageZip(filename string) (*Export, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer zr.Close()
	return parseImageZip(&zr.Reader, filename), nil
}

// ParseImageZip reads a ballot-image archive from r.
func ParseImageZip(r io.ReaderAt, size int64, source string) (*Export, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return parseImageZip(zr, source), nil
}

func parseImageZip(zr *zip.Reader, source string) *Export {
	exp := &Export{Path: source}
	set := newBatchSet(source)
	for _, f := range zr.File {
		base := path.Base(f.Name)
		ext := path.Ext(base)
		if !strings.EqualFold(ext, ".tif") {
			continue
		}
		key, rec, ok := parseImageName(strings.TrimSuffix(base, ext))
		if !ok {
			exp.Skipped++
			continue
		}
		set.add(key, rec)
	}
	exp.Batches = set.batches()
	return exp
}

func parseImageName(stem string) (Key, int64, bool) {
	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return Key{}, 0, false
	}
	tab, err1 := strconv.Atoi(parts[0])
	bat, err2 := strconv.Atoi(parts[1])
	rec, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Key{}, 0, false
	}
	return Key{Tabulator: tab, Batch: bat}, rec, true
}
