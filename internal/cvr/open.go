package cvr

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Options selects how ambiguous containers are interpreted.
type Options struct {
	// Images reads .zip files as ballot-image archives instead of JSON exports.
	Images bool
}

// Open extracts batches from filename, choosing the reader by extension.
func Open(filename string, opts Options) (*Export, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		if opts.Images {
			return nil, fmt.Errorf("%w: cannot read images from CSV file %s", ErrUnsupported, filename)
		}
		return ReadCSV(filename)
	case ".zip":
		if opts.Images {
			return ReadImageZip(filename)
		}
		return ReadJSONZip(filename)
	default:
		return nil, fmt.Errorf("%w: %s does not look like a .csv or .zip file", ErrUnsupported, filename)
	}
}
