package classifier

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmptyLabels is returned when a label table holds no class names.
var ErrEmptyLabels = errors.New("classifier: label table is empty")

// Labels is the ordered list of class names of a model. Entry i names score
// index i.
type Labels []string

// Name returns the class name for index i, or false when i is outside the
// table.
func (l Labels) Name(i int) (string, bool) {
	if i < 0 || i >= len(l) {
		return "", false
	}
	return l[i], true
}

// LoadLabels reads a label table.
//
// Two layouts are accepted: the YAMNet class map CSV
// (index,mid,display_name with a header row) where the last column is used,
// and a plain list with one class name per line. Quoted names containing
// commas are handled by the CSV reader.
func LoadLabels(r io.Reader) (Labels, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var labels Labels
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("classifier: parse labels: %w", err)
		}
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimSpace(rec[len(rec)-1])
		if first {
			first = false
			if len(rec) > 1 && strings.EqualFold(name, "display_name") {
				continue
			}
		}
		labels = append(labels, name)
	}
	if len(labels) == 0 {
		return nil, ErrEmptyLabels
	}
	return labels, nil
}

// LoadLabelsFile opens path and calls [LoadLabels].
func LoadLabelsFile(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: open labels: %w", err)
	}
	defer f.Close()
	return LoadLabels(f)
}
