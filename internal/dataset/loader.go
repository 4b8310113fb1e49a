package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/psychometry/irtreport/internal/errors"
)

// Options controls which columns are read and how cells are parsed.
type Options struct {
	// Items selects columns by header name, in order. When empty the
	// first FirstN columns are taken.
	Items []string
	// FirstN is the column-prefix size used when Items is empty.
	FirstN int
	// Categories is the ordinal ceiling; 0 infers it from the data.
	Categories int
	// MissingMarkers are raw cell values treated as missing.
	MissingMarkers []string
	// Delimiter defaults to comma.
	Delimiter rune
}

// Load reads a delimited file with a header row and returns the
// validated response matrix restricted to the requested columns.
// Validation failures abort with a data-format error before any
// fitting can happen.
func Load(path string, opts Options) (*ResponseMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewDataFormatError(apperrors.StageLoad,
			fmt.Sprintf("cannot open dataset %s", path),
			map[string]any{"cause": err})
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewDataFormatError(apperrors.StageLoad,
			fmt.Sprintf("cannot parse dataset %s", path),
			map[string]any{"cause": err})
	}
	if len(records) < 2 {
		return nil, apperrors.NewDataFormatError(apperrors.StageLoad,
			"dataset has a header but no data rows", nil)
	}

	header := records[0]
	colIdx, names, err := resolveColumns(header, opts)
	if err != nil {
		return nil, err
	}

	missing := make(map[string]bool, len(opts.MissingMarkers))
	for _, m := range opts.MissingMarkers {
		missing[m] = true
	}

	rows := make([][]int, 0, len(records)-1)
	maxSeen := 0
	for lineNo, record := range records[1:] {
		if len(record) < len(header) {
			return nil, apperrors.NewDataFormatError(apperrors.StageLoad,
				fmt.Sprintf("row %d has %d columns, expected %d", lineNo+2, len(record), len(header)), nil)
		}
		row := make([]int, len(colIdx))
		for j, idx := range colIdx {
			cell := strings.TrimSpace(record[idx])
			if missing[cell] {
				row[j] = Missing
				continue
			}
			v, err := strconv.Atoi(cell)
			if err != nil {
				return nil, apperrors.NewDataFormatError(apperrors.StageLoad,
					fmt.Sprintf("row %d column %s: %q is not an integer response", lineNo+2, names[j], cell), nil)
			}
			if v < 1 || (opts.Categories > 0 && v > opts.Categories) {
				rangeStr := ">= 1"
				if opts.Categories > 0 {
					rangeStr = fmt.Sprintf("in [1, %d]", opts.Categories)
				}
				return nil, apperrors.NewDataFormatError(apperrors.StageLoad,
					fmt.Sprintf("row %d column %s: value %d not %s", lineNo+2, names[j], v, rangeStr),
					map[string]any{"row": lineNo + 2, "column": names[j], "value": v})
			}
			if v > maxSeen {
				maxSeen = v
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	categories := opts.Categories
	if categories == 0 {
		categories = maxSeen
	}
	if categories < 2 {
		return nil, apperrors.NewDataFormatError(apperrors.StageLoad,
			fmt.Sprintf("inferred category count %d; ordinal items need at least 2", categories), nil)
	}

	return NewResponseMatrix(names, rows, categories), nil
}

// ScreenForEstimation rejects matrices that make graded-response
// location parameters ill-posed: a category that is never observed for
// an item leaves its threshold without data.
func ScreenForEstimation(m *ResponseMatrix) error {
	counts := m.ObservedCategoryCounts()
	names := m.ItemNames()
	for j, cs := range counts {
		for k, c := range cs {
			if c == 0 {
				return apperrors.NewInsufficientDataError(apperrors.StageScreen,
					fmt.Sprintf("category %d never observed for item %s", k+1, names[j]),
					map[string]any{"item": names[j], "category": k + 1})
			}
		}
	}
	return nil
}

func resolveColumns(header []string, opts Options) (idx []int, names []string, err error) {
	if len(opts.Items) > 0 {
		byName := make(map[string]int, len(header))
		for i, h := range header {
			byName[strings.TrimSpace(h)] = i
		}
		for _, want := range opts.Items {
			i, ok := byName[want]
			if !ok {
				return nil, nil, apperrors.NewDataFormatError(apperrors.StageLoad,
					fmt.Sprintf("column %q not found in header", want), nil)
			}
			idx = append(idx, i)
			names = append(names, want)
		}
		return idx, names, nil
	}

	if opts.FirstN <= 0 {
		return nil, nil, apperrors.NewDataFormatError(apperrors.StageLoad,
			"no item columns requested", nil)
	}
	if len(header) < opts.FirstN {
		return nil, nil, apperrors.NewDataFormatError(apperrors.StageLoad,
			fmt.Sprintf("dataset has %d columns, need at least %d", len(header), opts.FirstN), nil)
	}
	for i := 0; i < opts.FirstN; i++ {
		idx = append(idx, i)
		names = append(names, strings.TrimSpace(header[i]))
	}
	return idx, names, nil
}
