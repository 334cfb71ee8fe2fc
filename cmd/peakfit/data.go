package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var errBadData = errors.New("bad data file")

// readData reads x,y[,error] rows. Lines starting with # are comments and a
// first row that does not parse as numbers is taken as a header. All rows must
// have the same number of columns. errs is nil for two-column data.
func readData(r io.Reader) (x, y, errs []float64, err error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", errBadData, err)
	}

	for i, rec := range records {
		if len(rec) < 2 || len(rec) > 3 {
			return nil, nil, nil, fmt.Errorf("%w: row %d has %d columns, want 2 or 3", errBadData, i+1, len(rec))
		}
		row := make([]float64, len(rec))
		for j, field := range rec {
			row[j], err = strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				break
			}
		}
		if err != nil {
			if i == 0 {
				err = nil
				continue
			}
			return nil, nil, nil, fmt.Errorf("%w: row %d: %w", errBadData, i+1, err)
		}
		x = append(x, row[0])
		y = append(y, row[1])
		if len(row) == 3 {
			errs = append(errs, row[2])
		}
	}
	if len(x) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no data rows", errBadData)
	}
	return x, y, errs, nil
}

func readDataFile(path string) (x, y, errs []float64, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer file.Close()

	x, y, errs, err = readData(file)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return x, y, errs, nil
}
