package conversation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const utf8BOM = "\ufeff"

// ReadError reports that the row source itself could not be read. It denies
// every row, unlike extraction failures which only blank one field.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("read rows: %v", e.Err)
	}
	return fmt.Sprintf("read rows from %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ErrInvalidEncoding is returned for rows that are not valid UTF-8.
var ErrInvalidEncoding = errors.New("invalid UTF-8 in row")

// RowReader streams RawRows from CSV input, one row at a time. Field length
// is unbounded.
type RowReader struct {
	csv    *csv.Reader
	header []string
	n      int
}

// NewRowReader reads the header row from r. An empty input yields a reader
// that returns io.EOF immediately.
func NewRowReader(r io.Reader) (*RowReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &RowReader{csv: cr}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if err := checkUTF8(header); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	return &RowReader{csv: cr, header: header, n: 1}, nil
}

// Header returns the column names in file order.
func (rr *RowReader) Header() []string {
	return rr.header
}

// Next returns the next row, or io.EOF when the input is exhausted. Columns
// missing from a short row are absent from the map.
func (rr *RowReader) Next() (RawRow, error) {
	if rr.header == nil {
		return nil, io.EOF
	}
	record, err := rr.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("record %d: %w", rr.n+1, err)
	}
	rr.n++
	if err := checkUTF8(record); err != nil {
		return nil, fmt.Errorf("record %d: %w", rr.n, err)
	}

	row := make(RawRow, len(rr.header))
	for i, col := range rr.header {
		if i < len(record) {
			row[col] = record[i]
		}
	}
	return row, nil
}

func checkUTF8(fields []string) error {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return ErrInvalidEncoding
		}
	}
	return nil
}
