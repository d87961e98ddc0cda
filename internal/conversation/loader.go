package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Loader reads session record files into ordered collections.
type Loader struct {
	logger *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load reads the CSV at path and returns its records in evaluation order.
// When sessionID is non-empty only rows whose evaluation_session_id equals
// it are kept. Failure to open or read the file returns a *ReadError.
// Reading stops with ctx's error once ctx is done.
func (l *Loader) Load(ctx context.Context, path, sessionID string) (Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: fmt.Errorf("open: %w", err)}
	}
	defer f.Close()

	records, err := l.Read(ctx, f, sessionID)
	if err != nil {
		var re *ReadError
		if errors.As(err, &re) {
			re.Path = path
		}
		return nil, err
	}
	return records, nil
}

// Read is Load over an already open source.
func (l *Loader) Read(ctx context.Context, r io.Reader, sessionID string) (Collection, error) {
	rows, err := NewRowReader(r)
	if err != nil {
		return nil, &ReadError{Err: err}
	}

	records := Collection{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ReadError{Err: err}
		}
		if sessionID != "" && row.Get(ColEvaluationSessionID) != sessionID {
			continue
		}
		records = append(records, Assemble(row))
	}

	if err := sortByEvaluationOrder(records); err != nil {
		l.logger.Warn("keeping file order, evaluation order not sortable", "error", err)
	}

	l.logger.Debug("collection loaded", "records", len(records), "session_id", sessionID)
	return records, nil
}

// orderKey is the sort position of a record. Records without a numeric
// evaluation order sort after every record that has one. digits holds the
// value without leading zeros so keys of any length compare by value.
type orderKey struct {
	numeric bool
	digits  string
}

func (k orderKey) less(o orderKey) bool {
	if k.numeric != o.numeric {
		return k.numeric
	}
	if !k.numeric {
		return false
	}
	if len(k.digits) != len(o.digits) {
		return len(k.digits) < len(o.digits)
	}
	return k.digits < o.digits
}

// evaluationOrderKey computes the key for one evaluation_order value.
func evaluationOrderKey(s string) orderKey {
	if !isDigits(s) {
		return orderKey{}
	}
	digits := strings.TrimLeft(s, "0")
	if digits == "" {
		digits = "0"
	}
	return orderKey{numeric: true, digits: digits}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// sortByEvaluationOrder stable-sorts records in place. A fault while
// ordering leaves the slice untouched and is returned as an error.
func sortByEvaluationOrder(records Collection) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sort by evaluation order: %v", r)
		}
	}()

	keys := make([]orderKey, len(records))
	for i, rec := range records {
		keys[i] = evaluationOrderKey(rec.EvaluationOrder)
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return keys[idx[i]].less(keys[idx[j]])
	})

	sorted := make(Collection, len(records))
	for i, from := range idx {
		sorted[i] = records[from]
	}
	copy(records, sorted)
	return nil
}
