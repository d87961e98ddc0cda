package conversation

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// DiscoverSessions returns the distinct non-empty evaluation_session_id
// values in the CSV at path, sorted.
func DiscoverSessions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: fmt.Errorf("open: %w", err)}
	}
	defer f.Close()

	ids, err := ReadSessions(f)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return ids, nil
}

// ReadSessions is DiscoverSessions over an already open source. Payload
// columns are not extracted.
func ReadSessions(r io.Reader) ([]string, error) {
	rows, err := NewRowReader(r)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if id := row.Get(ColEvaluationSessionID); id != "" {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
