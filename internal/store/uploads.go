package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/arbiter/internal/registry"
)

var _ registry.Ledger = (*Store)(nil)

// SaveUpload records an uploaded file, replacing any previous row for the id.
func (s *Store) SaveUpload(ctx context.Context, e registry.Entry) error {
	sessionIDs := e.SessionIDs
	if sessionIDs == nil {
		sessionIDs = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO uploads (file_id, filename, path, session_ids, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (file_id)
		DO UPDATE SET
			filename = $2,
			path = $3,
			session_ids = $4,
			uploaded_at = $5`,
		e.FileID, e.Filename, e.Path, sessionIDs, e.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// GetUpload fetches one upload. It returns registry.ErrNotFound when no row
// exists.
func (s *Store) GetUpload(ctx context.Context, fileID string) (registry.Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT file_id, filename, path, session_ids, uploaded_at
		FROM uploads
		WHERE file_id = $1`,
		fileID,
	)

	var e registry.Entry
	err := row.Scan(&e.FileID, &e.Filename, &e.Path, &e.SessionIDs, &e.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Entry{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Entry{}, fmt.Errorf("get upload: %w", err)
	}
	return e, nil
}

// ListUploads returns the most recent uploads, newest first.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]registry.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT file_id, filename, path, session_ids, uploaded_at
		FROM uploads
		ORDER BY uploaded_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []registry.Entry
	for rows.Next() {
		var e registry.Entry
		if err := rows.Scan(&e.FileID, &e.Filename, &e.Path, &e.SessionIDs, &e.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteUpload removes an upload row. It returns registry.ErrNotFound when
// nothing was deleted.
func (s *Store) DeleteUpload(ctx context.Context, fileID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM uploads WHERE file_id = $1`, fileID)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}
