package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotFound is returned for file ids that are neither cached nor recorded
// in the ledger.
var ErrNotFound = errors.New("upload not found")

// Entry describes one uploaded CSV file.
type Entry struct {
	FileID     string    `json:"file_id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"-"`
	SessionIDs []string  `json:"session_ids"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Ledger is durable upload bookkeeping that outlives the in-memory cache.
type Ledger interface {
	SaveUpload(ctx context.Context, e Entry) error
	GetUpload(ctx context.Context, fileID string) (Entry, error)
	DeleteUpload(ctx context.Context, fileID string) error
}

type Options struct {
	MaxEntries  int           // <= 0 means unbounded
	TTL         time.Duration // <= 0 means entries never expire
	RemoveFiles bool          // delete files of removed uploads, and of evicted ones when there is no ledger
}

// Registry maps upload file ids to stored files. Entries are evicted least
// recently used first once MaxEntries is reached, and expire after TTL.
// Without a ledger the cache is the only record, so eviction ends the upload.
// With one, the cache only fronts the ledger and files live until Remove.
// It is safe for concurrent use.
type Registry struct {
	cache       *expirable.LRU[string, Entry]
	ledger      Ledger
	removeFiles bool
	logger      *slog.Logger
}

// New creates a registry. ledger may be nil.
func New(opts Options, ledger Ledger, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{ledger: ledger, removeFiles: opts.RemoveFiles, logger: logger}

	var onEvict expirable.EvictCallback[string, Entry]
	if opts.RemoveFiles && ledger == nil {
		onEvict = r.removeFile
	}
	r.cache = expirable.NewLRU[string, Entry](opts.MaxEntries, onEvict, opts.TTL)
	return r
}

func (r *Registry) removeFile(fileID string, e Entry) {
	if e.Path == "" {
		return
	}
	if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("failed to remove upload file", "file_id", fileID, "path", e.Path, "error", err)
		return
	}
	r.logger.Debug("upload file removed", "file_id", fileID)
}

// Add records an upload. Ledger failures are logged, the cache entry stands.
func (r *Registry) Add(ctx context.Context, e Entry) {
	r.cache.Add(e.FileID, e)
	if r.ledger == nil {
		return
	}
	if err := r.ledger.SaveUpload(ctx, e); err != nil {
		r.logger.Warn("failed to record upload", "file_id", e.FileID, "error", err)
	}
}

// Get resolves a file id. Cache misses fall through to the ledger and a hit
// there is cached again, unless its file is gone. Such a record is dropped
// from the ledger and the entry returned uncached.
func (r *Registry) Get(ctx context.Context, fileID string) (Entry, error) {
	if e, ok := r.cache.Get(fileID); ok {
		return e, nil
	}
	if r.ledger == nil {
		return Entry{}, ErrNotFound
	}

	e, err := r.ledger.GetUpload(ctx, fileID)
	if err != nil {
		return Entry{}, err
	}
	if _, err := os.Stat(e.Path); errors.Is(err, os.ErrNotExist) {
		if err := r.ledger.DeleteUpload(ctx, fileID); err != nil && !errors.Is(err, ErrNotFound) {
			r.logger.Warn("failed to drop stale upload record", "file_id", fileID, "error", err)
		}
		return e, nil
	}
	r.cache.Add(fileID, e)
	return e, nil
}

// Remove drops an upload from the cache and the ledger. It reports whether
// the id was known to either.
func (r *Registry) Remove(ctx context.Context, fileID string) bool {
	e, known := r.cache.Peek(fileID)
	r.cache.Remove(fileID)
	if r.ledger == nil {
		return known
	}

	if !known {
		stored, err := r.ledger.GetUpload(ctx, fileID)
		if err != nil {
			return false
		}
		e, known = stored, true
	}
	if r.removeFiles {
		r.removeFile(fileID, e)
	}
	if err := r.ledger.DeleteUpload(ctx, fileID); err != nil && !errors.Is(err, ErrNotFound) {
		r.logger.Warn("failed to delete upload record", "file_id", fileID, "error", err)
	}
	return known
}

// Forget drops a cached entry without touching the ledger, for removals
// already applied elsewhere.
func (r *Registry) Forget(fileID string) {
	r.cache.Remove(fileID)
}

// List returns cached uploads, newest first.
func (r *Registry) List() []Entry {
	entries := r.cache.Values()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UploadedAt.After(entries[j].UploadedAt)
	})
	return entries
}

func (r *Registry) Len() int {
	return r.cache.Len()
}
