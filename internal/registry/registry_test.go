package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type memLedger struct {
	mu      sync.Mutex
	entries map[string]Entry
	saveErr error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]Entry)}
}

func (m *memLedger) SaveUpload(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries[e.FileID] = e
	return nil
}

func (m *memLedger) GetUpload(_ context.Context, id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *memLedger) DeleteUpload(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("id\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegistry_AddGet(t *testing.T) {
	r := New(Options{MaxEntries: 4}, nil, quietLogger())
	ctx := context.Background()

	r.Add(ctx, Entry{FileID: "a", Path: "/tmp/a.csv"})

	e, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Path != "/tmp/a.csv" {
		t.Errorf("path = %q", e.Path)
	}

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_EvictsLeastRecentlyUsed(t *testing.T) {
	r := New(Options{MaxEntries: 2, RemoveFiles: true}, nil, quietLogger())
	ctx := context.Background()

	pathA := tempFile(t, "a.csv")
	r.Add(ctx, Entry{FileID: "a", Path: pathA})
	r.Add(ctx, Entry{FileID: "b", Path: tempFile(t, "b.csv")})

	// Touch a so b is the eviction candidate.
	if _, err := r.Get(ctx, "a"); err != nil {
		t.Fatalf("get a: %v", err)
	}
	r.Add(ctx, Entry{FileID: "c", Path: tempFile(t, "c.csv")})

	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}
	if _, err := r.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected b evicted, got %v", err)
	}
	if _, err := os.Stat(pathA); err != nil {
		t.Errorf("a's file should remain: %v", err)
	}
}

func TestRegistry_EvictionRemovesFile(t *testing.T) {
	r := New(Options{MaxEntries: 1, RemoveFiles: true}, nil, quietLogger())
	ctx := context.Background()

	pathA := tempFile(t, "a.csv")
	r.Add(ctx, Entry{FileID: "a", Path: pathA})
	r.Add(ctx, Entry{FileID: "b", Path: tempFile(t, "b.csv")})

	if _, err := os.Stat(pathA); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected evicted file removed, stat err = %v", err)
	}
}

func TestRegistry_KeepsFilesWhenConfigured(t *testing.T) {
	r := New(Options{MaxEntries: 1}, nil, quietLogger())
	ctx := context.Background()

	pathA := tempFile(t, "a.csv")
	r.Add(ctx, Entry{FileID: "a", Path: pathA})
	r.Add(ctx, Entry{FileID: "b", Path: tempFile(t, "b.csv")})

	if _, err := os.Stat(pathA); err != nil {
		t.Errorf("file should be kept: %v", err)
	}
}

func TestRegistry_TTLExpiry(t *testing.T) {
	r := New(Options{MaxEntries: 4, TTL: 20 * time.Millisecond}, nil, quietLogger())
	ctx := context.Background()

	r.Add(ctx, Entry{FileID: "a"})
	time.Sleep(60 * time.Millisecond)

	if _, err := r.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired entry, got %v", err)
	}
}

func TestRegistry_LedgerFallback(t *testing.T) {
	ledger := newMemLedger()
	ctx := context.Background()

	path := tempFile(t, "a.csv")
	first := New(Options{MaxEntries: 4}, ledger, quietLogger())
	first.Add(ctx, Entry{FileID: "a", Filename: "a.csv", Path: path})

	// A fresh registry, as after a restart, resolves through the ledger.
	second := New(Options{MaxEntries: 4}, ledger, quietLogger())
	e, err := second.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Filename != "a.csv" || e.Path != path {
		t.Errorf("entry = %+v", e)
	}
	if second.Len() != 1 {
		t.Errorf("ledger hit should be cached, len = %d", second.Len())
	}
}

func TestRegistry_LedgerKeepsEvictedFiles(t *testing.T) {
	ledger := newMemLedger()
	r := New(Options{MaxEntries: 1, RemoveFiles: true}, ledger, quietLogger())
	ctx := context.Background()

	pathA := tempFile(t, "a.csv")
	pathB := tempFile(t, "b.csv")
	r.Add(ctx, Entry{FileID: "a", Path: pathA})
	r.Add(ctx, Entry{FileID: "b", Path: pathB})

	if _, err := os.Stat(pathA); err != nil {
		t.Fatalf("evicted file still listed in the ledger was removed: %v", err)
	}

	// Resolving a through the ledger evicts b from the cache; b's file stays.
	e, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if e.Path != pathA {
		t.Errorf("path = %q", e.Path)
	}
	if _, err := os.Stat(pathB); err != nil {
		t.Errorf("b's file should remain: %v", err)
	}
	if _, err := r.Get(ctx, "b"); err != nil {
		t.Errorf("b should resolve through the ledger: %v", err)
	}
}

func TestRegistry_LedgerEntryWithMissingFileIsNotCached(t *testing.T) {
	ledger := newMemLedger()
	r := New(Options{MaxEntries: 1, RemoveFiles: true}, ledger, quietLogger())
	ctx := context.Background()

	pathB := tempFile(t, "b.csv")
	ledger.entries["a"] = Entry{FileID: "a", Path: filepath.Join(t.TempDir(), "gone.csv")}
	r.Add(ctx, Entry{FileID: "b", Path: pathB})

	e, err := r.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.FileID != "a" {
		t.Errorf("entry = %+v", e)
	}
	if _, ok := ledger.entries["a"]; ok {
		t.Error("stale ledger record should be dropped")
	}
	if _, err := r.Get(ctx, "b"); err != nil {
		t.Errorf("b should still be cached: %v", err)
	}
	if _, err := os.Stat(pathB); err != nil {
		t.Errorf("b's file should remain: %v", err)
	}
	if _, err := r.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound once dropped, got %v", err)
	}
}

func TestRegistry_LedgerSaveFailureKeepsCacheEntry(t *testing.T) {
	ledger := newMemLedger()
	ledger.saveErr = fmt.Errorf("db down")
	r := New(Options{MaxEntries: 4}, ledger, quietLogger())
	ctx := context.Background()

	r.Add(ctx, Entry{FileID: "a"})
	if _, err := r.Get(ctx, "a"); err != nil {
		t.Errorf("expected cached entry, got %v", err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	ledger := newMemLedger()
	r := New(Options{MaxEntries: 4, RemoveFiles: true}, ledger, quietLogger())
	ctx := context.Background()

	path := tempFile(t, "a.csv")
	r.Add(ctx, Entry{FileID: "a", Path: path})

	if !r.Remove(ctx, "a") {
		t.Error("expected a to be known")
	}
	if _, err := r.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected removed, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
	if r.Remove(ctx, "a") {
		t.Error("second remove should report unknown")
	}
}

func TestRegistry_RemoveLedgerOnlyEntry(t *testing.T) {
	ledger := newMemLedger()
	path := tempFile(t, "a.csv")
	ledger.entries["a"] = Entry{FileID: "a", Path: path}
	r := New(Options{MaxEntries: 4, RemoveFiles: true}, ledger, quietLogger())

	if !r.Remove(context.Background(), "a") {
		t.Error("expected ledger entry to be known")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected file removed, stat err = %v", err)
	}
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	r := New(Options{}, nil, quietLogger())
	ctx := context.Background()
	now := time.Now()

	r.Add(ctx, Entry{FileID: "old", UploadedAt: now.Add(-time.Hour)})
	r.Add(ctx, Entry{FileID: "new", UploadedAt: now})

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[0].FileID != "new" || list[1].FileID != "old" {
		t.Errorf("order = %s, %s", list[0].FileID, list[1].FileID)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New(Options{MaxEntries: 16}, nil, quietLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("f%d", i)
			for j := 0; j < 100; j++ {
				r.Add(ctx, Entry{FileID: id})
				_, _ = r.Get(ctx, id)
				_ = r.List()
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 8 {
		t.Errorf("len = %d, want 8", r.Len())
	}
}
