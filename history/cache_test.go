package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/filegeek/filegeek-go/types"
)

func TestCache_RoundTrip(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "sessions.bin"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	sessions := []types.Session{
		{ID: "s-1", Title: "Biology", Persona: "tutor", UpdatedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)},
		{ID: "s-2", Title: "History", Preview: "who unified..."},
	}

	if err := cache.Save(sessions); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := cache.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sessions = %d, want 2", len(got))
	}
	if got[0].ID != "s-1" || got[0].Title != "Biology" || got[0].Persona != "tutor" {
		t.Errorf("sessions[0] = %+v, want original", got[0])
	}
	if !got[0].UpdatedAt.Equal(sessions[0].UpdatedAt) {
		t.Errorf("updated_at = %v, want %v", got[0].UpdatedAt, sessions[0].UpdatedAt)
	}
}

func TestCache_MissingFile(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "absent.bin"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	got, err := cache.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("sessions = %+v, want nil for missing cache", got)
	}
}

func TestCache_CorruptFileDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.bin")
	if err := os.WriteFile(path, []byte("not msgpack"), 0o644); err != nil {
		t.Fatalf("write corrupt cache: %v", err)
	}

	cache, err := NewCache(path)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	got, err := cache.Load()
	if err != nil {
		t.Fatalf("load: corrupt cache is stale data, not a failure: %v", err)
	}
	if got != nil {
		t.Errorf("sessions = %+v, want nil for corrupt cache", got)
	}
}

func TestCache_SaveReplacesPrevious(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "sessions.bin"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	if err := cache.Save([]types.Session{{ID: "s-1"}, {ID: "s-2"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := cache.Save([]types.Session{{ID: "s-3"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := cache.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s-3" {
		t.Errorf("sessions = %+v, want only the latest save", got)
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "sessions.bin"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	if err := cache.Save([]types.Session{{ID: "s-1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := cache.Invalidate(); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	got, err := cache.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != nil {
		t.Errorf("sessions = %+v, want nil after invalidation", got)
	}

	// Invalidating an already-missing cache is a no-op.
	if err := cache.Invalidate(); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
}

func TestCache_CreatesParentDir(t *testing.T) {
	cache, err := NewCache(filepath.Join(t.TempDir(), "nested", "dir", "sessions.bin"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	if err := cache.Save([]types.Session{{ID: "s-1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestNewCache_RequiresPath(t *testing.T) {
	if _, err := NewCache(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
