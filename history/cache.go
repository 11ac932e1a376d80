package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/filegeek/filegeek-go/types"
)

// cacheVersion guards against decoding caches written by incompatible
// builds. Bump on any breaking change to the cached shape.
const cacheVersion = 1

// Cache is a local snapshot of the session list, used to render the session
// picker before the backend answers (and instead of it when offline).
// It is a cache, never the source of truth: the backend list wins on
// conflict and a corrupt cache is discarded, not repaired.
type Cache struct {
	path string
}

// cacheFile is the on-disk msgpack shape.
type cacheFile struct {
	Version  int             `msgpack:"version"`
	Sessions []types.Session `msgpack:"sessions"`
}

// NewCache creates a cache at the given file path.
func NewCache(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("history: cache path is required")
	}
	return &Cache{path: path}, nil
}

// Load reads the cached session list. A missing, corrupt, or
// version-mismatched cache yields nil sessions and no error.
func (c *Cache) Load() ([]types.Session, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read cache: %w", err)
	}

	var file cacheFile
	if err := msgpack.Unmarshal(raw, &file); err != nil {
		// Corrupt cache is stale data, not a failure.
		return nil, nil
	}
	if file.Version != cacheVersion {
		return nil, nil
	}
	return file.Sessions, nil
}

// Invalidate drops the cached list. Called when a commit or a finished
// indexing task makes the cached previews stale. A missing cache is fine.
func (c *Cache) Invalidate() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("history: invalidate cache: %w", err)
	}
	return nil
}

// Save atomically replaces the cached session list.
func (c *Cache) Save(sessions []types.Session) error {
	raw, err := msgpack.Marshal(cacheFile{Version: cacheVersion, Sessions: sessions})
	if err != nil {
		return fmt.Errorf("history: encode cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("history: create cache dir: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a torn cache.
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("history: write cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("history: replace cache: %w", err)
	}
	return nil
}
