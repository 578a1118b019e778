// Package localfs implements the workspace file store on the local
// filesystem, fronted by an optional read cache.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pagecraft/pagecraft/internal/domain"
	"github.com/pagecraft/pagecraft/internal/port/cache"
	"github.com/pagecraft/pagecraft/internal/port/filestore"
)

// Store reads and writes workspace files under baseDir/<workspaceID>/.
// Reads go through the cache when one is configured. Cache keys carry the
// file's mtime and size, so a mutation from outside the store (the sandbox
// writes through the same directory mount) changes the key and the next
// read misses to disk. Stale entries age out via TTL.
type Store struct {
	baseDir  string
	cache    cache.Cache
	cacheTTL time.Duration
}

// New creates a Store rooted at baseDir. c may be nil to disable caching.
func New(baseDir string, c cache.Cache, ttl time.Duration) *Store {
	return &Store{baseDir: baseDir, cache: c, cacheTTL: ttl}
}

// WorkspaceRoot returns the absolute root directory for a workspace.
func (s *Store) WorkspaceRoot(workspaceID string) string {
	return filepath.Join(s.baseDir, workspaceID)
}

// resolve joins the relative path onto the workspace root, rejecting paths
// that escape it.
func (s *Store) resolve(workspaceID, path string) (string, error) {
	root := s.WorkspaceRoot(workspaceID)
	full := filepath.Join(root, filepath.FromSlash(path))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace root", path)
	}
	return full, nil
}

func cacheKey(workspaceID, path string, info fs.FileInfo) string {
	return fmt.Sprintf("file:%s:%s:%d:%d", workspaceID, path, info.ModTime().UnixNano(), info.Size())
}

func (s *Store) ReadFile(ctx context.Context, workspaceID, path string) (string, error) {
	full, err := s.resolve(workspaceID, path)
	if err != nil {
		return "", err
	}

	// The stat always hits disk; it versions the cache key so reads
	// observe sandbox-side writes to the same file.
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", path, domain.ErrNotFound)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	key := cacheKey(workspaceID, path, info)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return string(data), nil
		}
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read %s: %w", path, domain.ErrNotFound)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, data, s.cacheTTL)
	}
	return string(data), nil
}

func (s *Store) WriteFile(ctx context.Context, workspaceID, path, content string) error {
	full, err := s.resolve(workspaceID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}

	// Write to a temp file in the same directory, then rename. Readers never
	// observe a half-written page.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".pagecraft-*")
	if err != nil {
		return fmt.Errorf("temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, workspaceID, path string) error {
	full, err := s.resolve(workspaceID, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", path, domain.ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (s *Store) ListFiles(_ context.Context, workspaceID, dir string) ([]filestore.Entry, error) {
	full, err := s.resolve(workspaceID, dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("list %s: %w", dir, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := make([]filestore.Entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, filestore.Entry{
			Name:  e.Name(),
			IsDir: e.IsDir(),
			Size:  info.Size(),
		})
	}
	return out, nil
}
