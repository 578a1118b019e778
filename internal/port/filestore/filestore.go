// Package filestore defines the workspace file storage port. The patch
// engine never writes directly: the session engine reads through this port,
// applies the patch in memory, then writes the result back.
package filestore

import "context"

// Entry is one directory listing item.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Store is the port interface for workspace-scoped file access. Paths are
// relative to the workspace root; reads of missing files wrap
// domain.ErrNotFound.
type Store interface {
	ReadFile(ctx context.Context, workspaceID, path string) (string, error)
	WriteFile(ctx context.Context, workspaceID, path, content string) error
	DeleteFile(ctx context.Context, workspaceID, path string) error
	ListFiles(ctx context.Context, workspaceID, dir string) ([]Entry, error)
}
