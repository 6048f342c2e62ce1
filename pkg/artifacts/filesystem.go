package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// FilesystemStore stores artifacts under a root directory, one file per
// artifact at <root>/<category>/<id>. Writes go to a temporary file in the
// same directory followed by an atomic rename, so a reader can never open a
// partially written artifact under its final name.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a filesystem-backed store rooted at the path
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

// Put writes the artifact and makes it atomically visible
func (s *FilesystemStore) Put(ctx context.Context, category, id, contentType string, data []byte) (Location, error) {
	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Location{}, fmt.Errorf("failed to create category dir: %w", err)
	}

	final := filepath.Join(dir, id)
	tmp := filepath.Join(dir, "."+id+".tmp-"+uuid.NewString())

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Location{}, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return Location{}, fmt.Errorf("failed to finalize artifact: %w", err)
	}

	return Location{
		Category:    category,
		ID:          id,
		ContentType: contentType,
		Size:        int64(len(data)),
		Ref:         final,
	}, nil
}

// Get reads an artifact's contents
func (s *FilesystemStore) Get(ctx context.Context, category, id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, category, id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// Delete removes an artifact
func (s *FilesystemStore) Delete(ctx context.Context, category, id string) (bool, error) {
	err := os.Remove(filepath.Join(s.root, category, id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete artifact: %w", err)
	}
	return true, nil
}

// List returns the IDs stored under a category
func (s *FilesystemStore) List(ctx context.Context, category string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, category))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Driver returns the driver identifier
func (s *FilesystemStore) Driver() Driver {
	return DriverFilesystem
}
