package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MediaStore keeps attachment content on disk under a single root directory.
// Files are addressed by the relative path recorded on the attachment row.
type MediaStore struct {
	root string
}

// NewMediaStore ensures the media directory exists and returns a store
// rooted at it.
func NewMediaStore(root string) (*MediaStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory %s: %w", root, err)
	}
	return &MediaStore{root: root}, nil
}

// Save writes attachment content to a fresh file and returns its relative
// path. The original filename only contributes its extension; the stored
// name is a generated id so colliding uploads never overwrite each other.
func (m *MediaStore) Save(filename string, content []byte) (string, error) {
	rel := uuid.New().String() + filepath.Ext(filename)
	if err := os.WriteFile(filepath.Join(m.root, rel), content, 0o644); err != nil {
		return "", fmt.Errorf("writing media file %s: %w", rel, err)
	}
	return rel, nil
}

// Read returns the content stored at a relative path.
func (m *MediaStore) Read(rel string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(m.root, rel))
	if err != nil {
		return nil, fmt.Errorf("reading media file %s: %w", rel, err)
	}
	return data, nil
}

// Remove deletes the file at a relative path. A file already gone is not an
// error, so purge passes can be retried.
func (m *MediaStore) Remove(rel string) error {
	err := os.Remove(filepath.Join(m.root, rel))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing media file %s: %w", rel, err)
	}
	return nil
}
