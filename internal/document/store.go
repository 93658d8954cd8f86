// Package document stores uploaded invoice documents on local disk, one
// file per invoice keyed by invoice id.
package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Store struct {
	basePath string
}

func NewStore(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("document.NewStore: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// Save writes the document and returns the path it was stored under.
func (s *Store) Save(id string, src io.Reader) (string, error) {
	path := filepath.Join(s.basePath, id+".pdf")

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("Save: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("Save: %w", err)
	}
	return path, nil
}

func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	return nil
}
