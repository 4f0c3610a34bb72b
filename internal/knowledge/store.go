// Package knowledge persists retrieved-context documents that are
// folded into task prompts.
package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is where knowledge documents live relative to the
// working directory.
const DefaultDir = ".anton/knowledge"

// Store reads and writes markdown knowledge documents on disk. Each
// document is a standalone .md file named after its ID.
type Store struct {
	dir string
}

// NewStore creates a store rooted at the default directory.
func NewStore() *Store {
	return &Store{dir: DefaultDir}
}

// NewStoreWithDir creates a store rooted at dir.
func NewStoreWithDir(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory this store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a document atomically via a temp file and rename.
func (s *Store) Save(id, content string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create knowledge directory: %w", err)
	}

	final := s.filename(id)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write knowledge file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize knowledge file: %w", err)
	}
	return nil
}

// Load returns the document for id, or an empty string when no
// document exists.
func (s *Store) Load(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.filename(id))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read knowledge file: %w", err)
	}
	return string(data), nil
}

// Exists reports whether a document for id is on disk.
func (s *Store) Exists(id string) bool {
	if validID(id) != nil {
		return false
	}
	_, err := os.Stat(s.filename(id))
	return err == nil
}

// Delete removes the document for id. Deleting a missing document is
// not an error.
func (s *Store) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	err := os.Remove(s.filename(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete knowledge file: %w", err)
	}
	return nil
}

func (s *Store) filename(id string) string {
	return filepath.Join(s.dir, id+".md")
}

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("knowledge id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("knowledge id cannot contain path separators: %q", id)
	}
	return nil
}
