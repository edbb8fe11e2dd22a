package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/blackmichael/rss2bsky/internal/domain"
)

// JSONStore keeps published links as a JSON array in a single file.
type JSONStore struct {
	path string
}

// NewJSONStore creates a store backed by the file at path. The file is
// created on the first Save.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads the stored links. A missing file is an empty set. An
// unreadable file or anything other than a JSON array of strings also
// yields an empty set, along with an error describing the problem.
func (s *JSONStore) Load(_ context.Context) (domain.PublishedLinks, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.PublishedLinks{}, nil
	}
	if err != nil {
		return domain.PublishedLinks{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var links []string
	if err := json.Unmarshal(data, &links); err != nil {
		return domain.PublishedLinks{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if links == nil {
		return domain.PublishedLinks{}, fmt.Errorf("decode %s: not an array", s.path)
	}
	return links, nil
}

// Save replaces the file with links. It writes a temporary file next to
// the target and renames it into place so readers never see a partial file.
func (s *JSONStore) Save(_ context.Context, links domain.PublishedLinks) error {
	if links == nil {
		links = domain.PublishedLinks{}
	}
	data, err := json.MarshalIndent(links, "", "    ")
	if err != nil {
		return fmt.Errorf("encode links: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op.
func (s *JSONStore) Close() error {
	return nil
}
