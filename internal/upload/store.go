package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrOutsideRoot rejects paths that do not resolve inside the upload directory.
var ErrOutsideRoot = errors.New("upload path outside upload directory")

// Store keeps uploaded documents on local disk until a worker analyzes them.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = "./uploads"
	}
	return &Store{dir: filepath.Clean(dir)}
}

// Save writes data under a uuid-prefixed copy of name's base and returns the stored path.
func (s *Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(name))
	path := filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, data, 0o600); err != nil { // #nosec G306 -- path is UUID-based, not raw user input
		return "", fmt.Errorf("write upload: %w", err)
	}
	slog.DebugContext(ctx, "stored upload", "path", path, "bytes", len(data))
	return path, nil
}

func (s *Store) Load(ctx context.Context, path string) ([]byte, error) {
	clean, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(clean) // #nosec G304 -- resolved inside the upload directory
}

// Remove deletes a stored upload. Missing files are not an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	clean, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether a stored upload is still on disk.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	clean, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(clean); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) resolve(path string) (string, error) {
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(s.dir, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return clean, nil
}
