package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Persister loads and saves the baseline store.
//
// Load must treat absent or unreadable state as a fresh start where it can
// tell the difference; an error return means the backend itself failed.
// Save must never leave state half-written.
type Persister interface {
	Load(ctx context.Context, alpha float64, signals ...string) (*Store, error)
	Save(ctx context.Context, s *Store) error
}

// Compile-time interface guards.
var (
	_ Persister = (*FileState)(nil)
	_ Persister = (*InsightStore)(nil)
)

// FileState persists the store as a JSON document on local disk.
type FileState struct {
	path   string
	logger *zap.Logger
}

// NewFileState returns a persister writing to path.
func NewFileState(path string, logger *zap.Logger) *FileState {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileState{path: path, logger: logger}
}

// Path returns the state file location.
func (f *FileState) Path() string { return f.path }

// Load reads the state file. A missing or corrupt file yields an empty store
// and a nil error.
func (f *FileState) Load(_ context.Context, alpha float64, signals ...string) (*Store, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.logger.Info("no baseline state yet; starting fresh", zap.String("path", f.path))
		} else {
			f.logger.Warn("baseline state unreadable; starting fresh",
				zap.String("path", f.path),
				zap.Error(err),
			)
		}
		return NewStore(alpha, signals...), nil
	}

	s, err := decodeStore(data, alpha, signals...)
	if err != nil {
		f.logger.Warn("baseline state corrupt; starting fresh",
			zap.String("path", f.path),
			zap.Error(err),
		)
		return NewStore(alpha, signals...), nil
	}

	f.logger.Debug("baseline state loaded",
		zap.String("path", f.path),
		zap.Int("identities", s.Len()),
	)
	return s, nil
}

// Save writes the document to a unique temp file beside path, syncs it, and
// renames it over path. Concurrent savers each rename a complete document.
func (f *FileState) Save(_ context.Context, s *Store) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write baseline state: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace baseline state: %w", err)
	}
	return nil
}

// writeSynced writes data to file, syncs, and closes it.
func writeSynced(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
