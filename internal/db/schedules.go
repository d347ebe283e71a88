// internal/db/schedules.go
package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// FileScheduleStore keeps schedules in a single pretty-printed JSON array.
// Writers are serialized in-process; readers never see a partial document
// because every save replaces the file by rename.
type FileScheduleStore struct {
	path string
	mu   sync.Mutex
}

func NewFileScheduleStore(path string) *FileScheduleStore {
	return &FileScheduleStore{path: path}
}

func (s *FileScheduleStore) Path() string { return s.path }

func (s *FileScheduleStore) Load(ctx context.Context) ([]model.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

func (s *FileScheduleStore) Save(ctx context.Context, schedules []model.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(schedules)
}

func (s *FileScheduleStore) Update(ctx context.Context, fn func([]model.Schedule) ([]model.Schedule, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load()
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.save(next)
}

func (s *FileScheduleStore) load() ([]model.Schedule, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Schedule{}, nil
	}
	if err != nil {
		return nil, &schedule.PersistenceError{Op: "read", Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []model.Schedule{}, nil
	}

	var out []model.Schedule
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &schedule.PersistenceError{Op: "decode", Err: fmt.Errorf("%s: %w", s.path, err)}
	}
	if out == nil {
		out = []model.Schedule{}
	}
	return out, nil
}

func (s *FileScheduleStore) save(schedules []model.Schedule) error {
	if schedules == nil {
		schedules = []model.Schedule{}
	}
	raw, err := json.MarshalIndent(schedules, "", "    ")
	if err != nil {
		return &schedule.PersistenceError{Op: "encode", Err: err}
	}
	raw = append(raw, '\n')

	if err := writeFileAtomic(s.path, raw, 0o644); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("failed to save schedules")
		return &schedule.PersistenceError{Op: "write", Err: err}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSONFile atomically writes v as indented JSON.
func WriteJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(raw, '\n'), 0o644)
}
