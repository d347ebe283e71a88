package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/Nixie-Tech-LLC/signage/internal/db"
	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// StateStore remembers which schedule drives playback between ticks.
type StateStore interface {
	Load(ctx context.Context) (model.ActivationState, error)
	Save(ctx context.Context, state model.ActivationState) error
}

type MemoryStateStore struct {
	mu    sync.Mutex
	state model.ActivationState
}

func NewMemoryStateStore() *MemoryStateStore { return &MemoryStateStore{} }

func (m *MemoryStateStore) Load(context.Context) (model.ActivationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *MemoryStateStore) Save(_ context.Context, state model.ActivationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// FileStateStore keeps the state next to the schedule document so a
// one-shot "check" run remembers the previous winner.
type FileStateStore struct {
	path string
}

func NewFileStateStore(path string) *FileStateStore { return &FileStateStore{path: path} }

func (f *FileStateStore) Load(context.Context) (model.ActivationState, error) {
	var state model.ActivationState
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("read activation state: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.ActivationState{}, fmt.Errorf("decode activation state: %w", err)
	}
	return state, nil
}

func (f *FileStateStore) Save(_ context.Context, state model.ActivationState) error {
	return db.WriteJSONFile(f.path, state)
}
