// exposes the persistence contracts the schedule service and activation loop depend on
package db

import (
	"context"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
)

// ErrPlaylistNotFound is returned by playlist stores for unknown names.
var ErrPlaylistNotFound = schedule.ErrPlaylistNotFound

// ScheduleStore persists the whole schedule set as one document.
type ScheduleStore interface {
	// Load returns a snapshot of every schedule. A missing document is an
	// empty set, not an error.
	Load(ctx context.Context) ([]model.Schedule, error)
	// Save replaces the document atomically.
	Save(ctx context.Context, schedules []model.Schedule) error
	// Update runs fn against a fresh snapshot and saves its result, holding
	// the writer lock for the whole read-modify-write. Returning an error
	// from fn leaves the document untouched.
	Update(ctx context.Context, fn func([]model.Schedule) ([]model.Schedule, error)) error
}

// PlaylistStore resolves playlists by name.
type PlaylistStore interface {
	GetPlaylist(ctx context.Context, name string) (*model.Playlist, error)
}

// compile-time checks
var (
	_ ScheduleStore = (*FileScheduleStore)(nil)
	_ ScheduleStore = (*MemoryScheduleStore)(nil)
	_ PlaylistStore = (*DirPlaylistStore)(nil)
	_ PlaylistStore = (*PGPlaylistStore)(nil)
)
