package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/model"
)

// DefaultItemDuration is assumed for items that carry no duration.
const DefaultItemDuration = 10 * time.Second

// @ DIRECTORY PLAYLISTS

// DirPlaylistStore reads playlists from <dir>/<name>.json.
type DirPlaylistStore struct {
	dir string
}

func NewDirPlaylistStore(dir string) *DirPlaylistStore {
	return &DirPlaylistStore{dir: dir}
}

type playlistFile struct {
	Name        string                 `json:"name"`
	Description *string                `json:"description"`
	Items       []playlistFileItem     `json:"items"`
	Settings    model.PlaylistSettings `json:"settings"`
}

// playlistFileItem accepts both "video.mp4" and {"file": "video.mp4", "duration": 30}.
type playlistFileItem struct {
	File     string `json:"file"`
	Duration *int   `json:"duration"`
}

func (i *playlistFileItem) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		i.File = s
		return nil
	}
	type plain playlistFileItem
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = playlistFileItem(p)
	return nil
}

func (d *DirPlaylistStore) GetPlaylist(ctx context.Context, name string) (*model.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validPlaylistName(name) {
		return nil, ErrPlaylistNotFound
	}

	path := filepath.Join(d.dir, name+".json")
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read playlist %q: %w", name, err)
	}

	var pf playlistFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("decode playlist %q: %w", name, err)
	}

	p := &model.Playlist{
		Name:        name,
		Description: pf.Description,
		Settings:    pf.Settings,
	}
	if info, err := os.Stat(path); err == nil {
		p.UpdatedAt = info.ModTime()
	}
	for idx, it := range pf.Items {
		if strings.TrimSpace(it.File) == "" {
			continue
		}
		p.Items = append(p.Items, model.PlaylistItem{
			Position: idx + 1,
			File:     it.File,
			Duration: it.Duration,
		})
	}
	p.TotalDuration = totalDuration(p.Items)
	return p, nil
}

// validPlaylistName rejects names that would escape the playlists directory.
func validPlaylistName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// @ POSTGRES PLAYLISTS

// PGPlaylistStore resolves playlists from the CMS tables.
type PGPlaylistStore struct {
	db *sqlx.DB
}

func NewPGPlaylistStore(db *sqlx.DB) *PGPlaylistStore {
	return &PGPlaylistStore{db: db}
}

type playlistItemRow struct {
	ID              int            `db:"id"`
	Position        int            `db:"position"`
	Duration        *int           `db:"duration"`
	ContentID       int            `db:"content_id"`
	ContentName     string         `db:"content_name"`
	ContentType     sql.NullString `db:"content_type"`
	ContentURL      string         `db:"content_url"`
	DefaultDuration sql.NullInt64  `db:"default_duration"`
}

func (s *PGPlaylistStore) GetPlaylist(ctx context.Context, name string) (*model.Playlist, error) {
	var p model.Playlist
	const q = `
	SELECT id, name, description, updated_at
	  FROM playlists
	 WHERE name = $1
	 ORDER BY id
	 LIMIT 1;`
	if err := s.db.GetContext(ctx, &p, q, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlaylistNotFound
		}
		log.Error().Err(err).Str("playlist", name).Msg("[db] GetPlaylist: failed to select playlist")
		return nil, err
	}

	var rows []playlistItemRow
	const itemsQ = `
	SELECT
	  pi.id,
	  pi.position,
	  pi.duration,
	  c.id                 AS content_id,
	  c.name               AS content_name,
	  c.type               AS content_type,
	  c.url                AS content_url,
	  c.default_duration   AS default_duration
	FROM playlist_items pi
	JOIN content        c ON pi.content_id = c.id
	WHERE pi.playlist_id = $1
	ORDER BY pi.position;`
	if err := s.db.SelectContext(ctx, &rows, itemsQ, p.ID); err != nil {
		log.Error().Err(err).Int("playlist_id", p.ID).Msg("[db] GetPlaylist: failed to load items")
		return nil, err
	}

	for _, r := range rows {
		item := model.PlaylistItem{
			ID:       r.ID,
			Position: r.Position,
			Duration: r.Duration,
			Content: &model.Content{
				ID:   r.ContentID,
				Name: r.ContentName,
				Type: r.ContentType.String,
				URL:  r.ContentURL,
			},
		}
		if r.DefaultDuration.Valid {
			item.Content.DefaultDuration = int(r.DefaultDuration.Int64)
		}
		p.Items = append(p.Items, item)
	}
	p.TotalDuration = totalDuration(p.Items)
	return &p, nil
}

func totalDuration(items []model.PlaylistItem) time.Duration {
	var total time.Duration
	for _, it := range items {
		switch {
		case it.Duration != nil && *it.Duration > 0:
			total += time.Duration(*it.Duration) * time.Second
		case it.Content != nil && it.Content.DefaultDuration > 0:
			total += time.Duration(it.Content.DefaultDuration) * time.Second
		default:
			total += DefaultItemDuration
		}
	}
	return total
}
