package model

import "time"

// Playlist is the view the schedule engine has of a playlist owned by the
// playlist collaborator.
type Playlist struct {
	ID            int              `db:"id"          json:"id,omitempty"`
	Name          string           `db:"name"        json:"name"`
	Description   *string          `db:"description" json:"description,omitempty"`
	Items         []PlaylistItem   `db:"-"           json:"items"`
	Settings      PlaylistSettings `db:"-"           json:"settings"`
	TotalDuration time.Duration    `db:"-"           json:"-"`
	UpdatedAt     time.Time        `db:"updated_at"  json:"updated_at,omitempty"`
}

type PlaylistItem struct {
	ID       int      `db:"id"       json:"id,omitempty"`
	Position int      `db:"position" json:"position,omitempty"`
	File     string   `db:"-"        json:"file,omitempty"`
	Duration *int     `db:"duration" json:"duration,omitempty"` // seconds
	Content  *Content `db:"-"        json:"content,omitempty"`
}

type PlaylistSettings struct {
	Loop    bool `json:"loop"`
	Shuffle bool `json:"shuffle"`
}

// Source returns what a player should enqueue for the item.
func (i PlaylistItem) Source() string {
	if i.Content != nil && i.Content.URL != "" {
		return i.Content.URL
	}
	return i.File
}
