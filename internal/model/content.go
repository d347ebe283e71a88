package model

import "time"

// Content is a media asset referenced by CMS playlist items.
type Content struct {
	ID              int       `db:"id"               json:"id"`
	Name            string    `db:"name"             json:"name"`
	Type            string    `db:"type"             json:"type"`
	URL             string    `db:"url"              json:"url"`
	DefaultDuration int       `db:"default_duration" json:"default_duration"`
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
}
