package model

import "time"

// ActivationState is what the activation loop remembers between ticks:
// the schedule currently driving playback. It is persisted so that ticks
// triggered by separate processes (cron) still see the previous winner.
type ActivationState struct {
	ActiveID          string      `json:"active_id,omitempty"`
	ActiveName        string      `json:"active_name,omitempty"`
	ActivePlaylist    string      `json:"active_playlist,omitempty"`
	ActiveWindow      string      `json:"active_window,omitempty"` // day key of the running window
	ActiveSince       *time.Time  `json:"active_since,omitempty"`
	ActivePostActions PostActions `json:"active_post_actions"`
	ActiveOnceOnly    bool        `json:"active_once_only"`
	LastTick          *time.Time  `json:"last_tick,omitempty"`
}

// HasActive reports whether a schedule currently owns playback.
func (s ActivationState) HasActive() bool { return s.ActiveID != "" }

// ClearActive forgets the active schedule.
func (s *ActivationState) ClearActive() {
	s.ActiveID = ""
	s.ActiveName = ""
	s.ActivePlaylist = ""
	s.ActiveWindow = ""
	s.ActiveSince = nil
	s.ActivePostActions = PostActions{}
	s.ActiveOnceOnly = false
}
