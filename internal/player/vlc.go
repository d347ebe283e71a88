package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/db"
)

// VLCConfig configures the VLC HTTP interface client.
type VLCConfig struct {
	BaseURL         string // e.g. http://localhost:8080
	Password        string
	MediaDir        string
	DefaultPlaylist string
	Timeout         time.Duration
}

// VLCPlayer controls VLC through its HTTP interface (status.json commands).
type VLCPlayer struct {
	cfg       VLCConfig
	client    *http.Client
	playlists db.PlaylistStore
	capturer  *Capturer
}

func NewVLCPlayer(cfg VLCConfig, playlists db.PlaylistStore, capturer *Capturer) *VLCPlayer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &VLCPlayer{
		cfg:       cfg,
		client:    &http.Client{Timeout: timeout},
		playlists: playlists,
		capturer:  capturer,
	}
}

func (p *VLCPlayer) command(ctx context.Context, command string, params url.Values) error {
	q := url.Values{}
	q.Set("command", command)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/requests/status.json?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build vlc request: %w", err)
	}
	req.SetBasicAuth("", p.cfg.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("vlc %s: %w", command, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vlc %s: unexpected status %d", command, resp.StatusCode)
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// LoadAndPlay empties VLC's playlist, enqueues every playable item, applies
// loop and shuffle, and starts playback.
func (p *VLCPlayer) LoadAndPlay(ctx context.Context, name string) error {
	pl, err := p.playlists.GetPlaylist(ctx, name)
	if err != nil {
		return fmt.Errorf("load playlist %q: %w", name, err)
	}

	if err := p.command(ctx, "pl_empty", nil); err != nil {
		return err
	}

	queued := 0
	for _, item := range pl.Items {
		input := p.resolve(item.Source())
		if input == "" {
			log.Warn().Str("playlist", name).Str("file", item.Source()).Msg("skipping missing media file")
			continue
		}
		if err := p.command(ctx, "in_enqueue", url.Values{"input": {input}}); err != nil {
			return err
		}
		queued++
	}
	if queued == 0 {
		return fmt.Errorf("playlist %q has no playable items", name)
	}

	if err := p.command(ctx, "pl_loop", url.Values{"val": {onOff(pl.Settings.Loop)}}); err != nil {
		return err
	}
	if err := p.command(ctx, "pl_random", url.Values{"val": {onOff(pl.Settings.Shuffle)}}); err != nil {
		return err
	}
	if err := p.command(ctx, "pl_play", nil); err != nil {
		return err
	}

	log.Info().Str("playlist", name).Int("items", queued).Msg("playlist loaded into vlc")
	return nil
}

// resolve maps a playlist item to something VLC can open. Remote URLs pass
// through; local names are looked up by basename in the media directory.
func (p *VLCPlayer) resolve(source string) string {
	if strings.Contains(source, "://") {
		return source
	}
	if p.cfg.MediaDir == "" {
		return source
	}
	full := filepath.Join(p.cfg.MediaDir, filepath.Base(source))
	if _, err := os.Stat(full); err != nil {
		return ""
	}
	return full
}

func (p *VLCPlayer) Stop(ctx context.Context) error {
	return p.command(ctx, "pl_stop", nil)
}

// RevertToDefault loads the configured default playlist, or stops playback
// when there is none.
func (p *VLCPlayer) RevertToDefault(ctx context.Context) error {
	if p.cfg.DefaultPlaylist == "" {
		return p.Stop(ctx)
	}
	return p.LoadAndPlay(ctx, p.cfg.DefaultPlaylist)
}

var ErrNoCapturer = errors.New("screenshot capture is not configured")

func (p *VLCPlayer) CaptureScreenshot(ctx context.Context) error {
	if p.capturer == nil {
		return ErrNoCapturer
	}
	_, err := p.capturer.Capture(ctx)
	return err
}
