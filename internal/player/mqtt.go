package player

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/db"
)

// Message types published to devices.
const (
	MessagePlaylistLoad   = "playlist_load"
	MessagePlaybackStop   = "playback_stop"
	MessagePlaylistRevert = "playlist_revert"
	MessageScreenshot     = "screenshot_request"
)

// Command is the JSON payload published on tv/<device>/commands.
type Command struct {
	Type     string        `json:"type"`
	Playlist string        `json:"playlist,omitempty"`
	Items    []CommandItem `json:"items,omitempty"`
	Loop     bool          `json:"loop,omitempty"`
	Shuffle  bool          `json:"shuffle,omitempty"`
	Sent     int64         `json:"timestamp"`
}

type CommandItem struct {
	Source   string `json:"url"`
	Duration *int   `json:"duration,omitempty"`
}

// MQTTPlayer drives a networked screen by publishing commands to its topic.
type MQTTPlayer struct {
	client          mqtt.Client
	deviceID        string
	defaultPlaylist string
	playlists       db.PlaylistStore
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker          string
	ClientID        string
	DeviceID        string
	DefaultPlaylist string
}

// ConnectMQTT opens a broker connection for the scheduler.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func NewMQTTPlayer(client mqtt.Client, cfg MQTTConfig, playlists db.PlaylistStore) *MQTTPlayer {
	return &MQTTPlayer{
		client:          client,
		deviceID:        cfg.DeviceID,
		defaultPlaylist: cfg.DefaultPlaylist,
		playlists:       playlists,
	}
}

func (p *MQTTPlayer) Topic() string {
	return fmt.Sprintf("tv/%s/commands", p.deviceID)
}

func (p *MQTTPlayer) publish(ctx context.Context, cmd Command) error {
	cmd.Sent = time.Now().Unix()
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	token := p.client.Publish(p.Topic(), 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s to device %s: %w", cmd.Type, p.deviceID, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to send %s to device %s: %w", cmd.Type, p.deviceID, err)
	}
	log.Debug().Str("device_id", p.deviceID).Str("type", cmd.Type).Msg("command sent via MQTT")
	return nil
}

func (p *MQTTPlayer) LoadAndPlay(ctx context.Context, name string) error {
	pl, err := p.playlists.GetPlaylist(ctx, name)
	if err != nil {
		return fmt.Errorf("load playlist %q: %w", name, err)
	}
	cmd := Command{
		Type:     MessagePlaylistLoad,
		Playlist: name,
		Loop:     pl.Settings.Loop,
		Shuffle:  pl.Settings.Shuffle,
	}
	for _, it := range pl.Items {
		cmd.Items = append(cmd.Items, CommandItem{Source: it.Source(), Duration: it.Duration})
	}
	return p.publish(ctx, cmd)
}

func (p *MQTTPlayer) Stop(ctx context.Context) error {
	return p.publish(ctx, Command{Type: MessagePlaybackStop})
}

func (p *MQTTPlayer) RevertToDefault(ctx context.Context) error {
	if p.defaultPlaylist != "" {
		return p.LoadAndPlay(ctx, p.defaultPlaylist)
	}
	return p.publish(ctx, Command{Type: MessagePlaylistRevert})
}

func (p *MQTTPlayer) CaptureScreenshot(ctx context.Context) error {
	return p.publish(ctx, Command{Type: MessageScreenshot})
}
