package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/config"
	"github.com/Nixie-Tech-LLC/signage/internal/db"
	"github.com/Nixie-Tech-LLC/signage/internal/player"
	"github.com/Nixie-Tech-LLC/signage/internal/redis"
	"github.com/Nixie-Tech-LLC/signage/internal/schedule"
	"github.com/Nixie-Tech-LLC/signage/internal/scheduler"
)

// engine holds the wired schedule engine and whatever must be closed on exit.
type engine struct {
	clock     schedule.Clock
	store     db.ScheduleStore
	playlists db.PlaylistStore
	service   *scheduler.Service
	activator *scheduler.Activator

	closers []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{
		clock: schedule.ZonedClock{Loc: cfg.Location()},
		store: db.NewFileScheduleStore(cfg.SchedulesFile),
	}

	playlists, err := e.initPlaylists(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.playlists = playlists

	p, err := e.initPlayer(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}

	state, lock, err := e.initState(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.service = scheduler.NewService(e.store, e.playlists, e.clock)
	e.activator = scheduler.NewActivator(scheduler.ActivatorConfig{
		Store:         e.store,
		Playlists:     e.playlists,
		Player:        p,
		State:         state,
		Clock:         e.clock,
		Lock:          lock,
		PlayerTimeout: cfg.PlayerTimeout,
	})
	return e, nil
}

// initPlaylists uses the CMS database when configured, the playlist
// directory otherwise.
func (e *engine) initPlaylists(ctx context.Context, cfg *config.Config) (db.PlaylistStore, error) {
	if cfg.DatabaseURL == "" {
		log.Info().Str("dir", cfg.PlaylistsDir).Msg("playlists read from directory")
		return db.NewDirPlaylistStore(cfg.PlaylistsDir), nil
	}

	conn, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	e.closers = append(e.closers, func() { _ = conn.Close() })

	if err := db.RunMigrations(ctx, conn, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	log.Info().Msg("playlists read from postgres")
	return db.NewPGPlaylistStore(conn), nil
}

func (e *engine) initPlayer(cfg *config.Config) (player.Player, error) {
	pc := cfg.Player
	switch pc.Driver {
	case "log":
		return player.NewLogPlayer(), nil

	case "mqtt":
		mc := player.MQTTConfig{
			Broker:          pc.MQTTBroker,
			ClientID:        pc.MQTTClientID,
			DeviceID:        pc.DeviceID,
			DefaultPlaylist: pc.DefaultPlaylist,
		}
		client, err := player.ConnectMQTT(mc)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { client.Disconnect(250) })
		return player.NewMQTTPlayer(client, mc, e.playlists), nil

	default:
		store, err := InitStorage(cfg)
		if err != nil {
			return nil, err
		}
		capturer, err := player.NewCapturer(cfg.Screenshot.Command, os.TempDir(), store)
		if err != nil {
			// playback still works, screenshots post-actions will fail
			log.Warn().Err(err).Msg("screenshot capture disabled")
		}
		return player.NewVLCPlayer(player.VLCConfig{
			BaseURL:         pc.VLCURL,
			Password:        pc.VLCPassword,
			MediaDir:        pc.MediaDir,
			DefaultPlaylist: pc.DefaultPlaylist,
			Timeout:         cfg.PlayerTimeout,
		}, e.playlists, capturer), nil
	}
}

// initState keeps the activation state in Redis when configured, which
// also enables the shared tick lock; otherwise in a file beside the
// schedules document.
func (e *engine) initState(ctx context.Context, cfg *config.Config) (scheduler.StateStore, scheduler.TickLocker, error) {
	if cfg.Redis.Address == "" {
		return scheduler.NewFileStateStore(cfg.StateFile), nil, nil
	}

	rdb, err := redis.Connect(ctx, redis.Config{
		Address:  cfg.Redis.Address,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	e.closers = append(e.closers, func() { _ = rdb.Close() })

	ttl := 2 * cfg.TickInterval
	if floor := 4 * cfg.PlayerTimeout; ttl < floor {
		ttl = floor
	}
	return redis.NewStateStore(rdb), redis.NewTickLock(rdb, ttl), nil
}
