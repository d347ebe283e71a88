package main

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/signage/internal/config"
	"github.com/Nixie-Tech-LLC/signage/internal/logging"
)

// LoadEnvironment reads and validates the configuration, then sets up logging.
func LoadEnvironment(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logging.Setup(cfg.Environment, cfg.LogLevel)
	log.Info().
		Str("environment", cfg.Environment).
		Str("schedules_file", cfg.SchedulesFile).
		Str("player", cfg.Player.Driver).
		Str("timezone", cfg.Location().String()).
		Bool("auth", cfg.AuthEnabled()).
		Msg("configuration loaded")

	if !cfg.AuthEnabled() {
		log.Warn().Msg("jwt_secret is empty, the API is not authenticated")
	}
	return cfg, nil
}
