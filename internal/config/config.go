package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SIGNAGE_JWT_SECRET.
const EnvPrefix = "SIGNAGE"

var ErrInvalidConfig = errors.New("invalid configuration")

type PlayerConfig struct {
	Driver          string `mapstructure:"driver"` // vlc, mqtt or log
	VLCURL          string `mapstructure:"vlc_url"`
	VLCPassword     string `mapstructure:"vlc_password"`
	MediaDir        string `mapstructure:"media_dir"`
	DefaultPlaylist string `mapstructure:"default_playlist"`
	MQTTBroker      string `mapstructure:"mqtt_broker"`
	MQTTClientID    string `mapstructure:"mqtt_client_id"`
	DeviceID        string `mapstructure:"device_id"`
}

type ScreenshotConfig struct {
	Command         string `mapstructure:"command"`
	Dir             string `mapstructure:"dir"`
	UseSpaces       bool   `mapstructure:"use_spaces"`
	SpacesEndpoint  string `mapstructure:"spaces_endpoint"`
	SpacesRegion    string `mapstructure:"spaces_region"`
	SpacesBucket    string `mapstructure:"spaces_bucket"`
	SpacesCDNURL    string `mapstructure:"spaces_cdn_url"`
	SpacesAccessKey string `mapstructure:"spaces_access_key"`
	SpacesSecretKey string `mapstructure:"spaces_secret_key"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Config holds every setting of the signage daemon.
type Config struct {
	Environment       string        `mapstructure:"environment"`
	ServerAddress     string        `mapstructure:"server_address"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AdminUser         string        `mapstructure:"admin_user"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash"`
	SchedulesFile     string        `mapstructure:"schedules_file"`
	StateFile         string        `mapstructure:"state_file"`
	PlaylistsDir      string        `mapstructure:"playlists_dir"`
	DatabaseURL       string        `mapstructure:"database_url"`
	MigrationsPath    string        `mapstructure:"migrations_path"`
	Timezone          string        `mapstructure:"timezone"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	PlayerTimeout     time.Duration `mapstructure:"player_timeout"`
	WatchSchedules    bool          `mapstructure:"watch_schedules"`
	LogLevel          string        `mapstructure:"log_level"`

	Player     PlayerConfig     `mapstructure:"player"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// Location resolves the configured timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// AuthEnabled reports whether the API sits behind JWT auth.
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("server_address", ":8081")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_password_hash", "")
	v.SetDefault("schedules_file", "/opt/pisignage/data/schedules.json")
	v.SetDefault("state_file", "")
	v.SetDefault("playlists_dir", "/opt/pisignage/config/playlists")
	v.SetDefault("database_url", "")
	v.SetDefault("migrations_path", "./migrations")
	v.SetDefault("timezone", "Local")
	v.SetDefault("tick_interval", "30s")
	v.SetDefault("player_timeout", "10s")
	v.SetDefault("watch_schedules", true)
	v.SetDefault("log_level", "info")

	v.SetDefault("player.driver", "vlc")
	v.SetDefault("player.vlc_url", "http://127.0.0.1:8080")
	v.SetDefault("player.vlc_password", "pisignage")
	v.SetDefault("player.media_dir", "/opt/pisignage/media")
	v.SetDefault("player.default_playlist", "")
	v.SetDefault("player.mqtt_broker", "")
	v.SetDefault("player.mqtt_client_id", "signaged")
	v.SetDefault("player.device_id", "")

	v.SetDefault("screenshot.command", "raspi2png -p {file}")
	v.SetDefault("screenshot.dir", "/opt/pisignage/screenshots")
	v.SetDefault("screenshot.use_spaces", false)
	v.SetDefault("screenshot.spaces_endpoint", "")
	v.SetDefault("screenshot.spaces_region", "")
	v.SetDefault("screenshot.spaces_bucket", "")
	v.SetDefault("screenshot.spaces_cdn_url", "")
	v.SetDefault("screenshot.spaces_access_key", "")
	v.SetDefault("screenshot.spaces_secret_key", "")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Load reads .env, an optional YAML file and SIGNAGE_* environment
// variables, in increasing order of precedence. An empty configFile looks
// for signage.yaml in the working directory and /etc/signage.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("signage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/signage")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(filepath.Dir(cfg.SchedulesFile), "activation_state.json")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every setting that cannot work.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.SchedulesFile == "" {
		problems = append(problems, "schedules_file is required")
	}
	if cfg.TickInterval < time.Second {
		problems = append(problems, "tick_interval must be at least 1s")
	}
	if cfg.PlayerTimeout <= 0 {
		problems = append(problems, "player_timeout must be positive")
	}
	if cfg.Timezone != "" && cfg.Timezone != "Local" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("timezone %q is unknown", cfg.Timezone))
		}
	}

	switch cfg.Player.Driver {
	case "vlc":
		if cfg.Player.VLCURL == "" {
			problems = append(problems, "player.vlc_url is required for the vlc driver")
		}
	case "mqtt":
		if cfg.Player.MQTTBroker == "" || cfg.Player.DeviceID == "" {
			problems = append(problems, "player.mqtt_broker and player.device_id are required for the mqtt driver")
		}
	case "log":
	default:
		problems = append(problems, fmt.Sprintf("player.driver %q must be one of vlc, mqtt, log", cfg.Player.Driver))
	}

	if cfg.AuthEnabled() && cfg.AdminPasswordHash == "" {
		problems = append(problems, "admin_password_hash is required when jwt_secret is set")
	}
	if cfg.Screenshot.UseSpaces && (cfg.Screenshot.SpacesBucket == "" || cfg.Screenshot.SpacesEndpoint == "") {
		problems = append(problems, "screenshot.spaces_bucket and screenshot.spaces_endpoint are required with use_spaces")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
