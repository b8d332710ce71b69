package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML strings such as "1.5s" or "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Port     string `toml:"port"`
	DriverID string `toml:"driver_id"`

	Log        LogConfig        `toml:"log"`
	Backend    BackendConfig    `toml:"backend"`
	Routing    RoutingConfig    `toml:"routing"`
	MapData    MapDataConfig    `toml:"map_data"`
	Navigation NavigationConfig `toml:"navigation"`
	Location   LocationConfig   `toml:"location"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Dir    string `toml:"dir"`
	Stderr bool   `toml:"stderr"`
}

type BackendConfig struct {
	BaseURL        string   `toml:"base_url"`
	Timeout        Duration `toml:"timeout"`
	PollInterval   Duration `toml:"poll_interval"`
	ReportInterval Duration `toml:"report_interval"`
}

type RoutingConfig struct {
	OSRMURL string   `toml:"osrm_url"`
	Profile string   `toml:"profile"`
	Timeout Duration `toml:"timeout"`
}

type MapDataConfig struct {
	OverpassURL   string   `toml:"overpass_url"`
	RadiusDeg     float64  `toml:"radius_deg"`
	CellSizeDeg   float64  `toml:"cell_size_deg"`
	TTL           Duration `toml:"ttl"`
	Retention     Duration `toml:"retention"`
	MovementGateM float64  `toml:"movement_gate_m"`
	MinInterval   Duration `toml:"min_interval"`
	MaxBackoff    Duration `toml:"max_backoff"`
	IncludePlaces bool     `toml:"include_places"`
	Classes       []string `toml:"classes"`

	// Store selects the persistent tier: "", "postgres" or "redis".
	Store       string `toml:"store"`
	DatabaseURL string `toml:"database_url"`
	RedisAddr   string `toml:"redis_addr"`
}

type NavigationConfig struct {
	ManeuverThresholdM float64  `toml:"maneuver_threshold_m"`
	ArrivalThresholdM  float64  `toml:"arrival_threshold_m"`
	RequireIDCheck     bool     `toml:"require_id_check"`
	RouteRetryBase     Duration `toml:"route_retry_base"`
	RouteRetryMax      Duration `toml:"route_retry_max"`
}

type LocationConfig struct {
	// GPXPath replays a recorded track instead of a live device.
	GPXPath string  `toml:"gpx_path"`
	Speed   float64 `toml:"speed"`
	Loop    bool    `toml:"loop"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:     "8080",
		DriverID: "drv_demo",
		Log:      LogConfig{Level: "info", Stderr: true},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000/v1",
			Timeout:        Duration{10 * time.Second},
			PollInterval:   Duration{5 * time.Second},
			ReportInterval: Duration{5 * time.Second},
		},
		Routing: RoutingConfig{
			OSRMURL: "https://router.project-osrm.org",
			Profile: "driving",
			Timeout: Duration{15 * time.Second},
		},
		MapData: MapDataConfig{
			OverpassURL:   "https://overpass-api.de/api/interpreter",
			RadiusDeg:     0.015,
			CellSizeDeg:   0.01,
			TTL:           Duration{10 * time.Minute},
			Retention:     Duration{2 * time.Hour},
			MovementGateM: 500,
			MinInterval:   Duration{1500 * time.Millisecond},
			MaxBackoff:    Duration{30 * time.Second},
		},
		Navigation: NavigationConfig{
			ManeuverThresholdM: 30,
			ArrivalThresholdM:  50,
			RouteRetryBase:     Duration{2 * time.Second},
			RouteRetryMax:      Duration{60 * time.Second},
		},
		Location: LocationConfig{Speed: 1},
	}
}

// Load reads defaults, then the TOML file at path (a missing file is not an
// error), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config: decode %q: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = Get("PORT", cfg.Port)
	cfg.DriverID = Get("DRIVER_ID", cfg.DriverID)
	cfg.Log.Level = Get("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Dir = Get("LOG_DIR", cfg.Log.Dir)
	cfg.Backend.BaseURL = Get("BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Routing.OSRMURL = Get("OSRM_URL", cfg.Routing.OSRMURL)
	cfg.MapData.OverpassURL = Get("OVERPASS_URL", cfg.MapData.OverpassURL)
	cfg.MapData.Store = Get("MAP_STORE", cfg.MapData.Store)
	cfg.MapData.DatabaseURL = Get("DATABASE_URL", cfg.MapData.DatabaseURL)
	cfg.MapData.RedisAddr = Get("REDIS_ADDR", cfg.MapData.RedisAddr)
	cfg.Location.GPXPath = Get("GPX_PATH", cfg.Location.GPXPath)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DriverID) == "" {
		return errors.New("driver_id is required")
	}
	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	if c.Routing.OSRMURL == "" {
		return errors.New("routing.osrm_url is required")
	}
	if c.MapData.CellSizeDeg <= 0 {
		return errors.New("map_data.cell_size_deg must be positive")
	}
	if c.MapData.Retention.Duration < c.MapData.TTL.Duration {
		return errors.New("map_data.retention must not be shorter than map_data.ttl")
	}
	switch c.MapData.Store {
	case "", "none":
	case "postgres":
		if c.MapData.DatabaseURL == "" {
			return errors.New("map_data.database_url is required for the postgres store")
		}
	case "redis":
		if c.MapData.RedisAddr == "" {
			return errors.New("map_data.redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("map_data.store %q is not one of postgres, redis", c.MapData.Store)
	}
	return nil
}

// Get returns the environment value for key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
