// Package config handles configuration loading for the tile server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source types.
const (
	SourceMBTiles = "mbtiles"
	SourceXYZ     = "xyz"
	SourceStatic  = "static"
	SourceDebug   = "debug"
)

// Config represents the server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Cache  CacheConfig  `yaml:"cache"`
	Queue  QueueConfig  `yaml:"queue"`
	Reproj ReprojConfig `yaml:"reproj"`
	Maps   []MapConfig  `yaml:"maps"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host                string   `yaml:"host"`
	Port                int      `yaml:"port"`
	Title               string   `yaml:"title"`
	CORSOrigins         []string `yaml:"cors_origins"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
}

// CacheConfig contains tile and manifest cache settings.
type CacheConfig struct {
	TileHighWaterMark int `yaml:"tile_high_water_mark"`
	BytesMB           int `yaml:"bytes_mb"`
	TTLMinutes        int `yaml:"ttl_minutes"`
	ManifestEntries   int `yaml:"manifest_entries"`
}

// QueueConfig bounds concurrent tile loads per map.
type QueueConfig struct {
	MaxTotalLoading int `yaml:"max_total_loading"`
	MaxNewLoads     int `yaml:"max_new_loads"`
}

// ReprojConfig tunes reprojected rendering. Gutter is the default for
// sources that do not set their own.
type ReprojConfig struct {
	ErrorThresholdPixels float64 `yaml:"error_threshold_pixels"`
	RenderEdges          bool    `yaml:"render_edges"`
	Gutter               int     `yaml:"gutter"`
}

// MapConfig describes one served map.
type MapConfig struct {
	Name       string       `yaml:"name"`
	Projection string       `yaml:"projection"`
	Grid       *GridConfig  `yaml:"grid"`
	Source     SourceConfig `yaml:"source"`
}

// GridConfig describes a tile pyramid. Resolutions pin the levels
// exactly; max_zoom alone asks for a power-of-two pyramid over the
// projection extent. A nil grid means max_zoom at its default.
type GridConfig struct {
	Resolutions []float64   `yaml:"resolutions"`
	MaxZoom     *int        `yaml:"max_zoom"`
	MinZoom     int         `yaml:"min_zoom"`
	Origin      []float64   `yaml:"origin"`
	Origins     [][]float64 `yaml:"origins"`
	TileSize    int         `yaml:"tile_size"`
	TileSizes   []int       `yaml:"tile_sizes"`
	Extent      []float64   `yaml:"extent"`
}

// SourceConfig describes where a map's tiles come from. Projection and
// grid default to the map's own; setting either turns the map into a
// reprojecting one.
type SourceConfig struct {
	Type       string      `yaml:"type"`
	Path       string      `yaml:"path"`
	URL        string      `yaml:"url"`
	Projection string      `yaml:"projection"`
	Grid       *GridConfig `yaml:"grid"`
	Gutter     int         `yaml:"gutter"`
	TileSize   int         `yaml:"tile_size"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// DefaultConfig returns the default configuration: one debug map in
// web mercator, so the server is usable with no config file at all.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			CORSOrigins:         []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 60,
		},
		Cache: CacheConfig{
			TileHighWaterMark: 2048,
			BytesMB:           64,
			TTLMinutes:        10,
			ManifestEntries:   128,
		},
		Queue: QueueConfig{
			MaxTotalLoading: 16,
			MaxNewLoads:     2,
		},
		Reproj: ReprojConfig{
			ErrorThresholdPixels: 0.5,
		},
		Maps: []MapConfig{
			{
				Name:       "debug",
				Projection: "EPSG:3857",
				Source:     SourceConfig{Type: SourceDebug},
			},
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = defaults.Server.ReadTimeoutSeconds
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = defaults.Server.WriteTimeoutSeconds
	}
	if cfg.Cache.TileHighWaterMark == 0 {
		cfg.Cache.TileHighWaterMark = defaults.Cache.TileHighWaterMark
	}
	if cfg.Cache.BytesMB == 0 {
		cfg.Cache.BytesMB = defaults.Cache.BytesMB
	}
	if cfg.Cache.TTLMinutes == 0 {
		cfg.Cache.TTLMinutes = defaults.Cache.TTLMinutes
	}
	if cfg.Cache.ManifestEntries == 0 {
		cfg.Cache.ManifestEntries = defaults.Cache.ManifestEntries
	}
	if cfg.Queue.MaxTotalLoading == 0 {
		cfg.Queue.MaxTotalLoading = defaults.Queue.MaxTotalLoading
	}
	if cfg.Queue.MaxNewLoads == 0 {
		cfg.Queue.MaxNewLoads = defaults.Queue.MaxNewLoads
	}
	if cfg.Reproj.ErrorThresholdPixels == 0 {
		cfg.Reproj.ErrorThresholdPixels = defaults.Reproj.ErrorThresholdPixels
	}
	if len(cfg.Maps) == 0 {
		cfg.Maps = defaults.Maps
	}
}

// Validate rejects configurations main could not build services from.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	seen := make(map[string]bool)
	for i := range c.Maps {
		m := &c.Maps[i]
		if m.Name == "" {
			return fmt.Errorf("map %d: name required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("map %q configured twice", m.Name)
		}
		seen[m.Name] = true
		if m.Projection == "" {
			return fmt.Errorf("map %q: projection required", m.Name)
		}
		if err := validateGrid(m.Grid); err != nil {
			return fmt.Errorf("map %q: %w", m.Name, err)
		}
		if err := validateSource(&m.Source); err != nil {
			return fmt.Errorf("map %q: %w", m.Name, err)
		}
	}
	return nil
}

func validateGrid(g *GridConfig) error {
	if g == nil {
		return nil
	}
	if len(g.Origin) != 0 && len(g.Origin) != 2 {
		return fmt.Errorf("grid origin must be [x, y]")
	}
	for _, o := range g.Origins {
		if len(o) != 2 {
			return fmt.Errorf("grid origins entries must be [x, y]")
		}
	}
	if len(g.Extent) != 0 && len(g.Extent) != 4 {
		return fmt.Errorf("grid extent must be [minx, miny, maxx, maxy]")
	}
	if g.MaxZoom != nil && *g.MaxZoom < 0 {
		return fmt.Errorf("grid max_zoom must not be negative")
	}
	return nil
}

func validateSource(s *SourceConfig) error {
	switch s.Type {
	case SourceMBTiles:
		if s.Path == "" {
			return fmt.Errorf("mbtiles source needs a path")
		}
	case SourceXYZ:
		if s.URL == "" {
			return fmt.Errorf("xyz source needs a url")
		}
	case SourceStatic:
		if s.Path == "" {
			return fmt.Errorf("static source needs a path")
		}
	case SourceDebug:
	case "":
		return fmt.Errorf("source type required")
	default:
		return fmt.Errorf("unknown source type %q", s.Type)
	}
	if s.Gutter < 0 {
		return fmt.Errorf("source gutter must not be negative")
	}
	return validateGrid(s.Grid)
}
