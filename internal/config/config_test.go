package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if len(cfg.Maps) != 1 || cfg.Maps[0].Name != "debug" {
		t.Errorf("expected the default debug map, got %+v", cfg.Maps)
	}
	if cfg.Maps[0].Source.Type != SourceDebug {
		t.Errorf("unexpected default source type: %q", cfg.Maps[0].Source.Type)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9000
  title: "Test Atlas"
  cors_origins: ["http://localhost:9999"]
cache:
  tile_high_water_mark: 64
  bytes_mb: 16
  ttl_minutes: 5
  manifest_entries: 32
queue:
  max_total_loading: 4
  max_new_loads: 1
reproj:
  error_threshold_pixels: 1.0
  render_edges: true
maps:
  - name: world
    projection: "EPSG:3857"
    grid:
      max_zoom: 10
    source:
      type: mbtiles
      path: "/data/world.mbtiles"
      projection: "EPSG:4326"
      gutter: 2
  - name: local
    projection: "EPSG:2056"
    grid:
      resolutions: [64, 32, 16, 8]
      origin: [2420000, 1030000]
      extent: [2420000, 1030000, 2900000, 1350000]
      tile_size: 512
    source:
      type: xyz
      url: "https://tiles.example.test/{z}/{x}/{y}.png"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.Title != "Test Atlas" {
		t.Errorf("unexpected title: %q", cfg.Server.Title)
	}
	if cfg.Cache.TileHighWaterMark != 64 || cfg.Cache.BytesMB != 16 {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Queue.MaxTotalLoading != 4 || cfg.Queue.MaxNewLoads != 1 {
		t.Errorf("unexpected queue config: %+v", cfg.Queue)
	}
	if cfg.Reproj.ErrorThresholdPixels != 1.0 || !cfg.Reproj.RenderEdges {
		t.Errorf("unexpected reproj config: %+v", cfg.Reproj)
	}

	if len(cfg.Maps) != 2 {
		t.Fatalf("expected 2 maps, got %d", len(cfg.Maps))
	}

	world := cfg.Maps[0]
	if world.Name != "world" || world.Projection != "EPSG:3857" {
		t.Errorf("unexpected first map: %+v", world)
	}
	if world.Grid == nil || world.Grid.MaxZoom == nil || *world.Grid.MaxZoom != 10 {
		t.Errorf("unexpected world grid: %+v", world.Grid)
	}
	if world.Source.Type != SourceMBTiles || world.Source.Path != "/data/world.mbtiles" {
		t.Errorf("unexpected world source: %+v", world.Source)
	}
	if world.Source.Projection != "EPSG:4326" || world.Source.Gutter != 2 {
		t.Errorf("unexpected world source reprojection: %+v", world.Source)
	}

	local := cfg.Maps[1]
	if local.Grid == nil {
		t.Fatal("expected grid on local map")
	}
	if len(local.Grid.Resolutions) != 4 || local.Grid.Resolutions[0] != 64 {
		t.Errorf("unexpected resolutions: %v", local.Grid.Resolutions)
	}
	if len(local.Grid.Origin) != 2 || local.Grid.Origin[0] != 2420000 {
		t.Errorf("unexpected origin: %v", local.Grid.Origin)
	}
	if len(local.Grid.Extent) != 4 || local.Grid.Extent[2] != 2900000 {
		t.Errorf("unexpected extent: %v", local.Grid.Extent)
	}
	if local.Grid.TileSize != 512 {
		t.Errorf("unexpected tile size: %d", local.Grid.TileSize)
	}
	if local.Source.Type != SourceXYZ || local.Source.URL == "" {
		t.Errorf("unexpected local source: %+v", local.Source)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
maps:
  - name: base
    projection: "EPSG:3857"
    source:
      type: debug
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeoutSeconds != 30 || cfg.Server.WriteTimeoutSeconds != 60 {
		t.Errorf("expected default timeouts, got %+v", cfg.Server)
	}
	if cfg.Cache.TileHighWaterMark != 2048 {
		t.Errorf("expected default high-water mark 2048, got %d", cfg.Cache.TileHighWaterMark)
	}
	if cfg.Cache.BytesMB != 64 || cfg.Cache.TTLMinutes != 10 || cfg.Cache.ManifestEntries != 128 {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Queue.MaxTotalLoading != 16 || cfg.Queue.MaxNewLoads != 2 {
		t.Errorf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Reproj.ErrorThresholdPixels != 0.5 {
		t.Errorf("expected default error threshold 0.5, got %g", cfg.Reproj.ErrorThresholdPixels)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			"duplicate map names",
			`
maps:
  - name: a
    projection: "EPSG:3857"
    source: {type: debug}
  - name: a
    projection: "EPSG:3857"
    source: {type: debug}
`,
		},
		{
			"missing projection",
			`
maps:
  - name: a
    source: {type: debug}
`,
		},
		{
			"unknown source type",
			`
maps:
  - name: a
    projection: "EPSG:3857"
    source: {type: wms}
`,
		},
		{
			"mbtiles without path",
			`
maps:
  - name: a
    projection: "EPSG:3857"
    source: {type: mbtiles}
`,
		},
		{
			"xyz without url",
			`
maps:
  - name: a
    projection: "EPSG:3857"
    source: {type: xyz}
`,
		},
		{
			"bad origin shape",
			`
maps:
  - name: a
    projection: "EPSG:3857"
    grid:
      resolutions: [4, 2, 1]
      origin: [1, 2, 3]
    source: {type: debug}
`,
		},
		{
			"bad extent shape",
			`
maps:
  - name: a
    projection: "EPSG:3857"
    grid:
      resolutions: [4, 2, 1]
      extent: [0, 0, 1]
    source: {type: debug}
`,
		},
		{
			"port out of range",
			`
server:
  port: 70000
`,
		},
		{
			"negative gutter",
			`
maps:
  - name: a
    projection: "EPSG:3857"
    source: {type: debug, gutter: -1}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write temp config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
