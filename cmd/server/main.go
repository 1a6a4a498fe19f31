// Package main is the entry point for the TileMesh server.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tilemesh/server/internal/api"
	"github.com/tilemesh/server/internal/cache"
	"github.com/tilemesh/server/internal/config"
	"github.com/tilemesh/server/internal/proj"
	"github.com/tilemesh/server/internal/service"
	"github.com/tilemesh/server/internal/source"
	"github.com/tilemesh/server/internal/tilegrid"
	"github.com/tilemesh/server/pkg/extent"
)

// defaultMaxZoom caps derived pyramids when a map's grid names none.
const defaultMaxZoom = 19

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	portOverride := flag.Int("port", 0, "Override the configured HTTP port")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portOverride != 0 {
		cfg.Server.Port = *portOverride
	}

	log.Printf("Starting TileMesh server on port %d", cfg.Server.Port)

	// Initialize byte cache (shared across all maps)
	byteCache, err := cache.NewManager(cache.Config{
		TileBytesMB:     cfg.Cache.BytesMB,
		TileTTL:         time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		ManifestEntries: cfg.Cache.ManifestEntries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	registry := api.NewMapRegistry(cfg.Server.Title)

	log.Printf("Initializing %d map(s)", len(cfg.Maps))

	// Initialize each map
	var services []*service.MapService
	var fetchers []source.Fetcher
	for _, mc := range cfg.Maps {
		mapProj, err := proj.Get(mc.Projection)
		if err != nil {
			log.Fatalf("  [%s] %v", mc.Name, err)
		}

		grid, err := buildGrid(mc.Grid, mapProj)
		if err != nil {
			log.Fatalf("  [%s] Failed to build grid: %v", mc.Name, err)
		}

		layer, err := buildLayer(mc, cfg.Reproj, mapProj)
		if err != nil {
			log.Fatalf("  [%s] Failed to build source: %v", mc.Name, err)
		}

		svc, err := service.NewMapService(service.MapServiceConfig{
			MapID:                mc.Name,
			Grid:                 grid,
			Proj:                 mapProj,
			Layer:                layer,
			Bytes:                byteCache,
			TileHighWaterMark:    cfg.Cache.TileHighWaterMark,
			MaxTotalLoading:      cfg.Queue.MaxTotalLoading,
			MaxNewLoads:          cfg.Queue.MaxNewLoads,
			ErrorThresholdPixels: cfg.Reproj.ErrorThresholdPixels,
			RenderEdges:          cfg.Reproj.RenderEdges,
		})
		if err != nil {
			log.Fatalf("  [%s] Failed to build service: %v", mc.Name, err)
		}

		registry.Register(svc)
		services = append(services, svc)
		fetchers = append(fetchers, layer.Fetcher)

		log.Printf("  [%s] %s z%d..%d, source %s",
			mc.Name, mc.Projection, grid.MinZoom(), grid.MaxZoom(), mc.Source.Type)
		if layer.Proj != nil && !proj.Equivalent(layer.Proj, mapProj) {
			log.Printf("  [%s] Reprojecting from %s", mc.Name, layer.Proj.Code())
		}
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	for _, svc := range services {
		if err := svc.Close(); err != nil {
			log.Printf("Failed to close map %s: %v", svc.ID(), err)
		}
	}
	for _, f := range fetchers {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close source: %v", err)
		}
	}
	byteCache.Close()

	log.Println("Server stopped")
}

// buildGrid constructs a map's pyramid from config. Without explicit
// resolutions it derives a power-of-two pyramid over the projection
// extent (or the configured one).
func buildGrid(gc *config.GridConfig, p *proj.Projection) (*tilegrid.TileGrid, error) {
	if gc == nil {
		gc = &config.GridConfig{}
	}

	if len(gc.Resolutions) == 0 {
		if gc.MinZoom != 0 {
			return nil, fmt.Errorf("min_zoom needs explicit resolutions")
		}
		maxZoom := defaultMaxZoom
		if gc.MaxZoom != nil {
			maxZoom = *gc.MaxZoom
		}
		if len(gc.Extent) == 4 {
			ex := extent.New(gc.Extent[0], gc.Extent[1], gc.Extent[2], gc.Extent[3])
			return tilegrid.XYZ(ex, maxZoom, gc.TileSize)
		}
		return tilegrid.ForProjection(p, maxZoom, gc.TileSize)
	}

	tcfg := tilegrid.Config{
		Resolutions: gc.Resolutions,
		MinZoom:     gc.MinZoom,
		TileSize:    gc.TileSize,
		TileSizes:   gc.TileSizes,
	}
	if len(gc.Extent) == 4 {
		ex := extent.New(gc.Extent[0], gc.Extent[1], gc.Extent[2], gc.Extent[3])
		tcfg.Extent = &ex
	}
	switch {
	case len(gc.Origin) == 2:
		origin := [2]float64{gc.Origin[0], gc.Origin[1]}
		tcfg.Origin = &origin
	case len(gc.Origins) > 0:
		origins := make([][2]float64, len(gc.Origins))
		for i, o := range gc.Origins {
			origins[i] = [2]float64{o[0], o[1]}
		}
		tcfg.Origins = origins
	case tcfg.Extent != nil:
		origin := tcfg.Extent.BottomLeft()
		tcfg.Origin = &origin
	case !p.Extent().IsEmpty():
		origin := p.Extent().BottomLeft()
		tcfg.Origin = &origin
	default:
		return nil, fmt.Errorf("grid origin required for projection %s", p.Code())
	}

	return tilegrid.New(tcfg)
}

// buildLayer constructs the source layer for one map, deriving the
// source grid when a reprojecting source does not name one.
func buildLayer(mc config.MapConfig, rc config.ReprojConfig, mapProj *proj.Projection) (source.Layer, error) {
	fetcher, err := buildFetcher(mc.Source)
	if err != nil {
		return source.Layer{}, err
	}

	layer := source.Layer{Fetcher: fetcher, Gutter: mc.Source.Gutter}
	if layer.Gutter == 0 {
		layer.Gutter = rc.Gutter
	}

	if mc.Source.Projection != "" {
		p, err := proj.Get(mc.Source.Projection)
		if err != nil {
			return source.Layer{}, err
		}
		layer.Proj = p
	}

	sourceProj := layer.Proj
	if sourceProj == nil {
		sourceProj = mapProj
	}
	if mc.Source.Grid != nil {
		g, err := buildGrid(mc.Source.Grid, sourceProj)
		if err != nil {
			return source.Layer{}, err
		}
		layer.Grid = g
	} else if !proj.Equivalent(sourceProj, mapProj) {
		// Reprojecting without an explicit source grid: derive one
		// over the source projection's extent.
		g, err := buildGrid(nil, sourceProj)
		if err != nil {
			return source.Layer{}, err
		}
		layer.Grid = g
	}

	return layer, nil
}

// buildFetcher constructs the tile fetcher for one source config.
func buildFetcher(sc config.SourceConfig) (source.Fetcher, error) {
	switch sc.Type {
	case config.SourceMBTiles:
		return source.OpenMBTiles(sc.Path)
	case config.SourceXYZ:
		return source.NewXYZ(sc.URL, nil), nil
	case config.SourceStatic:
		f, err := os.Open(sc.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open static image: %w", err)
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("failed to decode static image %s: %w", sc.Path, err)
		}
		return source.NewStatic(img), nil
	case config.SourceDebug:
		return source.NewDebug(sc.TileSize), nil
	default:
		return nil, fmt.Errorf("unknown source type %q", sc.Type)
	}
}
