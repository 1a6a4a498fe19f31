package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tilemesh/server/internal/tilegrid"
	"github.com/tilemesh/server/pkg/extent"
)

// Config contains byte cache configuration.
type Config struct {
	TileBytesMB     int
	TileTTL         time.Duration
	ManifestEntries int
}

// Manager holds the encoded-tile byte cache and the view manifest
// cache. Encoded PNGs live in a bigcache sized in megabytes with a
// TTL; view manifests are small JSON documents kept in a counted LRU
// that is purged whenever a tile settles, since settling changes the
// states the manifests report.
type Manager struct {
	tileBytes *bigcache.BigCache
	manifests *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	tileBytesConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       100 * 1024, // 100KB per encoded tile
		HardMaxCacheSize:   cfg.TileBytesMB,
		Verbose:            false,
	}

	tileBytes, err := bigcache.New(context.Background(), tileBytesConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile byte cache: %w", err)
	}

	manifests, err := lru.New[string, []byte](cfg.ManifestEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest cache: %w", err)
	}

	return &Manager{
		tileBytes: tileBytes,
		manifests: manifests,
	}, nil
}

// GetTileBytes retrieves an encoded tile from cache.
func (m *Manager) GetTileBytes(key string) ([]byte, bool) {
	data, err := m.tileBytes.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTileBytes stores an encoded tile in cache.
func (m *Manager) SetTileBytes(key string, data []byte) error {
	return m.tileBytes.Set(key, data)
}

// GetManifest retrieves a view manifest from cache.
func (m *Manager) GetManifest(key string) ([]byte, bool) {
	return m.manifests.Get(key)
}

// SetManifest stores a view manifest in cache.
func (m *Manager) SetManifest(key string, data []byte) {
	m.manifests.Add(key, data)
}

// PurgeManifests drops every cached manifest. Called when tile states
// move so stale per-tile states are never served.
func (m *Manager) PurgeManifests() {
	m.manifests.Purge()
}

// TileKey generates a byte cache key for a map tile.
func TileKey(mapID string, c tilegrid.TileCoord) string {
	return fmt.Sprintf("tile:%s:%s", mapID, c.Key())
}

// ViewKey generates a manifest cache key for a planned view.
func ViewKey(mapID string, ex extent.Extent, resolution float64) string {
	return fmt.Sprintf("view:%s:%g,%g,%g,%g@%g", mapID, ex.MinX, ex.MinY, ex.MaxX, ex.MaxY, resolution)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_bytes_len":     m.tileBytes.Len(),
		"tile_bytes_cap":     m.tileBytes.Capacity(),
		"manifest_cache_len": m.manifests.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileBytes.Close()
}
