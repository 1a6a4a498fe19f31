package cache

import (
	"github.com/tilemesh/server/internal/tile"
	"github.com/tilemesh/server/internal/tilegrid"
)

// TileCache keeps live tiles ordered by recency of use. Eviction is
// the only place tiles are destroyed: everything else holds borrowed
// references and watches for state changes instead of owning the tile.
type TileCache struct {
	*LRU[tile.Tile]
}

// NewTileCache returns an empty tile cache. A non-positive
// highWaterMark selects DefaultHighWaterMark.
func NewTileCache(highWaterMark int) *TileCache {
	return &TileCache{LRU: NewLRU[tile.Tile](highWaterMark)}
}

// ExpireCache disposes least recently used tiles while the cache sits
// above its high water mark, stopping at the first tile a current
// frame still needs. usedTiles maps zoom level to the tile range the
// latest planned views cover; a nil map protects nothing.
func (c *TileCache) ExpireCache(usedTiles map[int]tilegrid.TileRange) {
	for c.CanExpireCache() {
		t := c.PeekLast()
		if r, ok := usedTiles[t.Coord().Z]; ok && r.Contains(t.Coord()) {
			break
		}
		c.Pop().Dispose()
	}
}

// PruneExceptNewestZ disposes every tile that is not on the zoom
// level of the most recently used tile. Empty caches are left alone.
func (c *TileCache) PruneExceptNewestZ() {
	if c.Count() == 0 {
		return
	}
	coord, err := tilegrid.ParseKey(c.PeekFirstKey())
	if err != nil {
		return
	}
	var doomed []string
	c.ForEach(func(key string, t tile.Tile) {
		if t.Coord().Z != coord.Z {
			doomed = append(doomed, key)
		}
	})
	for _, key := range doomed {
		c.Remove(key).Dispose()
	}
}

// DisposeAll disposes and drops every tile.
func (c *TileCache) DisposeAll() {
	var doomed []string
	c.ForEach(func(key string, t tile.Tile) {
		doomed = append(doomed, key)
	})
	for _, key := range doomed {
		c.Remove(key).Dispose()
	}
}
