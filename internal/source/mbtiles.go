package source

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/tilemesh/server/internal/tile"
	"github.com/tilemesh/server/internal/tilegrid"
)

// zstdMagic prefixes zstd frames; MBTiles produced by our
// preprocessing pipeline store tile blobs zstd-compressed.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// MBTiles serves tiles from an MBTiles archive. Rows follow the
// MBTiles TMS convention (row 0 at the bottom), which matches the
// grids built by tilegrid.XYZ, so coordinates pass through untouched.
type MBTiles struct {
	path    string
	db      *sql.DB
	decoder *zstd.Decoder

	mu       sync.RWMutex
	metadata map[string]string
}

// OpenMBTiles opens an archive for serving.
func OpenMBTiles(path string) (*MBTiles, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat mbtiles: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Archives are sometimes refreshed in place by a seeder; wait out
	// its write locks instead of failing reads.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	m := &MBTiles{path: path, db: db, decoder: decoder}
	if err := m.loadMetadata(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *MBTiles) loadMetadata() error {
	rows, err := m.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta[name] = value
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	m.mu.Lock()
	m.metadata = meta
	m.mu.Unlock()
	return nil
}

// Metadata returns the archive's metadata table.
func (m *MBTiles) Metadata() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta := make(map[string]string, len(m.metadata))
	for k, v := range m.metadata {
		meta[k] = v
	}
	return meta
}

// Fetch reads and decodes the tile blob at the coordinate. Missing
// rows map to tile.ErrNoData.
func (m *MBTiles) Fetch(ctx context.Context, c tilegrid.TileCoord) (image.Image, error) {
	var blob []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT tile_data FROM tiles
		WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?
	`, c.Z, c.X, c.Y).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, tile.ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tile %s: %w", c.Key(), err)
	}

	if bytes.HasPrefix(blob, zstdMagic) {
		blob, err = m.decoder.DecodeAll(blob, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress tile %s: %w", c.Key(), err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile %s: %w", c.Key(), err)
	}
	return img, nil
}

// Close releases the decoder and the database handle.
func (m *MBTiles) Close() error {
	m.decoder.Close()
	return m.db.Close()
}
