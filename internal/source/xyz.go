package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tilemesh/server/internal/tile"
	"github.com/tilemesh/server/internal/tilegrid"
)

// XYZ fetches tiles from a remote slippy-map endpoint. URL templates
// use {z}, {x} and {y} placeholders; {y} counts rows from the top as
// slippy URLs do, while {-y} passes the grid's TMS row through
// unchanged.
type XYZ struct {
	urlTemplate string
	client      *http.Client
}

// NewXYZ returns a fetcher for the template. A nil client gets a
// default with a 30 second timeout.
func NewXYZ(urlTemplate string, client *http.Client) *XYZ {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &XYZ{urlTemplate: urlTemplate, client: client}
}

// URL returns the expanded request URL for a coordinate.
func (s *XYZ) URL(c tilegrid.TileCoord) string {
	slippyY := c.Y
	if c.Z >= 0 {
		slippyY = (1 << uint(c.Z)) - 1 - c.Y
	}
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(c.Z),
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(slippyY),
		"{-y}", strconv.Itoa(c.Y),
	)
	return r.Replace(s.urlTemplate)
}

// Fetch downloads and decodes one tile. 404 and 204 responses map to
// tile.ErrNoData.
func (s *XYZ) Fetch(ctx context.Context, c tilegrid.TileCoord) (image.Image, error) {
	url := s.URL(c)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "tilemesh/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, tile.ErrNoData
	default:
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile %s: %w", c.Key(), err)
	}
	return img, nil
}

// Close drops idle connections.
func (s *XYZ) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
