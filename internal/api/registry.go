package api

import (
	"github.com/tilemesh/server/internal/service"
)

// MapInfo describes one configured map in listing responses.
type MapInfo struct {
	ID         string `json:"id"`
	Projection string `json:"projection"`
	MinZoom    int    `json:"min_zoom"`
	MaxZoom    int    `json:"max_zoom"`
	TileURL    string `json:"tile_url"`
}

// MapRegistry holds the map services for all configured maps. It is
// populated once at startup and read-only afterwards.
type MapRegistry struct {
	services map[string]*service.MapService
	order    []string
	title    string
}

// NewMapRegistry creates an empty registry.
func NewMapRegistry(title string) *MapRegistry {
	return &MapRegistry{
		services: make(map[string]*service.MapService),
		title:    title,
	}
}

// Register adds a map service under its map ID.
func (r *MapRegistry) Register(svc *service.MapService) {
	id := svc.ID()
	if _, ok := r.services[id]; !ok {
		r.order = append(r.order, id)
	}
	r.services[id] = svc
}

// Get returns the service for a map, or nil if not configured.
func (r *MapRegistry) Get(mapID string) *service.MapService {
	return r.services[mapID]
}

// MapIDs returns all map IDs in registration order.
func (r *MapRegistry) MapIDs() []string {
	return r.order
}

// Title returns the configured site title.
func (r *MapRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "TileMesh"
}

// Maps returns listing info for all registered maps.
func (r *MapRegistry) Maps() []MapInfo {
	infos := make([]MapInfo, 0, len(r.order))
	for _, id := range r.order {
		svc := r.services[id]
		grid := svc.Grid()
		infos = append(infos, MapInfo{
			ID:         id,
			Projection: svc.Projection().Code(),
			MinZoom:    grid.MinZoom(),
			MaxZoom:    grid.MaxZoom(),
			TileURL:    "/maps/" + id + "/tiles/{z}/{x}/{y}.png",
		})
	}
	return infos
}
