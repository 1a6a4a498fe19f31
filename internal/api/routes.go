// Package api provides the HTTP surface of the tile server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tilemesh/server/internal/service"
	"github.com/tilemesh/server/pkg/extent"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *MapRegistry
	CORSOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", healthHandler)

	// Global map listing (not map-scoped)
	r.Get("/maps", mapsHandler(cfg.Registry))

	// Map-scoped routes: /maps/{map}/...
	r.Route("/maps/{map}", func(r chi.Router) {
		r.Use(mapMiddleware(cfg.Registry))

		r.Get("/tiles/{z}/{x}/{y}.png", mapTileHandler)
		r.Get("/view", mapViewHandler)
		r.Get("/stats", mapStatsHandler)
		r.Post("/prune", mapPruneHandler)
	})

	return r
}

// Context key for the map service
type ctxKey string

const mapServiceKey ctxKey = "mapService"

// mapMiddleware resolves the map from the URL and injects its service
// into the request context.
func mapMiddleware(registry *MapRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapID := chi.URLParam(r, "map")
			svc := registry.Get(mapID)
			if svc == nil {
				http.Error(w, "map not found: "+mapID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), mapServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getMapService(r *http.Request) *service.MapService {
	if svc, ok := r.Context().Value(mapServiceKey).(*service.MapService); ok {
		return svc
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// mapsHandler returns the list of configured maps.
func mapsHandler(registry *MapRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"title": registry.Title(),
			"maps":  registry.Maps(),
		})
	}
}

// mapTileHandler serves one composed tile as PNG.
func mapTileHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}

	z, err := strconv.Atoi(chi.URLParam(r, "z"))
	if err != nil {
		http.Error(w, "invalid z", http.StatusBadRequest)
		return
	}
	x, err := strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil {
		http.Error(w, "invalid x", http.StatusBadRequest)
		return
	}
	y, err := strconv.Atoi(chi.URLParam(r, "y"))
	if err != nil {
		http.Error(w, "invalid y", http.StatusBadRequest)
		return
	}

	data, err := svc.GetTile(r.Context(), z, x, y)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNoTile):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, service.ErrOutOfBounds):
		http.Error(w, "tile outside map grid", http.StatusNotFound)
		return
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "tile load timed out", http.StatusGatewayTimeout)
		return
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		return
	case errors.Is(err, service.ErrClosed):
		http.Error(w, "map service is shutting down", http.StatusServiceUnavailable)
		return
	default:
		log.Printf("[API] tile %s %d/%d/%d failed: %v", svc.ID(), z, x, y, err)
		http.Error(w, "failed to load tile", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// mapViewHandler plans the tiles for a view and returns the manifest.
func mapViewHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}

	view, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var resolution float64
	switch {
	case r.URL.Query().Get("resolution") != "":
		resolution, err = strconv.ParseFloat(r.URL.Query().Get("resolution"), 64)
		if err != nil || resolution <= 0 {
			http.Error(w, "invalid resolution", http.StatusBadRequest)
			return
		}
	case r.URL.Query().Get("zoom") != "":
		z, err := strconv.Atoi(r.URL.Query().Get("zoom"))
		if err != nil || z < svc.Grid().MinZoom() || z > svc.Grid().MaxZoom() {
			http.Error(w, "invalid zoom", http.StatusBadRequest)
			return
		}
		resolution = svc.Grid().Resolution(z)
	default:
		http.Error(w, "missing required query param: resolution or zoom", http.StatusBadRequest)
		return
	}

	data, err := svc.PlanView(view, resolution)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrViewTooLarge):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrClosed):
			http.Error(w, "map service is shutting down", http.StatusServiceUnavailable)
		default:
			log.Printf("[API] view plan for %s failed: %v", svc.ID(), err)
			http.Error(w, "failed to plan view", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// mapStatsHandler reports live cache and queue counters for one map.
func mapStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(svc.Stats())
}

// mapPruneHandler drops every cached zoom level except the newest and
// returns the post-prune stats.
func mapPruneHandler(w http.ResponseWriter, r *http.Request) {
	svc := getMapService(r)
	if svc == nil {
		http.Error(w, "map service not found", http.StatusInternalServerError)
		return
	}
	svc.PruneLevels()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(svc.Stats())
}

// parseBBox parses a "minx,miny,maxx,maxy" bounding box.
func parseBBox(raw string) (extent.Extent, error) {
	if strings.TrimSpace(raw) == "" {
		return extent.Extent{}, errors.New("missing required query param: bbox")
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return extent.Extent{}, errors.New("bbox must be minx,miny,maxx,maxy")
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return extent.Extent{}, fmt.Errorf("invalid bbox value %q", p)
		}
		vals[i] = v
	}
	e := extent.New(vals[0], vals[1], vals[2], vals[3])
	if e.IsEmpty() || !e.IsFinite() {
		return extent.Extent{}, errors.New("bbox is empty or not finite")
	}
	return e, nil
}
