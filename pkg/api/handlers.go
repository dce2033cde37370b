package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/azybler/ch_router/pkg/routing"
)

const (
	maxRouteBody    = 1024
	maxMatrixBody   = 64 << 10
	maxMatrixPoints = 100
)

// Service is what the handlers need from a routing engine.
type Service interface {
	routing.Router
	Resolve(p orb.Point) (routing.Resolved, error)
	Matrix(ctx context.Context, sources, targets []uint32) ([][]float64, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	svc    Service
	cache  *lru.Cache[orb.Point, routing.Resolved]
	stats  StatsResponse
	logger *zap.Logger
}

// NewHandlers creates handlers backed by svc. Coordinate resolutions for
// matrix requests are cached in an LRU of cacheSize entries.
func NewHandlers(svc Service, stats StatsResponse, cacheSize int, logger *zap.Logger) (*Handlers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[orb.Point, routing.Resolved](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("resolution cache: %w", err)
	}
	return &Handlers{
		svc:    svc,
		cache:  cache,
		stats:  stats,
		logger: logger,
	}, nil
}

// HandleRoute handles POST /api/v1/route.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decodeJSON(w, r, maxRouteBody, &req) {
		return
	}

	// Validate coordinates.
	if err := validateCoord(req.Start); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "start")
		return
	}
	if err := validateCoord(req.End); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "end")
		return
	}

	// Route.
	result, err := h.svc.Route(r.Context(), toPoint(req.Start), toPoint(req.End))
	if err != nil {
		h.writeRoutingError(w, err, "")
		return
	}

	// Build response.
	resp := RouteResponse{
		TotalDistanceMeters: result.TotalDistanceMeters,
		Segments:            make([]SegmentJSON, 0, len(result.Segments)),
	}
	for _, seg := range result.Segments {
		geom := make([]LatLngJSON, len(seg.Geometry))
		for i, p := range seg.Geometry {
			geom[i] = fromPoint(p)
		}
		resp.Segments = append(resp.Segments, SegmentJSON{
			Name:           seg.Name,
			Highway:        seg.Highway,
			DistanceMeters: seg.DistanceMeters,
			Geometry:       geom,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleMatrix handles POST /api/v1/matrix. Every coordinate is placed on
// the nearest road vertex before the many-to-many search.
func (h *Handlers) HandleMatrix(w http.ResponseWriter, r *http.Request) {
	var req MatrixRequest
	if !decodeJSON(w, r, maxMatrixBody, &req) {
		return
	}
	if len(req.Sources) == 0 || len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if len(req.Sources) > maxMatrixPoints || len(req.Targets) > maxMatrixPoints {
		writeError(w, http.StatusBadRequest, "too_many_points", "")
		return
	}

	sources, srcSnap, ok := h.resolveAll(w, req.Sources, "sources")
	if !ok {
		return
	}
	targets, dstSnap, ok := h.resolveAll(w, req.Targets, "targets")
	if !ok {
		return
	}

	weights, err := h.svc.Matrix(r.Context(), sources, targets)
	if err != nil {
		h.writeRoutingError(w, err, "")
		return
	}

	resp := MatrixResponse{
		DistancesMeters: make([][]*float64, len(weights)),
		Sources:         srcSnap,
		Targets:         dstSnap,
	}
	for i, row := range weights {
		out := make([]*float64, len(row))
		for j, d := range row {
			if !math.IsInf(d, 1) {
				out[j] = &row[j]
			}
		}
		resp.DistancesMeters[i] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveAll places every coordinate on its nearest vertex, writing an
// error response and returning false on the first failure.
func (h *Handlers) resolveAll(w http.ResponseWriter, coords []LatLngJSON, name string) ([]uint32, []SnappedJSON, bool) {
	ids := make([]uint32, len(coords))
	snapped := make([]SnappedJSON, len(coords))
	for i, c := range coords {
		field := fmt.Sprintf("%s[%d]", name, i)
		if err := validateCoord(c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_coordinates", field)
			return nil, nil, false
		}
		res, err := h.resolve(toPoint(c))
		if err != nil {
			h.writeRoutingError(w, err, field)
			return nil, nil, false
		}
		ids[i] = res.Vertex
		snapped[i] = SnappedJSON{Lat: res.Point.Lat(), Lng: res.Point.Lon(), DistanceMeters: res.Dist}
	}
	return ids, snapped, true
}

func (h *Handlers) resolve(p orb.Point) (routing.Resolved, error) {
	if res, ok := h.cache.Get(p); ok {
		return res, nil
	}
	res, err := h.svc.Resolve(p)
	if err != nil {
		return res, err
	}
	h.cache.Add(p, res)
	return res, nil
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats)
}

func (h *Handlers) writeRoutingError(w http.ResponseWriter, err error, field string) {
	switch {
	case errors.Is(err, routing.ErrPointTooFar):
		writeError(w, http.StatusUnprocessableEntity, "point_too_far_from_road", field)
	case errors.Is(err, routing.ErrNoRoute):
		writeError(w, http.StatusNotFound, "no_route_found", field)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	default:
		h.logger.Error("routing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// decodeJSON enforces the content type and decodes a size-limited body.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	return true
}

func validateCoord(ll LatLngJSON) error {
	if math.IsNaN(ll.Lat) || math.IsNaN(ll.Lng) || math.IsInf(ll.Lat, 0) || math.IsInf(ll.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if ll.Lat < -90 || ll.Lat > 90 || ll.Lng < -180 || ll.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func toPoint(ll LatLngJSON) orb.Point { return orb.Point{ll.Lng, ll.Lat} }

func fromPoint(p orb.Point) LatLngJSON { return LatLngJSON{Lat: p.Lat(), Lng: p.Lon()} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
