package api

// RouteRequest is the JSON body for POST /api/v1/route.
type RouteRequest struct {
	Start LatLngJSON `json:"start"`
	End   LatLngJSON `json:"end"`
}

// LatLngJSON represents a lat/lng pair in JSON.
type LatLngJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RouteResponse is the JSON response for a successful route query.
type RouteResponse struct {
	TotalDistanceMeters float64       `json:"total_distance_meters"`
	Segments            []SegmentJSON `json:"segments"`
}

// SegmentJSON represents a stretch of one street in the response.
type SegmentJSON struct {
	Name           string       `json:"name,omitempty"`
	Highway        string       `json:"highway,omitempty"`
	DistanceMeters float64      `json:"distance_meters"`
	Geometry       []LatLngJSON `json:"geometry"`
}

// MatrixRequest is the JSON body for POST /api/v1/matrix.
type MatrixRequest struct {
	Sources []LatLngJSON `json:"sources"`
	Targets []LatLngJSON `json:"targets"`
}

// MatrixResponse holds one row per source. Unreachable pairs are null.
type MatrixResponse struct {
	DistancesMeters [][]*float64  `json:"distances_meters"`
	Sources         []SnappedJSON `json:"sources"`
	Targets         []SnappedJSON `json:"targets"`
}

// SnappedJSON is the road point a matrix coordinate was placed on. The
// matrix is computed from the nearer end of that road.
type SnappedJSON struct {
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	DistanceMeters float64 `json:"distance_meters"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error          string  `json:"error"`
	Field          string  `json:"field,omitempty"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumVertices    uint32 `json:"num_vertices"`
	NumArcs        int    `json:"num_arcs"`
	NumShortcuts   int    `json:"num_shortcuts"`
	NumIndexedArcs int    `json:"num_indexed_arcs"`
	NumTagSets     int    `json:"num_tag_sets"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
