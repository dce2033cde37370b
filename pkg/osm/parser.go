package osm

import (
	"context"
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/azybler/ch_router/pkg/geo"
)

// minWeight keeps coincident nodes from producing zero-weight edges.
const minWeight = 0.001

// RawEdge is one way segment between two consecutive way nodes.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Weight     float64 // meters
	Forward    bool    // From -> To is drivable
	Backward   bool    // To -> From is drivable
	Tags       osm.Tags
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges  []RawEdge
	Coords map[osm.NodeID]orb.Point
}

// keptTags are the way tags carried through to the tag store.
var keptTags = []string{"highway", "name", "oneway", "maxspeed", "ref"}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if !carHighways[hw] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	forward = true
	backward = true

	hw := tags.Find("highway")

	// Implied oneway for motorways and roundabouts.
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	switch tags.Find("oneway") {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent, skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}

// tagSubset keeps the tags listed in keptTags, in that order.
func tagSubset(tags osm.Tags) osm.Tags {
	var out osm.Tags
	for _, k := range keptTags {
		if v := tags.Find(k); v != "" {
			out = append(out, osm.Tag{Key: k, Value: v})
		}
	}
	return out
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
	Tags     osm.Tags
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	// Bound, if non-empty, drops segments with an endpoint outside it.
	Bound  orb.Bound
	Logger *zap.Logger
}

func (o ParseOptions) useBound() bool { return o.Bound != orb.Bound{} }

// Parse reads an OSM PBF file and returns the drivable way segments.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !isCarAccessible(w.Tags) || len(w.Nodes) < 2 {
			continue
		}

		fwd, bwd := directionFlags(w.Tags)
		if !fwd && !bwd {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}

		ways = append(ways, wayInfo{
			NodeIDs:  nodeIDs,
			Forward:  fwd,
			Backward: bwd,
			Tags:     tagSubset(w.Tags),
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	logger.Info("pass 1 complete",
		zap.Int("ways", len(ways)),
		zap.Int("referenced_nodes", len(referencedNodes)))

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	coords := make(map[osm.NodeID]orb.Point, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		coords[n.ID] = n.Point()
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	logger.Info("pass 2 complete", zap.Int("coordinates", len(coords)))

	return buildEdges(ways, coords, opt, logger), nil
}

// buildEdges turns ways into one RawEdge per consecutive node pair.
func buildEdges(ways []wayInfo, coords map[osm.NodeID]orb.Point, opt ParseOptions, logger *zap.Logger) *ParseResult {
	var edges []RawEdge
	var skippedEdges, boundFiltered int

	for _, w := range ways {
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID := w.NodeIDs[i]
			toID := w.NodeIDs[i+1]
			if fromID == toID {
				continue
			}

			from, fromOk := coords[fromID]
			to, toOk := coords[toID]
			if !fromOk || !toOk {
				skippedEdges++
				continue
			}

			if opt.useBound() && (!opt.Bound.Contains(from) || !opt.Bound.Contains(to)) {
				boundFiltered++
				continue
			}

			dist := geo.Distance(from, to)
			if dist < minWeight {
				dist = minWeight
			}

			edges = append(edges, RawEdge{
				FromNodeID: fromID,
				ToNodeID:   toID,
				Weight:     dist,
				Forward:    w.Forward,
				Backward:   w.Backward,
				Tags:       w.Tags,
			})
		}
	}

	if skippedEdges > 0 {
		logger.Warn("skipped edges with missing node coordinates", zap.Int("count", skippedEdges))
	}
	if boundFiltered > 0 {
		logger.Info("filtered edges outside bound", zap.Int("count", boundFiltered))
	}
	logger.Info("built way segments", zap.Int("edges", len(edges)))

	return &ParseResult{Edges: edges, Coords: coords}
}
