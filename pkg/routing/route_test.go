package routing

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azybler/ch_router/pkg/geo"
)

func assertLine(t *testing.T, want, got orb.LineString) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].Lon(), got[i].Lon(), 1e-9, "point %d", i)
		assert.InDelta(t, want[i].Lat(), got[i].Lat(), 1e-9, "point %d", i)
	}
}

func TestRouteBetweenArcs(t *testing.T) {
	g, tags := streetGraph(t, false)
	e := newTestEngine(t, contract(t, g, nil), tags)
	block := geo.Distance(orb.Point{0, 0}, orb.Point{0.001, 0})

	got, err := e.Route(context.Background(), orb.Point{0.00025, 0.00005}, orb.Point{0.0025, -0.00005})
	require.NoError(t, err)
	assert.InDelta(t, 2.25*block, got.TotalDistanceMeters, 1e-6)
	assert.Equal(t, []uint32{1, 2}, got.Vertices)

	require.Len(t, got.Segments, 2)
	mainSeg, sideSeg := got.Segments[0], got.Segments[1]
	assert.Equal(t, "Main Street", mainSeg.Name)
	assert.Equal(t, "residential", mainSeg.Highway)
	assert.InDelta(t, 1.75*block, mainSeg.DistanceMeters, 1e-6)
	assertLine(t, orb.LineString{{0.00025, 0}, {0.001, 0}, {0.002, 0}}, mainSeg.Geometry)

	assert.Equal(t, "Side Street", sideSeg.Name)
	assert.Equal(t, "service", sideSeg.Highway)
	assert.InDelta(t, 0.5*block, sideSeg.DistanceMeters, 1e-6)
	assertLine(t, orb.LineString{{0.002, 0}, {0.0025, 0}}, sideSeg.Geometry)
}

func TestRouteAlongRoadWithShortcutForward(t *testing.T) {
	// The forward arc 0->2 is a shortcut via 1; the road itself stays two-way.
	e := newTestEngine(t, bypassedRoad(t, false), nil)
	nearEnd := orb.Point{0.0018, 0}
	end := orb.Point{0.002, 0}

	got, err := e.Route(context.Background(), nearEnd, end)
	require.NoError(t, err)
	assert.InDelta(t, 1, got.TotalDistanceMeters, 1e-9)
	assert.Equal(t, []uint32{2}, got.Vertices)

	got, err = e.Route(context.Background(), end, nearEnd)
	require.NoError(t, err)
	assert.InDelta(t, 1, got.TotalDistanceMeters, 1e-9)
}

func TestRouteBetweenVertices(t *testing.T) {
	g, tags := streetGraph(t, false)
	e := newTestEngine(t, contract(t, g, nil), tags)
	block := geo.Distance(orb.Point{0, 0}, orb.Point{0.001, 0})

	got, err := e.Route(context.Background(), orb.Point{0.001, 0}, orb.Point{0.003, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2*block, got.TotalDistanceMeters, 1e-6)
	assert.Equal(t, []uint32{1, 2, 3}, got.Vertices)
	require.Len(t, got.Segments, 2)
	assertLine(t, orb.LineString{{0.001, 0}, {0.002, 0}}, got.Segments[0].Geometry)
	assertLine(t, orb.LineString{{0.002, 0}, {0.003, 0}}, got.Segments[1].Geometry)
}

func TestRouteWithinOneArc(t *testing.T) {
	g, tags := streetGraph(t, false)
	e := newTestEngine(t, contract(t, g, nil), tags)
	block := geo.Distance(orb.Point{0, 0}, orb.Point{0.001, 0})

	got, err := e.Route(context.Background(), orb.Point{0.0018, 0}, orb.Point{0.0012, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.6*block, got.TotalDistanceMeters, 1e-6)
	assert.Empty(t, got.Vertices)
	require.Len(t, got.Segments, 1)
	assert.Equal(t, "Main Street", got.Segments[0].Name)
	assertLine(t, orb.LineString{{0.0018, 0}, {0.0012, 0}}, got.Segments[0].Geometry)
}

func TestRouteOneWay(t *testing.T) {
	g, tags := streetGraph(t, true)
	e := newTestEngine(t, contract(t, g, nil), tags)
	block := geo.Distance(orb.Point{0, 0}, orb.Point{0.001, 0})
	ctx := context.Background()

	got, err := e.Route(ctx, orb.Point{0.0005, 0}, orb.Point{0.0025, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2*block, got.TotalDistanceMeters, 1e-6)

	_, err = e.Route(ctx, orb.Point{0.0025, 0}, orb.Point{0.0005, 0})
	assert.ErrorIs(t, err, ErrNoRoute)

	_, err = e.Route(ctx, orb.Point{0.0018, 0}, orb.Point{0.0012, 0})
	assert.ErrorIs(t, err, ErrNoRoute, "cannot go back along a one-way arc")
}

func TestRoutePointTooFar(t *testing.T) {
	g, tags := streetGraph(t, false)
	e := newTestEngine(t, contract(t, g, nil), tags)

	_, err := e.Route(context.Background(), orb.Point{0.5, 0.5}, orb.Point{0.001, 0})
	assert.ErrorIs(t, err, ErrPointTooFar)

	_, err = e.Route(context.Background(), orb.Point{0.001, 0}, orb.Point{0.5, 0.5})
	assert.ErrorIs(t, err, ErrPointTooFar)
}

func TestEngineImplementsRouter(t *testing.T) {
	var _ Router = (*Engine)(nil)
}
