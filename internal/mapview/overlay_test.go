package mapview

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"geocat/internal/geo"
	"geocat/internal/store"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestClass(t *testing.T, geomType store.GeometryType) *store.FeatureClass {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edit.gcdb")
	s, err := store.Create(nil, "edit.gcdb", path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	fc, err := s.CreateFeatureClass("layer", geomType, nil, 0, 18)
	require.NoError(t, err)
	return fc
}

func newTestView(t *testing.T) *View {
	t.Helper()
	v := NewView(NewMap("edit", ""), testLogger())
	v.SetDisplaySize(640, 480, true)
	require.True(t, v.SetExtent(geo.Envelope{MinX: -320, MinY: -240, MaxX: 320, MaxY: 240}))
	return v
}

func lineOf(coords ...geom.Coord) *geom.LineString {
	return geom.NewLineString(geom.XY).MustSetCoords(coords)
}

func TestEditHistoryBounds(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()

	require.NoError(t, o.CreateGeometry(fc))
	assert.False(t, o.CanUndo())
	assert.False(t, o.CanRedo())

	// 15 mutations against a history capped at 10 snapshots.
	for i := 0; i < 15; i++ {
		require.NoError(t, o.AddPoint(geo.Point{X: float64(i), Y: float64(i)}))
	}

	undos := 0
	for o.Undo() {
		undos++
	}
	assert.Equal(t, maxUndoSteps-1, undos, "undo depth is bounded")

	// The oldest reachable snapshot has the first 6 points.
	g := o.Geometry().(*geom.LineString)
	assert.Equal(t, 6, g.NumCoords())

	redos := 0
	for o.Redo() {
		redos++
	}
	assert.Equal(t, undos, redos)
	g = o.Geometry().(*geom.LineString)
	assert.Equal(t, 15, g.NumCoords())
}

func TestEditUndoTruncatesRedoTail(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()

	require.NoError(t, o.CreateGeometry(fc))
	require.NoError(t, o.AddPoint(geo.Point{X: 0, Y: 0}))
	require.NoError(t, o.AddPoint(geo.Point{X: 1, Y: 1}))
	require.NoError(t, o.AddPoint(geo.Point{X: 2, Y: 2}))

	require.True(t, o.Undo())
	require.True(t, o.Undo())
	require.True(t, o.CanRedo())

	// A new mutation drops the redo tail.
	require.NoError(t, o.AddPoint(geo.Point{X: 9, Y: 9}))
	assert.False(t, o.CanRedo())
	g := o.Geometry().(*geom.LineString)
	assert.Equal(t, 2, g.NumCoords())
	assert.Equal(t, geom.Coord{9, 9}, g.Coord(1))
}

func TestUndoSelectsFirstVertex(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()

	require.NoError(t, o.CreateGeometry(fc))
	require.NoError(t, o.AddPoint(geo.Point{X: 0, Y: 0}))
	require.NoError(t, o.AddPoint(geo.Point{X: 5, Y: 5}))
	assert.Equal(t, PointID{Point: 1, Ring: 0, Geometry: 0}, o.Selected())

	require.True(t, o.Undo())
	assert.Equal(t, PointID{Point: 0, Ring: 0, Geometry: 0}, o.Selected())
}

func TestDeletePointGuards(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()
	fid, err := fc.CreateFeature(&store.Feature{RID: -1,
		Geometry: lineOf(geom.Coord{0, 0}, geom.Coord{10, 10})})
	require.NoError(t, err)

	require.NoError(t, o.EditFeature(fc, fid))
	assert.Error(t, o.DeletePoint(), "a line keeps at least two points")

	o.Cancel()

	// Polygon rings keep at least three points.
	pfc := newTestClass(t, store.GeometryPolygon)
	ring := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 0}},
	})
	pfid, err := pfc.CreateFeature(&store.Feature{RID: -1, Geometry: ring})
	require.NoError(t, err)
	require.NoError(t, o.EditFeature(pfc, pfid))
	assert.Error(t, o.DeletePoint())
}

func TestDeleteLastPartEmptiesGeometry(t *testing.T) {
	fc := newTestClass(t, store.GeometryMultiPoint)
	v := newTestView(t)
	o := v.EditOverlay()

	mp := geom.NewMultiPoint(geom.XY).MustSetCoords([]geom.Coord{{1, 1}})
	fid, err := fc.CreateFeature(&store.Feature{RID: -1, Geometry: mp})
	require.NoError(t, err)

	require.NoError(t, o.EditFeature(fc, fid))
	require.NoError(t, o.DeleteGeometryPart())
	assert.Nil(t, o.Geometry())

	// Saving the emptied geometry deletes the feature.
	got, err := o.Save()
	require.NoError(t, err)
	assert.Equal(t, int64(-1), got)
	_, err = fc.Feature(fid)
	assert.Error(t, err)
	assert.False(t, o.Editing())
}

func TestSaveInsertsAndUpdates(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()

	// New feature.
	require.NoError(t, o.CreateGeometry(fc))
	require.NoError(t, o.AddPoint(geo.Point{X: 0, Y: 0}))
	require.NoError(t, o.AddPoint(geo.Point{X: 10, Y: 0}))
	fid, err := o.Save()
	require.NoError(t, err)
	require.Greater(t, fid, int64(0))
	assert.False(t, o.Editing())

	f, err := fc.Feature(fid)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 10, 0}, f.Geometry.FlatCoords())

	// Edit it: drag the second vertex.
	require.NoError(t, o.EditFeature(fc, fid))
	o.selected = PointID{Point: 1, Ring: 0, Geometry: 0}
	require.True(t, o.geometry.setVertex(o.selected, geo.Point{X: 10, Y: 5}))
	got, err := o.Save()
	require.NoError(t, err)
	assert.Equal(t, fid, got)

	f, err = fc.Feature(fid)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 10, 5}, f.Geometry.FlatCoords())
}

func TestSaveRejectsShortLine(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()

	require.NoError(t, o.CreateGeometry(fc))
	require.NoError(t, o.AddPoint(geo.Point{X: 0, Y: 0}))
	_, err := o.Save()
	assert.Error(t, err)
	assert.False(t, o.Editing(), "a failed save still ends the session")
}

func TestCancelDiscards(t *testing.T) {
	fc := newTestClass(t, store.GeometryPoint)
	v := newTestView(t)
	o := v.EditOverlay()

	fid, err := fc.CreateFeature(&store.Feature{RID: -1,
		Geometry: geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{3, 4})})
	require.NoError(t, err)

	require.NoError(t, o.EditFeature(fc, fid))
	assert.True(t, o.Hides(fc, fid))
	require.True(t, o.geometry.setVertex(o.Selected(), geo.Point{X: 99, Y: 99}))
	o.Cancel()
	assert.False(t, o.Hides(fc, fid))

	f, err := fc.Feature(fid)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, f.Geometry.FlatCoords())
}

func TestTouchSelectDragAndHistory(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()

	fid, err := fc.CreateFeature(&store.Feature{RID: -1,
		Geometry: lineOf(geom.Coord{0, 0}, geom.Coord{100, 0})})
	require.NoError(t, err)
	require.NoError(t, o.EditFeature(fc, fid))

	// Scale is 1, display center maps to world (0,0).
	down := v.WorldToDisplay(geo.Point{X: 100, Y: 0})
	res := o.Touch(down.X+2, down.Y-2, TouchDown)
	assert.Equal(t, TouchVertex, res.Kind)
	assert.Equal(t, PointID{Point: 1, Ring: 0, Geometry: 0}, res.ID)

	move := v.WorldToDisplay(geo.Point{X: 150, Y: 40})
	o.Touch(move.X, move.Y, TouchMove)
	o.Touch(move.X, move.Y, TouchUp)

	p, ok := o.SelectedPoint()
	require.True(t, ok)
	assert.InDelta(t, 150, p.X, 1e-6)
	assert.InDelta(t, 40, p.Y, 1e-6)
	assert.True(t, o.CanUndo(), "a completed drag is one undo step")

	// A touch on the segment body selects the region.
	mid := v.WorldToDisplay(geo.Point{X: 75, Y: 20})
	res = o.Touch(mid.X, mid.Y, TouchDown)
	assert.Equal(t, TouchRegion, res.Kind)

	// A touch in the void selects nothing.
	void := v.WorldToDisplay(geo.Point{X: -200, Y: -200})
	res = o.Touch(void.X, void.Y, TouchDown)
	assert.Equal(t, TouchNone, res.Kind)
	assert.False(t, res.ID.Valid())
}

func TestTouchSticksToSelectedVertex(t *testing.T) {
	fc := newTestClass(t, store.GeometryLineString)
	v := newTestView(t)
	o := v.EditOverlay()

	// Both vertices sit inside one tolerance circle (7 world units at
	// scale 1).
	fid, err := fc.CreateFeature(&store.Feature{RID: -1,
		Geometry: lineOf(geom.Coord{0, 0}, geom.Coord{3, 0})})
	require.NoError(t, err)
	require.NoError(t, o.EditFeature(fc, fid))

	o.selected = PointID{Point: 1, Ring: 0, Geometry: 0}
	d := v.WorldToDisplay(geo.Point{X: 3, Y: 0})
	res := o.Touch(d.X, d.Y, TouchDown)
	require.Equal(t, TouchVertex, res.Kind)
	assert.Equal(t, 1, res.ID.Point, "a re-tap near the selected vertex stays on it")
	o.Touch(d.X, d.Y, TouchUp)

	// With the first vertex selected the same tap keeps that one instead.
	o.selected = PointID{Point: 0, Ring: 0, Geometry: 0}
	res = o.Touch(d.X, d.Y, TouchDown)
	require.Equal(t, TouchVertex, res.Kind)
	assert.Equal(t, 0, res.ID.Point)
}

func TestTouchPrefersSelectedPart(t *testing.T) {
	fc := newTestClass(t, store.GeometryMultiPoint)
	v := newTestView(t)
	o := v.EditOverlay()

	// Two coincident points in different parts.
	mp := geom.NewMultiPoint(geom.XY).MustSetCoords([]geom.Coord{{10, 10}, {10, 10}})
	fid, err := fc.CreateFeature(&store.Feature{RID: -1, Geometry: mp})
	require.NoError(t, err)
	require.NoError(t, o.EditFeature(fc, fid))

	o.selected = PointID{Point: 0, Ring: 0, Geometry: 1}
	d := v.WorldToDisplay(geo.Point{X: 10, Y: 10})
	res := o.Touch(d.X, d.Y, TouchDown)
	assert.Equal(t, TouchVertex, res.Kind)
	assert.Equal(t, 1, res.ID.Geometry, "the hinted part wins a tie")
}

func TestHolesLifecycle(t *testing.T) {
	fc := newTestClass(t, store.GeometryPolygon)
	v := newTestView(t)
	o := v.EditOverlay()

	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}},
	})
	fid, err := fc.CreateFeature(&store.Feature{RID: -1, Geometry: poly})
	require.NoError(t, err)
	require.NoError(t, o.EditFeature(fc, fid))

	require.NoError(t, o.AddHole())
	for _, p := range []geo.Point{{X: 20, Y: 20}, {X: 40, Y: 20}, {X: 30, Y: 40}} {
		require.NoError(t, o.AddPoint(p))
	}
	g := o.Geometry().(*geom.Polygon)
	require.Equal(t, 2, g.NumLinearRings())
	assert.Equal(t, 4, g.LinearRing(1).NumCoords(), "the hole ring is closed")

	// The exterior ring cannot be deleted as a hole.
	o.selected = PointID{Point: 0, Ring: 0, Geometry: 0}
	assert.Error(t, o.DeleteHole())

	o.selected = PointID{Point: 0, Ring: 1, Geometry: 0}
	require.NoError(t, o.DeleteHole())
	g = o.Geometry().(*geom.Polygon)
	assert.Equal(t, 1, g.NumLinearRings())
}

func TestEditSessionExclusive(t *testing.T) {
	fc := newTestClass(t, store.GeometryPoint)
	v := newTestView(t)
	o := v.EditOverlay()

	require.NoError(t, o.CreateGeometry(fc))
	assert.Error(t, o.CreateGeometry(fc))
	assert.Error(t, o.EditFeature(fc, 1))
	o.Cancel()
	require.NoError(t, o.CreateGeometry(fc))
}
