package mapview

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocat/internal/geo"
)

func TestTransformInvertedY(t *testing.T) {
	tr := NewTransform()
	tr.SetDisplaySize(640, 480, true)
	require.True(t, tr.SetExtent(geo.Envelope{MinX: -1560, MinY: -1420, MaxX: 3560, MaxY: 2420}))

	assert.InDelta(t, 0.125, tr.Scale(), 1e-9)
	ext := tr.Extent()
	assert.InDelta(t, -1560, ext.MinX, 1e-6)
	assert.InDelta(t, -1420, ext.MinY, 1e-6)
	assert.InDelta(t, 3560, ext.MaxX, 1e-6)
	assert.InDelta(t, 2420, ext.MaxY, 1e-6)

	d := tr.WorldToDisplay(geo.Point{X: 0, Y: 0})
	assert.InDelta(t, 195, d.X, 1e-6)
	assert.InDelta(t, 302.5, d.Y, 1e-6)

	d = tr.WorldToDisplay(geo.Point{X: -1560, Y: 2420})
	assert.InDelta(t, 0, d.X, 1e-6)
	assert.InDelta(t, 0, d.Y, 1e-6)

	d = tr.WorldToDisplay(geo.Point{X: 3560, Y: -1420})
	assert.InDelta(t, 640, d.X, 1e-6)
	assert.InDelta(t, 480, d.Y, 1e-6)

	// Round trip.
	w := tr.DisplayToWorld(geo.Point{X: 195, Y: 302.5})
	assert.InDelta(t, 0, w.X, 1e-6)
	assert.InDelta(t, 0, w.Y, 1e-6)

	// Halving the extent doubles the scale.
	require.True(t, tr.SetExtent(geo.Envelope{MinX: -1560, MinY: -1420, MaxX: 1000, MaxY: 500}))
	assert.InDelta(t, 0.25, tr.Scale(), 1e-9)
}

func TestTransformNonInvertedY(t *testing.T) {
	tr := NewTransform()
	tr.SetDisplaySize(640, 480, false)
	require.True(t, tr.SetExtent(geo.Envelope{MinX: 1000, MinY: 500, MaxX: 3560, MaxY: 2420}))

	assert.InDelta(t, 0.25, tr.Scale(), 1e-9)

	d := tr.WorldToDisplay(geo.Point{X: 0, Y: 0})
	assert.InDelta(t, -250, d.X, 1e-6)
	assert.InDelta(t, -125, d.Y, 1e-6)

	w := tr.DisplayToWorld(geo.Point{X: -250, Y: -125})
	assert.InDelta(t, 0, w.X, 1e-6)
	assert.InDelta(t, 0, w.Y, 1e-6)
}

func TestTransformUnitScale(t *testing.T) {
	tr := NewTransform()
	tr.SetDisplaySize(480, 640, true)
	require.True(t, tr.SetExtent(geo.Envelope{MinX: 0, MinY: 0, MaxX: 480, MaxY: 640}))
	assert.InDelta(t, 1, tr.Scale(), 1e-9)

	d := tr.WorldToDisplay(geo.Point{X: 0, Y: 0})
	assert.InDelta(t, 0, d.X, 1e-6)
	assert.InDelta(t, 640, d.Y, 1e-6)
}

func TestTransformAspectFill(t *testing.T) {
	tr := NewTransform()
	tr.SetDisplaySize(640, 480, true)
	// A tall extent: the scale fits the height, the width grows.
	require.True(t, tr.SetExtent(geo.Envelope{MinX: 0, MinY: 0, MaxX: 100, MaxY: 480}))
	assert.InDelta(t, 1, tr.Scale(), 1e-9)
	ext := tr.Extent()
	assert.InDelta(t, 640, ext.Width(), 1e-6)
	assert.InDelta(t, 480, ext.Height(), 1e-6)
	c := ext.Center()
	assert.InDelta(t, 50, c.X, 1e-6)
	assert.InDelta(t, 240, c.Y, 1e-6)
}

func TestScaleAndCenterLimits(t *testing.T) {
	tr := NewTransform()
	tr.SetDisplaySize(256, 256, true)
	tr.SetScaleLimits(0.5, 4)

	assert.False(t, tr.SetScale(0.01))
	assert.InDelta(t, 0.5, tr.Scale(), 1e-9)
	assert.False(t, tr.SetScale(100))
	assert.InDelta(t, 4, tr.Scale(), 1e-9)
	assert.True(t, tr.SetScale(2))

	tr.SetExtentLimits(geo.Envelope{MinX: -10, MinY: -10, MaxX: 10, MaxY: 10})
	assert.False(t, tr.SetCenter(geo.Point{X: 500, Y: -500}))
	c := tr.Center()
	assert.InDelta(t, 10, c.X, 1e-9)
	assert.InDelta(t, -10, c.Y, 1e-9)
	assert.True(t, tr.SetCenter(geo.Point{X: 5, Y: 5}))
}

func TestTransformRotation(t *testing.T) {
	tr := NewTransform()
	tr.SetDisplaySize(480, 640, true)
	tr.SetExtent(geo.Envelope{MinX: 0, MinY: 0, MaxX: 480, MaxY: 640})
	tr.SetRotate(math.Pi / 2)

	// The display center is a fixed point of the rotation.
	center := tr.WorldToDisplay(geo.Point{X: 240, Y: 320})
	assert.InDelta(t, 240, center.X, 1e-9)
	assert.InDelta(t, 320, center.Y, 1e-9)

	// A quarter turn swings the top-center of the display to the right of
	// the center.
	p := tr.WorldToDisplay(geo.Point{X: 240, Y: 640})
	assert.InDelta(t, 560, p.X, 1e-9)
	assert.InDelta(t, 320, p.Y, 1e-9)

	// Round trip through the rotated transform.
	back := tr.DisplayToWorld(p)
	assert.InDelta(t, 240, back.X, 1e-9)
	assert.InDelta(t, 640, back.Y, 1e-9)
}

func TestMapDistance(t *testing.T) {
	tr := NewTransform()
	tr.SetDisplaySize(640, 480, true)
	require.True(t, tr.SetExtent(geo.Envelope{MinX: -1560, MinY: -1420, MaxX: 3560, MaxY: 2420}))
	assert.InDelta(t, 56, tr.MapDistance(7), 1e-9)
}

func TestTilesForExtent(t *testing.T) {
	// At zoom 0 the world is one tile.
	tiles := TilesForExtent(WorldExtent.Expand(-1), 0, false, false)
	require.Len(t, tiles, 1)
	assert.Equal(t, 0, tiles[0].X)
	assert.Equal(t, 0, tiles[0].Y)
	assert.Equal(t, 0, tiles[0].CrossExtent)

	// Zoom 1 splits it into four.
	tiles = TilesForExtent(WorldExtent.Expand(-1), 1, false, false)
	assert.Len(t, tiles, 4)

	// A quadrant maps to a single tile.
	quadrant := geo.Envelope{MinX: 1, MinY: 1, MaxX: WorldExtent.MaxX - 1, MaxY: WorldExtent.MaxY - 1}
	tiles = TilesForExtent(quadrant, 1, false, false)
	require.Len(t, tiles, 1)
	assert.Equal(t, 1, tiles[0].X)
	assert.Equal(t, 1, tiles[0].Y)

	// reverseY flips the row index.
	tiles = TilesForExtent(quadrant, 1, true, false)
	require.Len(t, tiles, 1)
	assert.Equal(t, 0, tiles[0].Y)

	// An extent past the east edge is clipped without unlimitX.
	east := geo.Envelope{
		MinX: WorldExtent.MaxX - 10, MinY: 1,
		MaxX: WorldExtent.MaxX + WorldExtent.Width()/4, MaxY: WorldExtent.MaxY - 1,
	}
	tiles = TilesForExtent(east, 1, false, false)
	require.Len(t, tiles, 1)
	assert.Equal(t, 1, tiles[0].X)

	// With unlimitX the overflow wraps to tile 0 of the next world copy.
	tiles = TilesForExtent(east, 1, false, true)
	require.Len(t, tiles, 2)
	assert.Equal(t, 1, tiles[0].X)
	assert.Equal(t, 0, tiles[0].CrossExtent)
	assert.Equal(t, 0, tiles[1].X)
	assert.Equal(t, 1, tiles[1].CrossExtent)
}
