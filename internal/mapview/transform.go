// Package mapview implements map documents, the world-to-display transform,
// the draw loop and interactive editing overlays.
package mapview

import (
	"math"

	"geocat/internal/geo"
)

// WorldExtent is the full addressable map plane, a web mercator style
// square. Tiling subdivides it.
var WorldExtent = geo.Envelope{
	MinX: -20037508.34, MinY: -20037508.34,
	MaxX: 20037508.34, MaxY: 20037508.34,
}

// Transform maps between world and display coordinates. The display origin
// is the top-left corner when the Y axis is inverted, bottom-left otherwise.
type Transform struct {
	width     float64
	height    float64
	yInverted bool

	scale  float64
	center geo.Point
	rotate float64
	extent geo.Envelope

	scaleMin    float64
	scaleMax    float64
	extentLimit geo.Envelope

	extraZoom int
}

// NewTransform builds an identity-scaled transform over the world extent.
func NewTransform() *Transform {
	t := &Transform{scale: 1}
	t.extent = WorldExtent
	t.center = WorldExtent.Center()
	return t
}

// SetDisplaySize fixes the output surface in pixels and whether its Y axis
// grows downward. The visible extent is re-derived around the center.
func (t *Transform) SetDisplaySize(width, height int, yInverted bool) {
	t.width = float64(width)
	t.height = float64(height)
	t.yInverted = yInverted
	t.updateExtent()
}

// DisplaySize reports the output surface in pixels.
func (t *Transform) DisplaySize() (width, height int) {
	return int(t.width), int(t.height)
}

// YInverted reports the display Y direction.
func (t *Transform) YInverted() bool { return t.yInverted }

// SetExtent fits env into the display, deriving scale and center. The
// stored extent is grown along one axis so it fills the display aspect.
func (t *Transform) SetExtent(env geo.Envelope) bool {
	if !env.IsInit() || t.width <= 0 || t.height <= 0 {
		return false
	}
	scale := math.Min(t.width/env.Width(), t.height/env.Height())
	t.scale = t.clampScale(scale)
	t.center = t.clampCenter(env.Center())
	t.updateExtent()
	return true
}

// Extent is the world rectangle currently mapped onto the display.
func (t *Transform) Extent() geo.Envelope { return t.extent }

// Scale is the display-pixels-per-world-unit factor.
func (t *Transform) Scale() float64 { return t.scale }

// SetScale rescales around the current center. Returns false when the
// request was rejected or clamped to a limit.
func (t *Transform) SetScale(scale float64) bool {
	if scale <= 0 {
		return false
	}
	clamped := t.clampScale(scale)
	t.scale = clamped
	t.updateExtent()
	return clamped == scale
}

// Center is the world point at the middle of the display.
func (t *Transform) Center() geo.Point { return t.center }

// SetCenter pans the view. Returns false when the center was clamped to the
// extent limit.
func (t *Transform) SetCenter(p geo.Point) bool {
	clamped := t.clampCenter(p)
	t.center = clamped
	t.updateExtent()
	return clamped == p
}

// SetRotate turns the view by angle radians around the display center.
func (t *Transform) SetRotate(angle float64) { t.rotate = angle }

// Rotate reports the view rotation in radians.
func (t *Transform) Rotate() float64 { return t.rotate }

// SetScaleLimits bounds the zoom range. Zero disables a bound.
func (t *Transform) SetScaleLimits(min, max float64) {
	t.scaleMin = min
	t.scaleMax = max
	t.scale = t.clampScale(t.scale)
	t.updateExtent()
}

// SetExtentLimits keeps the center inside env. A zero envelope disables the
// limit.
func (t *Transform) SetExtentLimits(env geo.Envelope) {
	t.extentLimit = env
	t.center = t.clampCenter(t.center)
	t.updateExtent()
}

func (t *Transform) clampScale(scale float64) float64 {
	if t.scaleMin > 0 && scale < t.scaleMin {
		return t.scaleMin
	}
	if t.scaleMax > 0 && scale > t.scaleMax {
		return t.scaleMax
	}
	return scale
}

func (t *Transform) clampCenter(p geo.Point) geo.Point {
	if !t.extentLimit.IsInit() {
		return p
	}
	p.X = math.Max(t.extentLimit.MinX, math.Min(t.extentLimit.MaxX, p.X))
	p.Y = math.Max(t.extentLimit.MinY, math.Min(t.extentLimit.MaxY, p.Y))
	return p
}

// updateExtent re-derives the visible extent from center, scale and display
// size.
func (t *Transform) updateExtent() {
	if t.width <= 0 || t.height <= 0 || t.scale <= 0 {
		return
	}
	halfW := t.width / t.scale / 2
	halfH := t.height / t.scale / 2
	t.extent = geo.Envelope{
		MinX: t.center.X - halfW, MinY: t.center.Y - halfH,
		MaxX: t.center.X + halfW, MaxY: t.center.Y + halfH,
	}
}

// WorldToDisplay projects a world point into display pixels.
func (t *Transform) WorldToDisplay(p geo.Point) geo.Point {
	x := (p.X - t.extent.MinX) * t.scale
	y := (p.Y - t.extent.MinY) * t.scale
	if t.yInverted {
		y = t.height - y
	}
	if t.rotate != 0 {
		x, y = t.rotatePoint(x, y, t.rotate)
	}
	return geo.Point{X: x, Y: y}
}

// DisplayToWorld is the inverse of WorldToDisplay.
func (t *Transform) DisplayToWorld(p geo.Point) geo.Point {
	x, y := p.X, p.Y
	if t.rotate != 0 {
		x, y = t.rotatePoint(x, y, -t.rotate)
	}
	if t.yInverted {
		y = t.height - y
	}
	return geo.Point{
		X: x/t.scale + t.extent.MinX,
		Y: y/t.scale + t.extent.MinY,
	}
}

// rotatePoint turns display coordinates by angle around the display center.
func (t *Transform) rotatePoint(x, y, angle float64) (float64, float64) {
	cx, cy := t.width/2, t.height/2
	sin, cos := math.Sincos(angle)
	dx, dy := x-cx, y-cy
	return cx + dx*cos - dy*sin, cy + dx*sin + dy*cos
}

// MapDistance converts a display-pixel distance to world units.
func (t *Transform) MapDistance(pixels float64) float64 {
	if t.scale <= 0 {
		return pixels
	}
	return pixels / t.scale
}

// SetZoomIncrement shifts the zoom reported for a given scale, letting high
// density displays request finer tiles.
func (t *Transform) SetZoomIncrement(extra int) { t.extraZoom = extra }

// Zoom derives the tile zoom level for the current scale: the level at
// which one tile of the world extent spans 256 display pixels.
func (t *Transform) Zoom() int {
	if t.scale <= 0 {
		return 0
	}
	worldPx := WorldExtent.Width() * t.scale
	zoom := int(math.Round(math.Log2(worldPx/256))) + t.extraZoom
	if zoom < 0 {
		return 0
	}
	return zoom
}

// TileItem addresses one tile of the world extent. CrossExtent counts how
// many world widths the tile lies left or right of the base extent when
// horizontal wrapping is on.
type TileItem struct {
	X           int
	Y           int
	Z           int
	CrossExtent int
	Env         geo.Envelope
}

// TilesForExtent lists the tiles of zoom level z covering env. With
// reverseY, row 0 is the top row. With unlimitX, tiles beyond the world's
// horizontal edges wrap around and carry a CrossExtent offset; otherwise
// they are dropped.
func TilesForExtent(env geo.Envelope, z int, reverseY, unlimitX bool) []TileItem {
	if z < 0 || !env.IsInit() {
		return nil
	}
	n := 1 << uint(z)
	size := WorldExtent.Width() / float64(n)
	sizeY := WorldExtent.Height() / float64(n)

	begX := int(math.Floor((env.MinX - WorldExtent.MinX) / size))
	endX := int(math.Floor((env.MaxX - WorldExtent.MinX) / size))
	begY := int(math.Floor((env.MinY - WorldExtent.MinY) / sizeY))
	endY := int(math.Floor((env.MaxY - WorldExtent.MinY) / sizeY))

	if begY < 0 {
		begY = 0
	}
	if endY > n-1 {
		endY = n - 1
	}
	if !unlimitX {
		if begX < 0 {
			begX = 0
		}
		if endX > n-1 {
			endX = n - 1
		}
	}

	var tiles []TileItem
	for x := begX; x <= endX; x++ {
		cross := 0
		tileX := x
		if unlimitX {
			cross = int(math.Floor(float64(x) / float64(n)))
			tileX = x - cross*n
		}
		for y := begY; y <= endY; y++ {
			tileY := y
			if reverseY {
				tileY = n - 1 - y
			}
			minX := WorldExtent.MinX + float64(x)*size
			minY := WorldExtent.MinY + float64(y)*sizeY
			tiles = append(tiles, TileItem{
				X: tileX, Y: tileY, Z: z, CrossExtent: cross,
				Env: geo.Envelope{MinX: minX, MinY: minY, MaxX: minX + size, MaxY: minY + sizeY},
			})
		}
	}
	return tiles
}
