// Package geo holds the small planar primitives shared by the catalog, store
// and map layers: points, envelopes and packed colors. World coordinates are
// in projected map units (X east, Y north).
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Point is a position in world or display coordinates.
type Point struct {
	X float64
	Y float64
}

// Envelope is an axis-aligned bounding rectangle.
type Envelope struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// Width returns the envelope width.
func (e Envelope) Width() float64 { return e.MaxX - e.MinX }

// Height returns the envelope height.
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }

// Center returns the envelope midpoint.
func (e Envelope) Center() Point {
	return Point{X: (e.MinX + e.MaxX) / 2, Y: (e.MinY + e.MaxY) / 2}
}

// IsInit reports whether the envelope has positive area.
func (e Envelope) IsInit() bool {
	return e.MaxX > e.MinX && e.MaxY > e.MinY
}

// Contains returns true if p lies within the envelope (inclusive).
func (e Envelope) Contains(p Point) bool {
	return p.X >= e.MinX && p.X <= e.MaxX && p.Y >= e.MinY && p.Y <= e.MaxY
}

// Intersects returns true if the two envelopes overlap.
func (e Envelope) Intersects(other Envelope) bool {
	return !(other.MaxX < e.MinX || other.MinX > e.MaxX ||
		other.MaxY < e.MinY || other.MinY > e.MaxY)
}

// Expand returns the envelope grown by margin in all directions.
func (e Envelope) Expand(margin float64) Envelope {
	return Envelope{
		MinX: e.MinX - margin,
		MinY: e.MinY - margin,
		MaxX: e.MaxX + margin,
		MaxY: e.MaxY + margin,
	}
}

// Merge returns the union of the two envelopes.
func (e Envelope) Merge(other Envelope) Envelope {
	return Envelope{
		MinX: math.Min(e.MinX, other.MinX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MaxY: math.Max(e.MaxY, other.MaxY),
	}
}

// EnvelopeAround returns a tolerance rectangle centered on p.
func EnvelopeAround(p Point, dx, dy float64) Envelope {
	return Envelope{MinX: p.X - dx, MinY: p.Y - dy, MaxX: p.X + dx, MaxY: p.Y + dy}
}

// EnvelopeOf returns the bounding envelope of a geometry.
func EnvelopeOf(g geom.T) Envelope {
	if g == nil {
		return Envelope{}
	}
	b := g.Bounds()
	if b == nil {
		return Envelope{}
	}
	return Envelope{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
}

// Intersects reports whether the bounding envelope of g overlaps env.
func Intersects(g geom.T, env Envelope) bool {
	if g == nil {
		return false
	}
	return env.Intersects(EnvelopeOf(g))
}

// RGBA is a color with 0-255 channels.
type RGBA struct {
	R uint8
	G uint8
	B uint8
	A uint8
}

// Hex packs the color into a single integer (AARRGGBB) for persistence.
func (c RGBA) Hex() int {
	return int(c.A)<<24 | int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}

// RGBAFromHex unpacks a color produced by Hex.
func RGBAFromHex(v int) RGBA {
	return RGBA{
		A: uint8(v >> 24 & 0xff),
		R: uint8(v >> 16 & 0xff),
		G: uint8(v >> 8 & 0xff),
		B: uint8(v & 0xff),
	}
}
