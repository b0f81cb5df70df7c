package mapview

import (
	"math"

	"github.com/twpayne/go-geom"

	"geocat/internal/geo"
	"geocat/internal/status"
	"geocat/internal/store"
)

// maxUndoSteps bounds the edit history; the oldest snapshot is evicted when
// it is full.
const maxUndoSteps = 10

// DefaultEditTolerancePx is the touch hit radius in display pixels.
const DefaultEditTolerancePx = 7

// PointID addresses one vertex: vertex index inside a ring, ring index
// inside a geometry part, part index inside a multi geometry. -1 marks an
// unset level.
type PointID struct {
	Point    int
	Ring     int
	Geometry int
}

// NoPoint is the empty selection.
var NoPoint = PointID{Point: -1, Ring: -1, Geometry: -1}

// Valid reports whether the identifier addresses a vertex.
func (p PointID) Valid() bool { return p.Point >= 0 && p.Ring >= 0 && p.Geometry >= 0 }

// TouchKind classifies what a touch landed on.
type TouchKind int

const (
	// TouchNone hit neither a vertex nor a geometry.
	TouchNone TouchKind = iota
	// TouchVertex hit an editable vertex.
	TouchVertex
	// TouchRegion hit a geometry body away from its vertices.
	TouchRegion
)

// TouchResult reports what a touch selected.
type TouchResult struct {
	Kind TouchKind
	ID   PointID
}

// TouchPhase is the stage of a pointer gesture.
type TouchPhase int

const (
	TouchDown TouchPhase = iota
	TouchMove
	TouchUp
)

// editGeom holds the working geometry as nested vertex slices:
// parts[geometry][ring][vertex]. Point and line geometries use ring 0 only.
// Polygon rings are stored open; the closing vertex is re-added when the
// geometry is recomposed.
type editGeom struct {
	typ   store.GeometryType
	parts [][][]geo.Point
}

func (e *editGeom) clone() *editGeom {
	out := &editGeom{typ: e.typ, parts: make([][][]geo.Point, len(e.parts))}
	for i, part := range e.parts {
		out.parts[i] = make([][]geo.Point, len(part))
		for j, ring := range part {
			out.parts[i][j] = append([]geo.Point(nil), ring...)
		}
	}
	return out
}

func (e *editGeom) isMulti() bool {
	switch e.typ {
	case store.GeometryMultiPoint, store.GeometryMultiLineString, store.GeometryMultiPolygon:
		return true
	}
	return false
}

func (e *editGeom) isPolygonal() bool {
	return e.typ == store.GeometryPolygon || e.typ == store.GeometryMultiPolygon
}

func (e *editGeom) isLinear() bool {
	return e.typ == store.GeometryLineString || e.typ == store.GeometryMultiLineString
}

func (e *editGeom) empty() bool {
	for _, part := range e.parts {
		for _, ring := range part {
			if len(ring) > 0 {
				return false
			}
		}
	}
	return true
}

func (e *editGeom) vertex(id PointID) (geo.Point, bool) {
	if !id.Valid() || id.Geometry >= len(e.parts) {
		return geo.Point{}, false
	}
	part := e.parts[id.Geometry]
	if id.Ring >= len(part) || id.Point >= len(part[id.Ring]) {
		return geo.Point{}, false
	}
	return part[id.Ring][id.Point], true
}

func (e *editGeom) setVertex(id PointID, p geo.Point) bool {
	if _, ok := e.vertex(id); !ok {
		return false
	}
	e.parts[id.Geometry][id.Ring][id.Point] = p
	return true
}

// firstVertex is the selection fallback after undo, redo and part removal.
func (e *editGeom) firstVertex() PointID {
	for g, part := range e.parts {
		for r, ring := range part {
			if len(ring) > 0 {
				return PointID{Point: 0, Ring: r, Geometry: g}
			}
		}
	}
	return NoPoint
}

func decomposeCoords(coords []geom.Coord) []geo.Point {
	out := make([]geo.Point, len(coords))
	for i, c := range coords {
		out[i] = geo.Point{X: c[0], Y: c[1]}
	}
	return out
}

func openRing(coords []geom.Coord) []geo.Point {
	pts := decomposeCoords(coords)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	return pts
}

// decompose breaks a geometry into editable vertex slices.
func decompose(g geom.T) (*editGeom, error) {
	switch t := g.(type) {
	case *geom.Point:
		return &editGeom{typ: store.GeometryPoint,
			parts: [][][]geo.Point{{decomposeCoords([]geom.Coord{t.Coords()})}}}, nil
	case *geom.LineString:
		return &editGeom{typ: store.GeometryLineString,
			parts: [][][]geo.Point{{decomposeCoords(t.Coords())}}}, nil
	case *geom.Polygon:
		rings := make([][]geo.Point, t.NumLinearRings())
		for i := range rings {
			rings[i] = openRing(t.LinearRing(i).Coords())
		}
		return &editGeom{typ: store.GeometryPolygon, parts: [][][]geo.Point{rings}}, nil
	case *geom.MultiPoint:
		parts := make([][][]geo.Point, t.NumPoints())
		for i := range parts {
			parts[i] = [][]geo.Point{decomposeCoords([]geom.Coord{t.Point(i).Coords()})}
		}
		return &editGeom{typ: store.GeometryMultiPoint, parts: parts}, nil
	case *geom.MultiLineString:
		parts := make([][][]geo.Point, t.NumLineStrings())
		for i := range parts {
			parts[i] = [][]geo.Point{decomposeCoords(t.LineString(i).Coords())}
		}
		return &editGeom{typ: store.GeometryMultiLineString, parts: parts}, nil
	case *geom.MultiPolygon:
		parts := make([][][]geo.Point, t.NumPolygons())
		for i := range parts {
			p := t.Polygon(i)
			rings := make([][]geo.Point, p.NumLinearRings())
			for j := range rings {
				rings[j] = openRing(p.LinearRing(j).Coords())
			}
			parts[i] = rings
		}
		return &editGeom{typ: store.GeometryMultiPolygon, parts: parts}, nil
	default:
		return nil, status.Errorf(status.ErrUnsupported, "geometry kind not editable")
	}
}

func composeCoords(pts []geo.Point) []geom.Coord {
	out := make([]geom.Coord, len(pts))
	for i, p := range pts {
		out[i] = geom.Coord{p.X, p.Y}
	}
	return out
}

func closeRing(pts []geo.Point) []geom.Coord {
	coords := composeCoords(pts)
	if len(coords) > 0 {
		coords = append(coords, geom.Coord{pts[0].X, pts[0].Y})
	}
	return coords
}

// compose rebuilds a geometry from the working representation. Returns nil
// when the geometry is empty.
func (e *editGeom) compose() geom.T {
	if e.empty() {
		return nil
	}
	switch e.typ {
	case store.GeometryPoint:
		p := e.parts[0][0][0]
		return geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{p.X, p.Y})
	case store.GeometryLineString:
		return geom.NewLineString(geom.XY).MustSetCoords(composeCoords(e.parts[0][0]))
	case store.GeometryPolygon:
		rings := make([][]geom.Coord, len(e.parts[0]))
		for i, ring := range e.parts[0] {
			rings[i] = closeRing(ring)
		}
		return geom.NewPolygon(geom.XY).MustSetCoords(rings)
	case store.GeometryMultiPoint:
		coords := make([]geom.Coord, 0, len(e.parts))
		for _, part := range e.parts {
			if len(part[0]) > 0 {
				p := part[0][0]
				coords = append(coords, geom.Coord{p.X, p.Y})
			}
		}
		return geom.NewMultiPoint(geom.XY).MustSetCoords(coords)
	case store.GeometryMultiLineString:
		lines := make([][]geom.Coord, 0, len(e.parts))
		for _, part := range e.parts {
			if len(part[0]) > 0 {
				lines = append(lines, composeCoords(part[0]))
			}
		}
		return geom.NewMultiLineString(geom.XY).MustSetCoords(lines)
	case store.GeometryMultiPolygon:
		polys := make([][][]geom.Coord, 0, len(e.parts))
		for _, part := range e.parts {
			rings := make([][]geom.Coord, 0, len(part))
			for _, ring := range part {
				if len(ring) > 0 {
					rings = append(rings, closeRing(ring))
				}
			}
			if len(rings) > 0 {
				polys = append(polys, rings)
			}
		}
		return geom.NewMultiPolygon(geom.XY).MustSetCoords(polys)
	default:
		return nil
	}
}

// validToSave checks the structural minimums before a feature is written.
func (e *editGeom) validToSave() error {
	if e.empty() {
		return status.Errorf(status.ErrInvalidArgument, "geometry is empty")
	}
	for _, part := range e.parts {
		for r, ring := range part {
			if len(ring) == 0 {
				continue
			}
			if e.isLinear() && len(ring) < 2 {
				return status.Errorf(status.ErrInvalidArgument, "a line needs at least 2 points")
			}
			if e.isPolygonal() && len(ring) < 3 {
				return status.Errorf(status.ErrInvalidArgument, "ring %d needs at least 3 points", r)
			}
		}
	}
	return nil
}

// EditOverlay carries an interactive editing session over one feature: a
// working geometry snapshot, a vertex selection and a bounded undo history.
type EditOverlay struct {
	view *View

	fc  *store.FeatureClass
	fid int64

	geometry *editGeom
	selected PointID
	emptied  bool

	history    []*editGeom
	historyPos int

	tolerancePx float64
	dragging    bool
}

// NewEditOverlay builds an idle overlay for a view.
func NewEditOverlay(v *View) *EditOverlay {
	return &EditOverlay{view: v, fid: -1, selected: NoPoint, tolerancePx: DefaultEditTolerancePx}
}

// SetTolerance sets the touch hit radius in display pixels.
func (o *EditOverlay) SetTolerance(pixels float64) {
	if pixels > 0 {
		o.tolerancePx = pixels
	}
}

// Editing reports whether a session is active.
func (o *EditOverlay) Editing() bool { return o.geometry != nil }

// Visible draws the overlay only while editing.
func (o *EditOverlay) Visible() bool { return o.Editing() }

// Hides reports whether a feature is hidden from layer drawing because it
// is being edited.
func (o *EditOverlay) Hides(fc *store.FeatureClass, fid int64) bool {
	return o.Editing() && o.fc == fc && o.fid == fid
}

// Selected returns the current vertex selection.
func (o *EditOverlay) Selected() PointID { return o.selected }

// SelectedPoint returns the selected vertex coordinates.
func (o *EditOverlay) SelectedPoint() (geo.Point, bool) {
	if o.geometry == nil {
		return geo.Point{}, false
	}
	return o.geometry.vertex(o.selected)
}

// Geometry returns the working geometry, nil when empty.
func (o *EditOverlay) Geometry() geom.T {
	if o.geometry == nil {
		return nil
	}
	return o.geometry.compose()
}

func (o *EditOverlay) startSession(fc *store.FeatureClass, fid int64, e *editGeom) {
	o.fc = fc
	o.fid = fid
	o.geometry = e
	o.emptied = false
	o.dragging = false
	o.selected = e.firstVertex()
	o.history = []*editGeom{e.clone()}
	o.historyPos = 0
}

// CreateGeometry starts a session over a new feature of the class geometry
// kind. Point kinds start with one vertex at the view center; others start
// empty and grow through AddPoint.
func (o *EditOverlay) CreateGeometry(fc *store.FeatureClass) error {
	if o.Editing() {
		return status.Errorf(status.ErrUnsupported, "an edit session is already active")
	}
	typ := fc.GeometryType()
	e := &editGeom{typ: typ}
	center := o.view.Center()
	switch typ {
	case store.GeometryPoint, store.GeometryMultiPoint:
		e.parts = [][][]geo.Point{{{center}}}
	case store.GeometryLineString, store.GeometryMultiLineString,
		store.GeometryPolygon, store.GeometryMultiPolygon:
		e.parts = [][][]geo.Point{{{}}}
	default:
		return status.Errorf(status.ErrUnsupported, "class %q is not editable", fc.Name())
	}
	o.startSession(fc, -1, e)
	return nil
}

// EditFeature starts a session over an existing feature. The feature is
// hidden from layer drawing until the session ends.
func (o *EditOverlay) EditFeature(fc *store.FeatureClass, fid int64) error {
	if o.Editing() {
		return status.Errorf(status.ErrUnsupported, "an edit session is already active")
	}
	f, err := fc.Feature(fid)
	if err != nil {
		return err
	}
	if f.Geometry == nil {
		return status.Errorf(status.ErrInvalidArgument, "feature %d has no geometry", fid)
	}
	e, err := decompose(f.Geometry)
	if err != nil {
		return err
	}
	o.startSession(fc, fid, e)
	return nil
}

// DeleteGeometry empties the working geometry; a following Save deletes the
// feature.
func (o *EditOverlay) DeleteGeometry() error {
	if !o.Editing() {
		return status.Errorf(status.ErrUnsupported, "no active edit session")
	}
	o.geometry.parts = nil
	o.emptied = true
	o.selected = NoPoint
	o.saveToHistory()
	return nil
}

// saveToHistory snapshots the working geometry, truncating any redo tail
// and evicting the oldest snapshot when the history is full.
func (o *EditOverlay) saveToHistory() {
	o.history = o.history[:o.historyPos+1]
	o.history = append(o.history, o.geometry.clone())
	if len(o.history) > maxUndoSteps {
		o.history = o.history[1:]
	}
	o.historyPos = len(o.history) - 1
}

// CanUndo reports whether an older snapshot exists.
func (o *EditOverlay) CanUndo() bool { return o.Editing() && o.historyPos > 0 }

// CanRedo reports whether an undone snapshot can be restored.
func (o *EditOverlay) CanRedo() bool { return o.Editing() && o.historyPos < len(o.history)-1 }

// Undo restores the previous snapshot and selects its first vertex.
func (o *EditOverlay) Undo() bool {
	if !o.CanUndo() {
		return false
	}
	o.historyPos--
	o.geometry = o.history[o.historyPos].clone()
	o.emptied = o.geometry.empty()
	o.selected = o.geometry.firstVertex()
	return true
}

// Redo restores the next snapshot and selects its first vertex.
func (o *EditOverlay) Redo() bool {
	if !o.CanRedo() {
		return false
	}
	o.historyPos++
	o.geometry = o.history[o.historyPos].clone()
	o.emptied = o.geometry.empty()
	o.selected = o.geometry.firstVertex()
	return true
}

// AddPoint inserts a vertex after the selected one, or at the end of the
// selected ring. The new vertex becomes selected.
func (o *EditOverlay) AddPoint(p geo.Point) error {
	if !o.Editing() {
		return status.Errorf(status.ErrUnsupported, "no active edit session")
	}
	e := o.geometry
	switch e.typ {
	case store.GeometryPoint:
		if !e.empty() {
			return status.Errorf(status.ErrUnsupported, "a point has a single vertex")
		}
		e.parts = [][][]geo.Point{{{p}}}
		o.selected = PointID{Point: 0, Ring: 0, Geometry: 0}
	case store.GeometryMultiPoint:
		e.parts = append(e.parts, [][]geo.Point{{p}})
		o.selected = PointID{Point: 0, Ring: 0, Geometry: len(e.parts) - 1}
	default:
		if len(e.parts) == 0 {
			e.parts = [][][]geo.Point{{{}}}
		}
		g, r := o.targetRing()
		ring := e.parts[g][r]
		at := len(ring)
		if o.selected.Valid() && o.selected.Geometry == g && o.selected.Ring == r {
			at = o.selected.Point + 1
		}
		ring = append(ring[:at], append([]geo.Point{p}, ring[at:]...)...)
		e.parts[g][r] = ring
		o.selected = PointID{Point: at, Ring: r, Geometry: g}
	}
	o.emptied = false
	o.saveToHistory()
	return nil
}

// targetRing resolves the insertion target, biased to the selection. A
// selection with no vertex yet still pins the part and ring.
func (o *EditOverlay) targetRing() (part, ring int) {
	g, r := o.selected.Geometry, o.selected.Ring
	if g >= 0 && g < len(o.geometry.parts) && r >= 0 && r < len(o.geometry.parts[g]) {
		return g, r
	}
	return 0, 0
}

// DeletePoint removes the selected vertex. A line keeps at least 2 points
// and a ring at least 3; removing the only vertex of a point part removes
// the part, and removing the last part empties the geometry.
func (o *EditOverlay) DeletePoint() error {
	if !o.Editing() || !o.selected.Valid() {
		return status.Errorf(status.ErrNotFound, "no vertex selected")
	}
	e := o.geometry
	id := o.selected
	switch e.typ {
	case store.GeometryPoint:
		e.parts = nil
		o.emptied = true
		o.selected = NoPoint
	case store.GeometryMultiPoint:
		e.parts = append(e.parts[:id.Geometry], e.parts[id.Geometry+1:]...)
		if len(e.parts) == 0 {
			o.emptied = true
			o.selected = NoPoint
		} else {
			o.selected = e.firstVertex()
		}
	default:
		ring := e.parts[id.Geometry][id.Ring]
		min := 2
		if e.isPolygonal() {
			min = 3
		}
		if len(ring) <= min {
			return status.Errorf(status.ErrUnsupported,
				"cannot drop below %d points", min)
		}
		ring = append(ring[:id.Point], ring[id.Point+1:]...)
		e.parts[id.Geometry][id.Ring] = ring
		if id.Point >= len(ring) {
			id.Point = len(ring) - 1
		}
		o.selected = id
	}
	o.saveToHistory()
	return nil
}

// AddGeometryPart appends a new part to a multi geometry: a vertex at the
// view center for multipoints, an empty ring otherwise. The new part
// becomes the edit target.
func (o *EditOverlay) AddGeometryPart() error {
	if !o.Editing() {
		return status.Errorf(status.ErrUnsupported, "no active edit session")
	}
	e := o.geometry
	if !e.isMulti() {
		return status.Errorf(status.ErrUnsupported, "geometry has a single part")
	}
	if e.typ == store.GeometryMultiPoint {
		e.parts = append(e.parts, [][]geo.Point{{o.view.Center()}})
		o.selected = PointID{Point: 0, Ring: 0, Geometry: len(e.parts) - 1}
	} else {
		e.parts = append(e.parts, [][]geo.Point{{}})
		o.selected = PointID{Point: -1, Ring: 0, Geometry: len(e.parts) - 1}
	}
	o.emptied = false
	o.saveToHistory()
	return nil
}

// DeleteGeometryPart removes the selected part. Removing the last one
// empties the geometry; a following Save deletes the feature.
func (o *EditOverlay) DeleteGeometryPart() error {
	if !o.Editing() {
		return status.Errorf(status.ErrUnsupported, "no active edit session")
	}
	e := o.geometry
	if !e.isMulti() {
		return status.Errorf(status.ErrUnsupported, "geometry has a single part")
	}
	g := o.selected.Geometry
	if g < 0 || g >= len(e.parts) {
		return status.Errorf(status.ErrNotFound, "no part selected")
	}
	e.parts = append(e.parts[:g], e.parts[g+1:]...)
	if len(e.parts) == 0 {
		o.emptied = true
		o.selected = NoPoint
	} else {
		o.selected = e.firstVertex()
	}
	o.saveToHistory()
	return nil
}

// AddHole opens a new interior ring in the selected polygon part.
func (o *EditOverlay) AddHole() error {
	if !o.Editing() {
		return status.Errorf(status.ErrUnsupported, "no active edit session")
	}
	e := o.geometry
	if !e.isPolygonal() {
		return status.Errorf(status.ErrUnsupported, "only polygons have holes")
	}
	g := 0
	if o.selected.Valid() {
		g = o.selected.Geometry
	}
	if g >= len(e.parts) {
		return status.Errorf(status.ErrNotFound, "no part selected")
	}
	e.parts[g] = append(e.parts[g], []geo.Point{})
	o.selected = PointID{Point: -1, Ring: len(e.parts[g]) - 1, Geometry: g}
	o.saveToHistory()
	return nil
}

// DeleteHole removes the selected interior ring. The exterior ring cannot
// be removed this way.
func (o *EditOverlay) DeleteHole() error {
	if !o.Editing() || o.selected.Ring < 0 {
		return status.Errorf(status.ErrNotFound, "no ring selected")
	}
	e := o.geometry
	if !e.isPolygonal() {
		return status.Errorf(status.ErrUnsupported, "only polygons have holes")
	}
	if o.selected.Ring == 0 {
		return status.Errorf(status.ErrUnsupported, "cannot remove the exterior ring")
	}
	g := o.selected.Geometry
	rings := e.parts[g]
	rings = append(rings[:o.selected.Ring], rings[o.selected.Ring+1:]...)
	e.parts[g] = rings
	o.selected = PointID{Point: 0, Ring: 0, Geometry: g}
	o.saveToHistory()
	return nil
}

// Touch feeds one stage of a pointer gesture at display coordinates. Down
// selects a vertex or geometry under the tolerance radius, move drags the
// selected vertex, up commits the drag to history.
func (o *EditOverlay) Touch(x, y float64, phase TouchPhase) TouchResult {
	if !o.Editing() {
		return TouchResult{Kind: TouchNone, ID: NoPoint}
	}
	t := o.view.Transform
	world := t.DisplayToWorld(geo.Point{X: x, Y: y})
	tol := t.MapDistance(o.tolerancePx)

	switch phase {
	case TouchDown:
		if id, ok := o.findVertex(world, tol); ok {
			o.selected = id
			o.dragging = true
			return TouchResult{Kind: TouchVertex, ID: id}
		}
		if id, ok := o.findRegion(world, tol); ok {
			o.selected = id
			return TouchResult{Kind: TouchRegion, ID: id}
		}
		return TouchResult{Kind: TouchNone, ID: NoPoint}
	case TouchMove:
		if o.dragging && o.selected.Valid() {
			o.geometry.setVertex(o.selected, world)
			return TouchResult{Kind: TouchVertex, ID: o.selected}
		}
		return TouchResult{Kind: TouchNone, ID: NoPoint}
	default:
		if o.dragging {
			o.dragging = false
			o.geometry.setVertex(o.selected, world)
			o.saveToHistory()
			return TouchResult{Kind: TouchVertex, ID: o.selected}
		}
		return TouchResult{Kind: TouchNone, ID: NoPoint}
	}
}

// findVertex looks for a vertex within tol of p. The search starts from the
// selected part and ring so repeated touches near shared boundaries keep
// picking from the same component.
func (o *EditOverlay) findVertex(p geo.Point, tol float64) (PointID, bool) {
	e := o.geometry
	order := partOrder(len(e.parts), o.selected.Geometry)
	for _, g := range order {
		rings := e.parts[g]
		ringOrder := []int{}
		if o.selected.Valid() && g == o.selected.Geometry && o.selected.Ring < len(rings) {
			ringOrder = append(ringOrder, o.selected.Ring)
		}
		for r := range rings {
			if len(ringOrder) > 0 && r == ringOrder[0] {
				continue
			}
			ringOrder = append(ringOrder, r)
		}
		for _, r := range ringOrder {
			ring := rings[r]
			// On the hinted ring the scan starts at the selected vertex
			// and wraps, so a re-tap near a cluster stays on it.
			start := 0
			if o.selected.Valid() && g == o.selected.Geometry && r == o.selected.Ring &&
				o.selected.Point < len(ring) {
				start = o.selected.Point
			}
			for k := range ring {
				i := (start + k) % len(ring)
				v := ring[i]
				if math.Hypot(v.X-p.X, v.Y-p.Y) <= tol {
					return PointID{Point: i, Ring: r, Geometry: g}, true
				}
			}
		}
	}
	return NoPoint, false
}

// findRegion looks for a geometry body under p: within tol of a segment, or
// inside a polygon ring.
func (o *EditOverlay) findRegion(p geo.Point, tol float64) (PointID, bool) {
	e := o.geometry
	for _, g := range partOrder(len(e.parts), o.selected.Geometry) {
		for r, ring := range e.parts[g] {
			if len(ring) < 2 {
				continue
			}
			closed := e.isPolygonal()
			n := len(ring)
			for i := 0; i < n; i++ {
				if i == n-1 && !closed {
					break
				}
				a := ring[i]
				b := ring[(i+1)%n]
				if segmentDistance(p, a, b) <= tol {
					return PointID{Point: i, Ring: r, Geometry: g}, true
				}
			}
			if closed && r == 0 && pointInRing(p, ring) {
				return PointID{Point: 0, Ring: r, Geometry: g}, true
			}
		}
	}
	return NoPoint, false
}

// partOrder yields part indexes starting from the hinted one.
func partOrder(n, hint int) []int {
	order := make([]int, 0, n)
	if hint >= 0 && hint < n {
		order = append(order, hint)
	}
	for i := 0; i < n; i++ {
		if i != hint {
			order = append(order, i)
		}
	}
	return order
}

func segmentDistance(p, a, b geo.Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	u := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	u = math.Max(0, math.Min(1, u))
	return math.Hypot(p.X-(a.X+u*dx), p.Y-(a.Y+u*dy))
}

func pointInRing(p geo.Point, ring []geo.Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a := ring[i]
		b := ring[j]
		if (a.Y > p.Y) != (b.Y > p.Y) &&
			p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			inside = !inside
		}
	}
	return inside
}

// Save writes the session result: a new feature is inserted, an edited one
// updated, an emptied one deleted. The session ends and the feature is
// unhidden. Returns the feature identifier, -1 when it was deleted.
func (o *EditOverlay) Save() (int64, error) {
	if !o.Editing() {
		return -1, status.Errorf(status.ErrUnsupported, "no active edit session")
	}
	fc, fid := o.fc, o.fid
	defer o.reset()

	if o.emptied || o.geometry.empty() {
		if fid < 0 {
			return -1, nil
		}
		if err := fc.DeleteFeature(fid); err != nil {
			return -1, err
		}
		return -1, nil
	}
	if err := o.geometry.validToSave(); err != nil {
		return -1, err
	}
	g := o.geometry.compose()
	if fid < 0 {
		newFID, err := fc.CreateFeature(&store.Feature{
			RID:      -1,
			Values:   make([]any, len(fc.Fields())),
			Geometry: g,
		})
		if err != nil {
			return -1, err
		}
		return newFID, nil
	}
	f, err := fc.Feature(fid)
	if err != nil {
		return -1, err
	}
	f.Geometry = g
	if err := fc.UpdateFeature(f); err != nil {
		return -1, err
	}
	return fid, nil
}

// Cancel discards the session without touching the store.
func (o *EditOverlay) Cancel() {
	o.reset()
}

func (o *EditOverlay) reset() {
	o.fc = nil
	o.fid = -1
	o.geometry = nil
	o.selected = NoPoint
	o.emptied = false
	o.dragging = false
	o.history = nil
	o.historyPos = 0
}

// Draw renders the working geometry.
func (o *EditOverlay) Draw(r Renderer, t *Transform) error {
	g := o.Geometry()
	if g == nil {
		return nil
	}
	return r.DrawGeometry(g, t)
}
