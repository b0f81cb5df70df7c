package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	bolt "go.etcd.io/bbolt"

	"geocat/internal/catalog"
	"geocat/internal/geo"
	"geocat/internal/progress"
	"geocat/internal/status"
)

// GeometryType enumerates the geometry kinds a feature class can hold.
// GeometryNone marks a plain attribute table.
type GeometryType int

const (
	GeometryNone GeometryType = iota
	GeometryPoint
	GeometryLineString
	GeometryPolygon
	GeometryMultiPoint
	GeometryMultiLineString
	GeometryMultiPolygon
)

func (t GeometryType) String() string {
	switch t {
	case GeometryPoint:
		return "point"
	case GeometryLineString:
		return "linestring"
	case GeometryPolygon:
		return "polygon"
	case GeometryMultiPoint:
		return "multipoint"
	case GeometryMultiLineString:
		return "multilinestring"
	case GeometryMultiPolygon:
		return "multipolygon"
	default:
		return "none"
	}
}

// GeometryTypeOf maps a concrete geometry to its type tag.
func GeometryTypeOf(g geom.T) GeometryType {
	switch g.(type) {
	case *geom.Point:
		return GeometryPoint
	case *geom.LineString:
		return GeometryLineString
	case *geom.Polygon:
		return GeometryPolygon
	case *geom.MultiPoint:
		return GeometryMultiPoint
	case *geom.MultiLineString:
		return GeometryMultiLineString
	case *geom.MultiPolygon:
		return GeometryMultiPolygon
	default:
		return GeometryNone
	}
}

// indexEntry adapts one feature's bounding box to the spatial index.
type indexEntry struct {
	fid  int64
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

const rectEpsilon = 1e-9

func rectOf(env geo.Envelope) (rtreego.Rect, error) {
	w := env.Width()
	h := env.Height()
	if w < rectEpsilon {
		w = rectEpsilon
	}
	if h < rectEpsilon {
		h = rectEpsilon
	}
	return rtreego.NewRect(rtreego.Point{env.MinX, env.MinY}, []float64{w, h})
}

// FeatureClass is a geometry-bearing table with a spatial index and
// optional pre-simplified overview geometries per zoom level.
type FeatureClass struct {
	*Table

	geomType GeometryType
	minZoom  int
	maxZoom  int

	idxMu      sync.Mutex
	idx        *rtreego.Rtree
	idxEntries map[int64]*indexEntry
	idxLoaded  bool

	ovMu sync.Mutex
	ovDB *bolt.DB
}

func newFeatureClass(t *Table, geomType GeometryType, minZoom, maxZoom int) *FeatureClass {
	fc := &FeatureClass{Table: t, geomType: geomType, minZoom: minZoom, maxZoom: maxZoom}
	fc.BaseObject = catalog.NewBaseObject(t.Parent(), catalog.TypeFeatureClass, t.Name(), t.Path())
	return fc
}

// GeometryType reports the geometry kind stored in this class.
func (fc *FeatureClass) GeometryType() GeometryType { return fc.geomType }

// ZoomRange reports the zoom interval overviews are built for.
func (fc *FeatureClass) ZoomRange() (min, max int) { return fc.minZoom, fc.maxZoom }

// SetZoomRange updates the zoom interval and persists it. Existing
// overviews are not rebuilt.
func (fc *FeatureClass) SetZoomRange(min, max int) error {
	if min < 0 || max < min {
		return status.Errorf(status.ErrInvalidArgument, "bad zoom range %d..%d", min, max)
	}
	if _, err := fc.store.db.Exec(`UPDATE `+tablesTableName+
		` SET min_zoom = ?, max_zoom = ? WHERE name = ?`, min, max, fc.Name()); err != nil {
		return status.Errorf(status.ErrSaveFailed, "save zoom range of %q: %v", fc.Name(), err)
	}
	fc.minZoom, fc.maxZoom = min, max
	return nil
}

// CreateFeature inserts a row and registers it in the spatial index. The
// geometry must match the class geometry type when present.
func (fc *FeatureClass) CreateFeature(f *Feature) (int64, error) {
	if f.Geometry != nil && GeometryTypeOf(f.Geometry) != fc.geomType {
		return 0, status.Errorf(status.ErrInvalidArgument,
			"%q stores %s geometries, got %s", fc.Name(), fc.geomType, GeometryTypeOf(f.Geometry))
	}
	fid, err := fc.Table.CreateFeature(f)
	if err != nil {
		return 0, err
	}
	fc.indexInsert(fid, f.Geometry)
	return fid, nil
}

// UpdateFeature rewrites a row and refreshes its index entry.
func (fc *FeatureClass) UpdateFeature(f *Feature) error {
	if f.Geometry != nil && GeometryTypeOf(f.Geometry) != fc.geomType {
		return status.Errorf(status.ErrInvalidArgument,
			"%q stores %s geometries, got %s", fc.Name(), fc.geomType, GeometryTypeOf(f.Geometry))
	}
	if err := fc.Table.UpdateFeature(f); err != nil {
		return err
	}
	fc.indexRemove(f.FID)
	fc.indexInsert(f.FID, f.Geometry)
	return nil
}

// DeleteFeature removes a row and its index entry.
func (fc *FeatureClass) DeleteFeature(fid int64) error {
	if err := fc.Table.DeleteFeature(fid); err != nil {
		return err
	}
	fc.indexRemove(fid)
	return nil
}

// DeleteFeatures removes every row and resets the index.
func (fc *FeatureClass) DeleteFeatures() error {
	if err := fc.Table.DeleteFeatures(); err != nil {
		return err
	}
	fc.idxMu.Lock()
	fc.idx = rtreego.NewTree(2, 25, 50)
	fc.idxEntries = map[int64]*indexEntry{}
	fc.idxLoaded = true
	fc.idxMu.Unlock()
	return nil
}

func (fc *FeatureClass) indexInsert(fid int64, g geom.T) {
	if g == nil {
		return
	}
	fc.idxMu.Lock()
	defer fc.idxMu.Unlock()
	if !fc.idxLoaded {
		return
	}
	rect, err := rectOf(geo.EnvelopeOf(g))
	if err != nil {
		return
	}
	entry := &indexEntry{fid: fid, rect: rect}
	fc.idx.Insert(entry)
	fc.idxEntries[fid] = entry
}

func (fc *FeatureClass) indexRemove(fid int64) {
	fc.idxMu.Lock()
	defer fc.idxMu.Unlock()
	if !fc.idxLoaded {
		return
	}
	if entry, ok := fc.idxEntries[fid]; ok {
		fc.idx.Delete(entry)
		delete(fc.idxEntries, fid)
	}
}

// ensureIndex builds the spatial index from stored geometries on first use.
func (fc *FeatureClass) ensureIndex() error {
	fc.idxMu.Lock()
	defer fc.idxMu.Unlock()
	if fc.idxLoaded {
		return nil
	}
	idx := rtreego.NewTree(2, 25, 50)
	entries := map[int64]*indexEntry{}
	reader, err := fc.Features()
	if err != nil {
		return err
	}
	defer reader.Close()
	for {
		f, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if f.Geometry == nil {
			continue
		}
		rect, err := rectOf(geo.EnvelopeOf(f.Geometry))
		if err != nil {
			continue
		}
		entry := &indexEntry{fid: f.FID, rect: rect}
		idx.Insert(entry)
		entries[f.FID] = entry
	}
	fc.idx = idx
	fc.idxEntries = entries
	fc.idxLoaded = true
	return nil
}

// FeaturesInEnvelope finds identifiers of features whose bounding boxes
// intersect env.
func (fc *FeatureClass) FeaturesInEnvelope(env geo.Envelope) ([]int64, error) {
	if err := fc.ensureIndex(); err != nil {
		return nil, err
	}
	rect, err := rectOf(env)
	if err != nil {
		return nil, status.Errorf(status.ErrInvalidArgument, "bad envelope: %v", err)
	}
	fc.idxMu.Lock()
	defer fc.idxMu.Unlock()
	var fids []int64
	for _, sp := range fc.idx.SearchIntersect(rect) {
		fids = append(fids, sp.(*indexEntry).fid)
	}
	return fids, nil
}

// Extent reports the merged bounding box of every geometry.
func (fc *FeatureClass) Extent() (geo.Envelope, error) {
	if err := fc.ensureIndex(); err != nil {
		return geo.Envelope{}, err
	}
	fc.idxMu.Lock()
	defer fc.idxMu.Unlock()
	var env geo.Envelope
	first := true
	for _, entry := range fc.idxEntries {
		r := entry.rect
		x := r.PointCoord(0)
		y := r.PointCoord(1)
		box := geo.Envelope{
			MinX: x, MinY: y,
			MaxX: x + r.LengthsCoord(0), MaxY: y + r.LengthsCoord(1),
		}
		if first {
			env = box
			first = false
			continue
		}
		env = env.Merge(box)
	}
	return env, nil
}

// overviewPath is the sidecar file carrying pre-simplified geometries.
func (fc *FeatureClass) overviewPath() string {
	return filepath.Join(fc.store.DataDir(), fc.Name()+".overviews")
}

func (fc *FeatureClass) overviewDB() (*bolt.DB, error) {
	fc.ovMu.Lock()
	defer fc.ovMu.Unlock()
	if fc.ovDB != nil {
		return fc.ovDB, nil
	}
	if err := os.MkdirAll(fc.store.DataDir(), 0o755); err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "create data folder: %v", err)
	}
	db, err := bolt.Open(fc.overviewPath(), 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "open overviews of %q: %v", fc.Name(), err)
	}
	fc.ovDB = db
	return db, nil
}

// Close releases the overview sidecar handle.
func (fc *FeatureClass) Close() error {
	fc.ovMu.Lock()
	defer fc.ovMu.Unlock()
	if fc.ovDB == nil {
		return nil
	}
	err := fc.ovDB.Close()
	fc.ovDB = nil
	return err
}

func zoomBucket(zoom int) []byte {
	return []byte(fmt.Sprintf("z%d", zoom))
}

func fidKey(fid int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(fid))
	return k[:]
}

// zoomTolerance is the vertex decimation threshold for a web-mercator style
// zoom level, in map units.
func zoomTolerance(zoom int) float64 {
	return 360.0 / (256.0 * math.Exp2(float64(zoom)))
}

// CreateOverviews rebuilds the simplified geometry cache for every zoom
// level in the class range.
func (fc *FeatureClass) CreateOverviews(ctx context.Context, prog progress.Progress) error {
	db, err := fc.overviewDB()
	if err != nil {
		return err
	}
	count, err := fc.Count()
	if err != nil {
		return err
	}
	levels := fc.maxZoom - fc.minZoom + 1
	total := float64(count) * float64(levels)
	done := 0

	err = db.Update(func(tx *bolt.Tx) error {
		for zoom := fc.minZoom; zoom <= fc.maxZoom; zoom++ {
			if err := tx.DeleteBucket(zoomBucket(zoom)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			bucket, err := tx.CreateBucket(zoomBucket(zoom))
			if err != nil {
				return err
			}
			reader, err := fc.Features()
			if err != nil {
				return err
			}
			tol := zoomTolerance(zoom)
			for {
				if err := ctx.Err(); err != nil {
					reader.Close()
					return status.Errorf(status.ErrCanceled, "overview build canceled")
				}
				f, err := reader.Next()
				if err == io.EOF {
					break
				}
				if err != nil {
					reader.Close()
					return err
				}
				done++
				if f.Geometry == nil {
					continue
				}
				simplified := decimate(f.Geometry, tol)
				if simplified == nil {
					continue
				}
				blob, err := wkb.Marshal(simplified, wkb.NDR)
				if err != nil {
					reader.Close()
					return err
				}
				if err := bucket.Put(fidKey(f.FID), blob); err != nil {
					reader.Close()
					return err
				}
				if total > 0 && !prog.OnProgress(progress.Continue, float64(done)/total,
					fmt.Sprintf("overview zoom %d", zoom)) {
					reader.Close()
					return status.Errorf(status.ErrCanceled, "overview build canceled")
				}
			}
			reader.Close()
		}
		return nil
	})
	if err != nil {
		return err
	}
	prog.OnProgress(progress.Finished, 1, "overviews ready")
	return nil
}

// OverviewGeometry reads the simplified geometry of one feature at a zoom
// level, or the stored geometry when the level has no overview.
func (fc *FeatureClass) OverviewGeometry(zoom int, fid int64) (geom.T, error) {
	db, err := fc.overviewDB()
	if err != nil {
		return nil, err
	}
	var blob []byte
	err = db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(zoomBucket(clampZoom(zoom, fc.minZoom, fc.maxZoom)))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(fidKey(fid)); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read overview: %v", err)
	}
	if blob == nil {
		f, err := fc.Feature(fid)
		if err != nil {
			return nil, err
		}
		return f.Geometry, nil
	}
	g, err := wkb.Unmarshal(blob)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "decode overview: %v", err)
	}
	return g, nil
}

func clampZoom(z, min, max int) int {
	if z < min {
		return min
	}
	if z > max {
		return max
	}
	return z
}

// decimate drops line and ring vertices closer than tol to the previously
// kept vertex. Endpoints always survive; rings keep their closing vertex.
// Point geometries pass through unchanged.
func decimate(g geom.T, tol float64) geom.T {
	switch t := g.(type) {
	case *geom.Point, *geom.MultiPoint:
		return g
	case *geom.LineString:
		coords := decimateCoords(t.Coords(), tol, false)
		return geom.NewLineString(t.Layout()).MustSetCoords(coords)
	case *geom.MultiLineString:
		out := make([][]geom.Coord, t.NumLineStrings())
		for i := range out {
			out[i] = decimateCoords(t.LineString(i).Coords(), tol, false)
		}
		return geom.NewMultiLineString(t.Layout()).MustSetCoords(out)
	case *geom.Polygon:
		out := make([][]geom.Coord, t.NumLinearRings())
		for i := range out {
			out[i] = decimateCoords(t.LinearRing(i).Coords(), tol, true)
		}
		return geom.NewPolygon(t.Layout()).MustSetCoords(out)
	case *geom.MultiPolygon:
		out := make([][][]geom.Coord, t.NumPolygons())
		for i := range out {
			p := t.Polygon(i)
			rings := make([][]geom.Coord, p.NumLinearRings())
			for j := range rings {
				rings[j] = decimateCoords(p.LinearRing(j).Coords(), tol, true)
			}
			out[i] = rings
		}
		return geom.NewMultiPolygon(t.Layout()).MustSetCoords(out)
	default:
		return nil
	}
}

func decimateCoords(coords []geom.Coord, tol float64, ring bool) []geom.Coord {
	minKeep := 2
	if ring {
		minKeep = 4
	}
	if len(coords) <= minKeep {
		return coords
	}
	kept := []geom.Coord{coords[0]}
	last := coords[0]
	for i := 1; i < len(coords)-1; i++ {
		c := coords[i]
		if math.Hypot(c[0]-last[0], c[1]-last[1]) < tol {
			continue
		}
		kept = append(kept, c)
		last = c
	}
	kept = append(kept, coords[len(coords)-1])
	if len(kept) < minKeep {
		return coords
	}
	return kept
}
