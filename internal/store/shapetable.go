package store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-shapefile"

	"geocat/internal/catalog"
	"geocat/internal/geo"
	"geocat/internal/status"
)

func init() {
	catalog.RegisterInternalOpener(catalog.TypeShapefile, func(sd *catalog.SimpleDataset) (catalog.Object, error) {
		return OpenShapeTable(sd)
	})
}

// ShapeTable is a read-only vector layer backed by an ESRI shapefile. It
// feeds bulk copies into store tables as a RowSource.
type ShapeTable struct {
	catalog.BaseObject

	sf     *shapefile.Shapefile
	fields []Field
	names  []string
	cursor int
}

// OpenShapeTable reads the shapefile wrapped by a composite dataset.
func OpenShapeTable(sd *catalog.SimpleDataset) (*ShapeTable, error) {
	dir := filepath.Dir(sd.Path())
	base := catalog.StemOf(filepath.Base(sd.Path()))
	sf, err := shapefile.ReadFS(os.DirFS(dir), base, nil)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read shapefile %q: %v", sd.Path(), err)
	}
	t := &ShapeTable{
		BaseObject: catalog.NewBaseObject(sd, catalog.TypeFeatureClass, base, sd.Path()),
		sf:         sf,
	}
	if sf.DBF != nil {
		for _, desc := range sf.DBF.FieldDescriptors {
			t.names = append(t.names, desc.Name)
			t.fields = append(t.fields, Field{
				Name:         desc.Name,
				OriginalName: desc.Name,
				Alias:        desc.Name,
				Type:         dbfFieldType(desc.Type),
			})
		}
	}
	return t, nil
}

func dbfFieldType(dbfType byte) FieldType {
	switch dbfType {
	case 'N', 'F':
		return FieldReal
	case 'D':
		return FieldDate
	case 'L':
		return FieldInteger
	default:
		return FieldString
	}
}

// Fields returns the attribute schema read from the DBF companion.
func (t *ShapeTable) Fields() []Field { return t.fields }

// Count returns the number of records.
func (t *ShapeTable) Count() int { return t.sf.NumRecords() }

// GeometryType inspects the records and reports the layer geometry kind.
func (t *ShapeTable) GeometryType() GeometryType {
	for i := 0; i < t.sf.NumRecords(); i++ {
		if _, g := t.sf.Record(i); g != nil {
			return GeometryTypeOf(g)
		}
	}
	return GeometryNone
}

// Extent returns the merged bounding box of every record geometry.
func (t *ShapeTable) Extent() geo.Envelope {
	var env geo.Envelope
	first := true
	for i := 0; i < t.sf.NumRecords(); i++ {
		_, g := t.sf.Record(i)
		if g == nil {
			continue
		}
		box := geo.EnvelopeOf(g)
		if first {
			env = box
			first = false
			continue
		}
		env = env.Merge(box)
	}
	return env
}

// Next yields the following record as a feature, io.EOF after the last.
// Record order gives the feature identifier.
func (t *ShapeTable) Next() (*Feature, error) {
	if t.cursor >= t.sf.NumRecords() {
		return nil, io.EOF
	}
	attrs, g := t.sf.Record(t.cursor)
	t.cursor++
	f := &Feature{
		FID:      int64(t.cursor),
		RID:      -1,
		Values:   make([]any, len(t.fields)),
		Geometry: normalizeGeometry(g),
	}
	for i, name := range t.names {
		f.Values[i] = attrs[name]
	}
	return f, nil
}

// Reset rewinds the record cursor.
func (t *ShapeTable) Reset() { t.cursor = 0 }

// normalizeGeometry strips Z and M dimensions so shapefile records compare
// and store like the rest of the pipeline.
func normalizeGeometry(g geom.T) geom.T {
	if g == nil {
		return nil
	}
	if g.Layout() == geom.XY {
		return g
	}
	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPoint(geom.XY).MustSetCoords(flatten1(t.Coords()))
	case *geom.LineString:
		return geom.NewLineString(geom.XY).MustSetCoords(flatten2(t.Coords()))
	case *geom.Polygon:
		return geom.NewPolygon(geom.XY).MustSetCoords(flatten3(t.Coords()))
	case *geom.MultiPoint:
		return geom.NewMultiPoint(geom.XY).MustSetCoords(flatten2(t.Coords()))
	case *geom.MultiLineString:
		return geom.NewMultiLineString(geom.XY).MustSetCoords(flatten3(t.Coords()))
	case *geom.MultiPolygon:
		coords := t.Coords()
		out := make([][][]geom.Coord, len(coords))
		for i, polygon := range coords {
			out[i] = flatten3(polygon)
		}
		return geom.NewMultiPolygon(geom.XY).MustSetCoords(out)
	default:
		return g
	}
}

func flatten1(c geom.Coord) geom.Coord {
	return geom.Coord{c[0], c[1]}
}

func flatten2(coords []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(coords))
	for i, c := range coords {
		out[i] = flatten1(c)
	}
	return out
}

func flatten3(rings [][]geom.Coord) [][]geom.Coord {
	out := make([][]geom.Coord, len(rings))
	for i, ring := range rings {
		out[i] = flatten2(ring)
	}
	return out
}
