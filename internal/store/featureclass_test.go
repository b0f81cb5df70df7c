package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"geocat/internal/catalog"
	"geocat/internal/config"
	"geocat/internal/progress"
)

func TestOverviews(t *testing.T) {
	s := newTestStore(t)
	fc, err := s.CreateFeatureClass("contours", GeometryLineString, nil, 3, 5)
	require.NoError(t, err)
	defer fc.Close()

	// A jagged line with many vertices close together.
	coords := make([]geom.Coord, 0, 100)
	for i := 0; i < 100; i++ {
		coords = append(coords, geom.Coord{float64(i) * 0.001, float64(i%2) * 0.001})
	}
	line := geom.NewLineString(geom.XY).MustSetCoords(coords)
	fid, err := fc.CreateFeature(&Feature{RID: -1, Geometry: line})
	require.NoError(t, err)

	require.NoError(t, fc.CreateOverviews(context.Background(), progress.New(nil)))
	assert.FileExists(t, fc.overviewPath())

	low, err := fc.OverviewGeometry(3, fid)
	require.NoError(t, err)
	lowLine, ok := low.(*geom.LineString)
	require.True(t, ok)
	assert.Less(t, lowLine.NumCoords(), line.NumCoords(),
		"low zoom overview drops vertices")

	// Endpoints survive decimation.
	assert.Equal(t, coords[0], lowLine.Coord(0))
	assert.Equal(t, coords[len(coords)-1], lowLine.Coord(lowLine.NumCoords()-1))

	// A zoom outside the range clamps to the nearest built level.
	clamped, err := fc.OverviewGeometry(0, fid)
	require.NoError(t, err)
	assert.Equal(t, low.FlatCoords(), clamped.FlatCoords())
}

func TestOverviewFallsBackToStoredGeometry(t *testing.T) {
	s := newTestStore(t)
	fc, err := s.CreateFeatureClass("raw", GeometryPoint, nil, 0, 4)
	require.NoError(t, err)
	defer fc.Close()

	fid, err := fc.CreateFeature(&Feature{RID: -1, Geometry: pointAt(5, 6)})
	require.NoError(t, err)

	// No overviews built yet: the stored geometry comes back.
	g, err := fc.OverviewGeometry(2, fid)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, g.FlatCoords())
}

func TestSetZoomRange(t *testing.T) {
	s := newTestStore(t)
	fc, err := s.CreateFeatureClass("zr", GeometryPoint, nil, 0, 18)
	require.NoError(t, err)

	require.NoError(t, fc.SetZoomRange(4, 12))
	assert.Error(t, fc.SetZoomRange(5, 2))
	assert.Error(t, fc.SetZoomRange(-1, 2))

	path := s.Path()
	require.NoError(t, s.Close())
	s2, err := Open(nil, "test.gcdb", path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer s2.Close()
	require.True(t, s2.HasChildren())
	reopened := s2.Child("zr").(*FeatureClass)
	min, max := reopened.ZoomRange()
	assert.Equal(t, 4, min)
	assert.Equal(t, 12, max)
}

func TestCatalogShowsStores(t *testing.T) {
	root := t.TempDir()
	log := zap.NewNop().Sugar()

	s, err := Create(nil, "city.gcdb", filepath.Join(root, "city.gcdb"), log)
	require.NoError(t, err)
	_, err = s.CreateTable("streets", []Field{{Name: "name", Type: FieldString}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cat := catalog.New([]string{root}, config.Default(), log)
	cat.AddFactory(NewDataStoreFactory(log))
	cat.AddFactory(catalog.NewFolderFactory(cat))
	cat.AddFactory(catalog.NewFileFactory())

	require.True(t, cat.HasChildren())
	folder := cat.Children()[0].(*catalog.Folder)
	require.True(t, folder.HasChildren())

	obj := folder.Child("city.gcdb")
	require.NotNil(t, obj)
	assert.Equal(t, catalog.TypeStore, obj.Type())

	// The sibling data folder is part of the store, not a folder object.
	assert.Nil(t, folder.Child("city.gcdb.data"))

	tbl := cat.GetObject(catalog.Scheme + filepath.Base(root) + "/city.gcdb/streets")
	require.NotNil(t, tbl)
	assert.Equal(t, catalog.TypeTable, tbl.Type())
}
