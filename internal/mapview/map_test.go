package mapview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocat/internal/catalog"
	"geocat/internal/config"
	"geocat/internal/geo"
)

func TestMapDefaults(t *testing.T) {
	m := NewMap("test", "a test map")
	assert.Equal(t, DefaultEPSG, m.EPSG)
	assert.Equal(t, geo.RGBA{R: 210, G: 245, B: 255, A: 255}, m.Background)
	assert.Equal(t, WorldExtent, m.Bounds)
	assert.Empty(t, m.Layers())
}

func TestMapSaveOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewMap("city", "city overview")
	m.Background = geo.RGBA{R: 1, G: 2, B: 3, A: 4}
	m.Bounds = geo.Envelope{MinX: -10, MinY: -20, MaxX: 30, MaxY: 40}
	_, err := m.AddLayer("streets", "geocat://data/city.gcdb/streets")
	require.NoError(t, err)
	l, err := m.AddLayer("parcels", "geocat://data/city.gcdb/parcels")
	require.NoError(t, err)
	l.Visible = false

	path := filepath.Join(dir, "city."+MapExt)
	require.NoError(t, m.Save(path))

	got, err := OpenMap(path)
	require.NoError(t, err)
	assert.Equal(t, "city", got.Name)
	assert.Equal(t, "city overview", got.Description)
	assert.Equal(t, m.Background, got.Background)
	assert.Equal(t, m.Bounds, got.Bounds)
	require.Len(t, got.Layers(), 2)
	assert.Equal(t, "streets", got.Layers()[0].Name)
	assert.True(t, got.Layers()[0].Visible)
	assert.False(t, got.Layers()[1].Visible)
	assert.Equal(t, "geocat://data/city.gcdb/parcels", got.Layers()[1].Source)
}

func TestMapRelativePaths(t *testing.T) {
	dir := t.TempDir()
	shp := filepath.Join(dir, "roads.shp")
	require.NoError(t, os.WriteFile(shp, []byte("x"), 0o644))

	m := NewMap("rel", "")
	m.SetRelativePaths(true)
	_, err := m.AddLayer("roads", shp)
	require.NoError(t, err)

	path := filepath.Join(dir, "rel."+MapExt)
	require.NoError(t, m.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"roads.shp"`)
	assert.NotContains(t, string(data), dir)

	got, err := OpenMap(path)
	require.NoError(t, err)
	require.Len(t, got.Layers(), 1)
	assert.Equal(t, shp, got.Layers()[0].Source, "relative source resolves against the document")
}

func TestAddLayerValidatesCatalogSource(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "roads.txt"), []byte("x"), 0o644))

	cat := catalog.New([]string{root}, config.Default(), testLogger())
	cat.AddFactory(catalog.NewFolderFactory(cat))
	cat.AddFactory(catalog.NewFileFactory())

	m := NewMap("validated", "")
	m.SetCatalog(cat)

	_, err := m.AddLayer("roads", catalog.Scheme+filepath.Base(root)+"/roads.txt")
	require.NoError(t, err)
	_, err = m.AddLayer("missing", catalog.Scheme+filepath.Base(root)+"/nope")
	assert.Error(t, err, "scheme sources must resolve in the bound catalog")
}

func TestMapLayerOps(t *testing.T) {
	m := NewMap("ops", "")
	for _, name := range []string{"a", "b", "c"} {
		_, err := m.AddLayer(name, "/data/"+name)
		require.NoError(t, err)
	}

	_, err := m.AddLayer("a", "/data/other")
	assert.Error(t, err, "duplicate layer names are refused")
	_, err = m.AddLayer("", "/data/x")
	assert.Error(t, err)

	require.NoError(t, m.MoveLayer("c", 0))
	assert.Equal(t, "c", m.Layers()[0].Name)
	assert.Equal(t, "a", m.Layers()[1].Name)
	assert.Error(t, m.MoveLayer("a", 9))
	assert.Error(t, m.MoveLayer("missing", 0))

	require.NoError(t, m.DeleteLayer("a"))
	assert.Nil(t, m.Layer("a"))
	assert.Error(t, m.DeleteLayer("a"))
	assert.Len(t, m.Layers(), 2)
}

func TestMapStoreHandles(t *testing.T) {
	ms := NewMapStore(testLogger())

	id, err := ms.CreateMap("one", "")
	require.NoError(t, err)
	assert.NotEqual(t, InvalidMapID, id)
	require.NotNil(t, ms.Map(id))
	assert.Equal(t, "one", ms.Map(id).Map.Name)

	id2, err := ms.CreateMap("two", "")
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
	assert.Equal(t, 2, ms.MapCount())

	require.NoError(t, ms.CloseMap(id))
	assert.Nil(t, ms.Map(id))
	assert.Error(t, ms.CloseMap(id))

	// The freed handle is reissued.
	id3, err := ms.CreateMap("three", "")
	require.NoError(t, err)
	assert.Equal(t, id, id3)
}

func TestMapStoreSave(t *testing.T) {
	ms := NewMapStore(testLogger())
	id, err := ms.CreateMap("saved", "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "saved."+MapExt)
	require.NoError(t, ms.SaveMap(id, path))
	assert.FileExists(t, path)
	assert.Error(t, ms.SaveMap(99, path))

	oid, err := ms.OpenMap(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", ms.Map(oid).Map.Name)
}
