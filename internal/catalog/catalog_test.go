package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geocat/internal/config"
)

func newTestCatalog(t *testing.T, roots ...string) *Catalog {
	t.Helper()
	cat := New(roots, config.Default(), zap.NewNop().Sugar())
	cat.AddFactory(NewFolderFactory(cat))
	cat.AddFactory(NewSimpleDatasetFactory())
	cat.AddFactory(NewFileFactory())
	return cat
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestCatalogResolvesPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data", "nested"), 0o755))
	writeFiles(t, filepath.Join(root, "data"), "notes.txt")

	cat := newTestCatalog(t, root)

	rootName := filepath.Base(root)
	obj := cat.GetObject(Scheme + rootName + "/data/notes.txt")
	require.NotNil(t, obj)
	assert.Equal(t, TypeFile, obj.Type())
	assert.Equal(t, Scheme+rootName+"/data/notes.txt", obj.FullName())
	assert.Same(t, obj, cat.GetObject(obj.FullName()), "name round-trip preserves identity")

	nested := cat.GetObject(Scheme + rootName + "/data/nested")
	require.NotNil(t, nested)
	assert.Equal(t, TypeFolder, nested.Type())

	assert.Nil(t, cat.GetObject(Scheme+rootName+"/data/missing"))
	assert.Nil(t, cat.GetObject("/no/scheme"))
	assert.Same(t, Object(cat), cat.GetObject(Scheme))
}

func TestCatalogObjectByLocalPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "data"), 0o755))
	writeFiles(t, filepath.Join(root, "data"), "a.txt")

	cat := newTestCatalog(t, root)

	obj := cat.ObjectByLocalPath(filepath.Join(root, "data", "a.txt"))
	require.NotNil(t, obj)
	assert.Equal(t, "a.txt", obj.Name())

	assert.Nil(t, cat.ObjectByLocalPath(filepath.Join(t.TempDir(), "elsewhere.txt")))
}

func TestShapefileGrouping(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"roads.shp", "roads.shx", "roads.dbf", "roads.prj", "roads.cpg",
		"lone.shp", "lone.shx",
		"readme.txt")

	cat := newTestCatalog(t, root)
	require.True(t, cat.HasChildren())
	folder := cat.Children()[0].(*Folder)
	require.True(t, folder.HasChildren())

	roads := folder.Child("roads.shp")
	require.NotNil(t, roads)
	assert.Equal(t, TypeShapefile, roads.Type())
	sd := roads.(*SimpleDataset)
	assert.ElementsMatch(t, []string{"roads.shx", "roads.dbf", "roads.prj", "roads.cpg"}, sd.SiblingFiles())

	// The companions must not surface as separate objects.
	assert.Nil(t, folder.Child("roads.dbf"))
	assert.Nil(t, folder.Child("roads.prj"))

	// An incomplete set falls through to plain files.
	lone := folder.Child("lone.shp")
	require.NotNil(t, lone)
	assert.Equal(t, TypeFile, lone.Type())

	txt := folder.Child("readme.txt")
	require.NotNil(t, txt)
	assert.Equal(t, TypeFile, txt.Type())
}

func TestMatchFormat(t *testing.T) {
	format := FormatExt{MainExt: "shp", Required: []string{"shx", "dbf"}, Optional: []string{"prj"}}

	res := MatchFormat("a.shp", []string{"a.shp", "a.shx", "a.dbf", "a.prj", "b.shp"}, format)
	assert.True(t, res.Supported)
	assert.ElementsMatch(t, []string{"a.shx", "a.dbf", "a.prj"}, res.Siblings)

	res = MatchFormat("a.shp", []string{"a.shp", "a.prj"}, format)
	assert.False(t, res.Supported)

	// Case differences in companions still match.
	res = MatchFormat("a.shp", []string{"a.shp", "A.SHX", "a.DBF"}, format)
	assert.True(t, res.Supported)
}

func TestFolderLazyLoadAndClear(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.txt")

	cat := newTestCatalog(t, root)
	require.True(t, cat.HasChildren())
	folder := cat.Children()[0].(*Folder)

	require.True(t, folder.HasChildren())
	assert.Len(t, folder.Children(), 1)

	// New entries are invisible until the cache is dropped.
	writeFiles(t, root, "b.txt")
	require.True(t, folder.HasChildren())
	assert.Len(t, folder.Children(), 1)

	cat.FreeResources()
	require.True(t, folder.HasChildren())
	assert.Len(t, folder.Children(), 2)
}

func TestUnreadableFolderDegrades(t *testing.T) {
	root := t.TempDir()
	cat := newTestCatalog(t, filepath.Join(root, "absent"))
	require.True(t, cat.HasChildren())
	folder := cat.Children()[0].(*Folder)
	assert.False(t, folder.HasChildren())
	assert.Empty(t, folder.Children())
}

func TestHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, ".hidden.txt", "shown.txt")

	cat := newTestCatalog(t, root)
	require.True(t, cat.HasChildren())
	folder := cat.Children()[0].(*Folder)
	require.True(t, folder.HasChildren())
	assert.Nil(t, folder.Child(".hidden.txt"))
	assert.NotNil(t, folder.Child("shown.txt"))

	cat.SetShowHidden(true)
	require.True(t, folder.HasChildren())
	assert.NotNil(t, folder.Child(".hidden.txt"))
}

func TestCreateAndDestroyFolder(t *testing.T) {
	root := t.TempDir()
	cat := newTestCatalog(t, root)
	require.True(t, cat.HasChildren())
	folder := cat.Children()[0].(*Folder)

	var gotURI string
	var gotCode ChangeCode
	SetNotifyFunc(func(uri string, code ChangeCode) {
		gotURI = uri
		gotCode = code
	})
	t.Cleanup(func() { SetNotifyFunc(nil) })

	child, err := folder.CreateFolder("work")
	require.NoError(t, err)
	assert.Equal(t, ChangeCreateObject, gotCode)
	assert.Equal(t, child.FullName(), gotURI)
	assert.DirExists(t, filepath.Join(root, "work"))

	_, err = folder.CreateFolder("work")
	assert.Error(t, err)
	_, err = folder.CreateFolder("bad/name")
	assert.Error(t, err)

	require.NoError(t, child.Destroy())
	assert.Equal(t, ChangeDeleteObject, gotCode)
	assert.NoDirExists(t, filepath.Join(root, "work"))
	assert.Nil(t, folder.Child("work"))
}

func TestSimpleDatasetDestroyRemovesAllFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "roads.shp", "roads.shx", "roads.dbf")

	cat := newTestCatalog(t, root)
	require.True(t, cat.HasChildren())
	folder := cat.Children()[0].(*Folder)
	require.True(t, folder.HasChildren())

	sd := folder.Child("roads.shp").(*SimpleDataset)
	require.NoError(t, sd.Destroy())
	for _, name := range []string{"roads.shp", "roads.shx", "roads.dbf"} {
		assert.NoFileExists(t, filepath.Join(root, name))
	}
	assert.Nil(t, folder.Child("roads.shp"))
}

func TestChildLookupCaseSensitivity(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "readme.txt")

	cat := newTestCatalog(t, root)
	rootName := filepath.Base(root)

	require.NotNil(t, cat.GetObject(Scheme+rootName+"/readme.txt"))
	got := cat.GetObject(Scheme + rootName + "/README.txt")
	if foldNames {
		assert.NotNil(t, got, "fold lookup stands in for the filesystem's folding")
	} else {
		assert.Nil(t, got, "a different casing is a different on-disk name")
	}
}

func TestSetInstanceFirstWins(t *testing.T) {
	a := newTestCatalog(t, t.TempDir())
	b := newTestCatalog(t, t.TempDir())
	SetInstance(a)
	SetInstance(b)
	assert.Same(t, a, Instance())
}
