package catalog

import (
	"path/filepath"
	"strings"
)

// shpFormat describes the ESRI shapefile file set.
var shpFormat = FormatExt{
	MainExt:  "shp",
	Required: []string{"shx", "dbf"},
	Optional: []string{"sbn", "sbx", "cpg", "prj", "qix", "osf"},
}

// SimpleDatasetFactory groups multi-file vector formats into SimpleDataset
// objects. Incomplete file sets are left in the name list for later
// factories.
type SimpleDatasetFactory struct{}

func NewSimpleDatasetFactory() *SimpleDatasetFactory {
	return &SimpleDatasetFactory{}
}

func (f *SimpleDatasetFactory) Name() string  { return "Vector datasets" }
func (f *SimpleDatasetFactory) Enabled() bool { return true }

func (f *SimpleDatasetFactory) CreateObjects(parent Container, names *[]string) {
	for _, name := range append([]string(nil), *names...) {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		if ext != shpFormat.MainExt {
			continue
		}
		res := MatchFormat(name, *names, shpFormat)
		if !res.Supported {
			continue
		}
		path := filepath.Join(parent.Path(), name)
		parent.AddObject(NewSimpleDataset(parent, TypeShapefile, name, path, res.Siblings))
		RemoveNames(names, res.MainFile)
		RemoveNames(names, res.Siblings...)
	}
}
