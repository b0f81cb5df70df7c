package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"geocat/internal/status"
)

// Factory turns raw directory entry names into catalog objects. Each factory
// removes the names it consumed from the slice so later factories never see
// them.
type Factory interface {
	Name() string
	Enabled() bool
	CreateObjects(parent Container, names *[]string)
}

// FormatExt describes a multi-file dataset format by its extensions. The
// main extension identifies the dataset; required extensions must accompany
// it; optional extensions are gathered as siblings when present.
type FormatExt struct {
	MainExt  string
	Required []string
	Optional []string
}

// FormatResult reports a composite match for one candidate main file.
type FormatResult struct {
	Supported bool
	MainFile  string
	Siblings  []string
}

// MatchFormat checks whether files, all sharing the stem of mainName, form a
// complete instance of format f. mainName carries the main extension; names
// holds every entry name in the directory. A dataset is supported only when
// the main file and all required companions are present.
func MatchFormat(mainName string, names []string, f FormatExt) FormatResult {
	stem := strings.TrimSuffix(mainName, filepath.Ext(mainName))
	res := FormatResult{MainFile: mainName}
	count := 1
	for _, req := range f.Required {
		if name, ok := findExt(stem, req, names); ok {
			res.Siblings = append(res.Siblings, name)
			count++
		}
	}
	for _, opt := range f.Optional {
		if name, ok := findExt(stem, opt, names); ok {
			res.Siblings = append(res.Siblings, name)
		}
	}
	res.Supported = count > len(f.Required)
	return res
}

func findExt(stem, ext string, names []string) (string, bool) {
	want := stem + "." + ext
	for _, n := range names {
		if strings.EqualFold(n, want) {
			return n, true
		}
	}
	return "", false
}

// removeName deletes one name from the slice, preserving order.
func removeName(names *[]string, name string) {
	for i, n := range *names {
		if n == name {
			*names = append((*names)[:i], (*names)[i+1:]...)
			return
		}
	}
}

// RemoveNames deletes each given name from the slice. Factories call it
// after claiming a composite dataset's files.
func RemoveNames(names *[]string, claimed ...string) {
	for _, c := range claimed {
		removeName(names, c)
	}
}

// FileFactory claims every remaining regular file as a plain file object.
// Register it last: it is the fallback for names no other factory wanted,
// including main files of incomplete composite datasets.
type FileFactory struct{}

func NewFileFactory() *FileFactory { return &FileFactory{} }

func (f *FileFactory) Name() string  { return "Files" }
func (f *FileFactory) Enabled() bool { return true }

func (f *FileFactory) CreateObjects(parent Container, names *[]string) {
	for _, name := range *names {
		path := filepath.Join(parent.Path(), name)
		obj := &File{BaseObject: NewBaseObject(parent, TypeFile, name, path)}
		parent.AddObject(obj)
	}
	*names = (*names)[:0]
}

// File is a leaf object over a single regular file.
type File struct {
	BaseObject
}

// Destroy removes the file and detaches it from the parent listing.
func (f *File) Destroy() error {
	if err := os.Remove(f.Path()); err != nil {
		return status.Errorf(status.ErrDeleteFailed, "remove %q: %v", f.Path(), err)
	}
	uri := f.FullName()
	if p := f.Parent(); p != nil {
		p.RemoveObject(f.Name())
	}
	Notify(uri, ChangeDeleteObject)
	return nil
}

// FolderFactory claims directory entries and produces Folder children. It
// runs first so nested directories never reach the dataset factories.
type FolderFactory struct {
	catalog *Catalog
}

func NewFolderFactory(cat *Catalog) *FolderFactory {
	return &FolderFactory{catalog: cat}
}

func (f *FolderFactory) Name() string  { return "Folders" }
func (f *FolderFactory) Enabled() bool { return true }

func (f *FolderFactory) CreateObjects(parent Container, names *[]string) {
	kept := (*names)[:0]
	for _, name := range *names {
		path := filepath.Join(parent.Path(), name)
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			kept = append(kept, name)
			continue
		}
		parent.AddObject(NewFolder(f.catalog, parent, name, path))
	}
	*names = kept
}
