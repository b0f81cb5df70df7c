package catalog

import (
	"os"
	"path/filepath"

	"geocat/internal/status"
)

// Folder mirrors a filesystem directory. Children are produced by the
// catalog's factories from the directory listing on first access; a
// directory that cannot be read degrades to an empty folder.
type Folder struct {
	BaseContainer
	catalog *Catalog
}

// NewFolder builds a folder over the directory at path.
func NewFolder(cat *Catalog, parent Container, name, path string) *Folder {
	return &Folder{
		BaseContainer: NewBaseContainer(parent, TypeFolder, name, path),
		catalog:       cat,
	}
}

// HasChildren lists the directory and runs the factories on first call.
func (f *Folder) HasChildren() bool {
	if f.ChildrenLoaded() {
		return len(f.Children()) > 0
	}
	entries, err := os.ReadDir(f.Path())
	if err != nil {
		f.catalog.log.Debugw("folder not readable", "path", f.Path(), "error", err)
		return false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if f.catalog.IsFileHidden(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	f.catalog.CreateObjects(f, &names)
	f.MarkLoaded()
	return len(f.Children()) > 0
}

// GetObject resolves a catalog path relative to this folder.
func (f *Folder) GetObject(path string) Object {
	return Resolve(f, path)
}

// Catalog returns the owning catalog.
func (f *Folder) Catalog() *Catalog { return f.catalog }

// Destroy removes the directory tree and detaches the folder from its
// parent listing.
func (f *Folder) Destroy() error {
	if err := os.RemoveAll(f.Path()); err != nil {
		return status.Errorf(status.ErrDeleteFailed, "remove folder %q: %v", f.Path(), err)
	}
	uri := f.FullName()
	if p := f.Parent(); p != nil {
		p.RemoveObject(f.Name())
	}
	Notify(uri, ChangeDeleteObject)
	return nil
}

// CreateFolder makes a subdirectory and attaches it as a child. The listing
// must already be loaded so the new child lands in a consistent cache.
func (f *Folder) CreateFolder(name string) (*Folder, error) {
	if name == "" || containsSeparator(name) {
		return nil, status.Errorf(status.ErrInvalidArgument, "invalid folder name %q", name)
	}
	f.HasChildren()
	if f.Child(name) != nil {
		return nil, status.Errorf(status.ErrCreateFailed, "%q already exists in %q", name, f.FullName())
	}
	path := filepath.Join(f.Path(), name)
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, status.Errorf(status.ErrCreateFailed, "create folder %q: %v", path, err)
	}
	child := NewFolder(f.catalog, f, name, path)
	f.AddObject(child)
	Notify(child.FullName(), ChangeCreateObject)
	return child, nil
}

func containsSeparator(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == Separator[0] || name[i] == os.PathSeparator {
			return true
		}
	}
	return false
}
