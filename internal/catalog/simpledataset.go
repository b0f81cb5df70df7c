package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"geocat/internal/status"
)

// InternalOpener opens the single data object wrapped by a SimpleDataset.
// Dataset packages register one per subtype at init time.
type InternalOpener func(sd *SimpleDataset) (Object, error)

var (
	openersMu sync.RWMutex
	openers   = map[Type]InternalOpener{}
)

// RegisterInternalOpener installs the opener for a dataset subtype. Later
// registrations for the same subtype replace earlier ones.
func RegisterInternalOpener(t Type, fn InternalOpener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[t] = fn
}

func internalOpener(t Type) InternalOpener {
	openersMu.RLock()
	defer openersMu.RUnlock()
	return openers[t]
}

// SimpleDataset is a composite dataset presented as one catalog object: a
// main file plus its companion files. It opens its single internal data
// object lazily through the registered opener.
type SimpleDataset struct {
	BaseContainer

	subType  Type
	siblings []string
	internal Object
	openErr  error
	opened   bool
}

// NewSimpleDataset wraps the main file at path together with its sibling
// file names. The dataset's catalog name keeps the main file's extension.
func NewSimpleDataset(parent Container, subType Type, name, path string, siblings []string) *SimpleDataset {
	return &SimpleDataset{
		BaseContainer: NewBaseContainer(parent, subType, name, path),
		subType:       subType,
		siblings:      siblings,
	}
}

// SiblingFiles lists the companion file names grouped with the main file.
func (s *SimpleDataset) SiblingFiles() []string { return s.siblings }

// InternalObject opens the wrapped data object on first call. Open failure
// is cached; the dataset then presents as empty.
func (s *SimpleDataset) InternalObject() Object {
	if s.opened {
		return s.internal
	}
	s.opened = true
	fn := internalOpener(s.subType)
	if fn == nil {
		s.openErr = status.Errorf(status.ErrUnsupported, "no opener for dataset %q", s.Name())
		return nil
	}
	obj, err := fn(s)
	if err != nil {
		s.openErr = err
		return nil
	}
	s.internal = obj
	return obj
}

// OpenError reports why InternalObject produced nothing, if it failed.
func (s *SimpleDataset) OpenError() error { return s.openErr }

// HasChildren exposes the internal object as the dataset's only child.
func (s *SimpleDataset) HasChildren() bool {
	if s.ChildrenLoaded() {
		return len(s.Children()) > 0
	}
	if obj := s.InternalObject(); obj != nil {
		s.AddObject(obj)
	}
	s.MarkLoaded()
	return len(s.Children()) > 0
}

// GetObject resolves a catalog path relative to this dataset.
func (s *SimpleDataset) GetObject(path string) Object {
	return Resolve(s, path)
}

// Clear drops the cached internal object so the next access reopens it.
func (s *SimpleDataset) Clear() {
	s.BaseContainer.Clear()
	s.internal = nil
	s.openErr = nil
	s.opened = false
}

// Destroy removes the main file and every sibling, then detaches the
// dataset from its parent listing.
func (s *SimpleDataset) Destroy() error {
	s.Clear()
	dir := filepath.Dir(s.Path())
	files := append([]string{filepath.Base(s.Path())}, s.siblings...)
	for _, name := range files {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return status.Errorf(status.ErrDeleteFailed, "remove %q: %v", name, err)
		}
	}
	uri := s.FullName()
	if p := s.Parent(); p != nil {
		p.RemoveObject(s.Name())
	}
	Notify(uri, ChangeDeleteObject)
	return nil
}

// StemOf returns a file name without its extension.
func StemOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
