package store

import (
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"geocat/internal/catalog"
	"geocat/internal/status"
)

// DataStoreFactory claims .gcdb files and their sibling data folders,
// producing store objects that open the database lazily.
type DataStoreFactory struct {
	log *zap.SugaredLogger
}

func NewDataStoreFactory(log *zap.SugaredLogger) *DataStoreFactory {
	return &DataStoreFactory{log: log}
}

func (f *DataStoreFactory) Name() string  { return "Data stores" }
func (f *DataStoreFactory) Enabled() bool { return true }

func (f *DataStoreFactory) CreateObjects(parent catalog.Container, names *[]string) {
	for _, name := range append([]string(nil), *names...) {
		if !strings.EqualFold(filepath.Ext(name), "."+Ext) {
			continue
		}
		path := filepath.Join(parent.Path(), name)
		parent.AddObject(NewStoreObject(parent, name, path, f.log))
		catalog.RemoveNames(names, name, name+DataDirSuffix)
	}
}

// StoreObject is the catalog face of a data store. The sqlite file is
// opened on first child access; an open failure makes the store present as
// empty until the listing is cleared.
type StoreObject struct {
	catalog.BaseContainer

	log *zap.SugaredLogger

	mu  sync.Mutex
	ds  *DataStore
	err error
}

func NewStoreObject(parent catalog.Container, name, path string, log *zap.SugaredLogger) *StoreObject {
	return &StoreObject{
		BaseContainer: catalog.NewBaseContainer(parent, catalog.TypeStore, name, path),
		log:           log,
	}
}

// Store opens the underlying data store on first call.
func (o *StoreObject) Store() (*DataStore, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ds != nil || o.err != nil {
		return o.ds, o.err
	}
	ds, err := Open(o.Parent(), o.Name(), o.Path(), o.log)
	if err != nil {
		o.log.Warnw("store open failed", "path", o.Path(), "error", err)
		o.err = err
		return nil, err
	}
	o.ds = ds
	return ds, nil
}

func (o *StoreObject) HasChildren() bool {
	ds, err := o.Store()
	if err != nil {
		return false
	}
	return ds.HasChildren()
}

func (o *StoreObject) Children() []catalog.Object {
	ds, err := o.Store()
	if err != nil {
		return nil
	}
	ds.HasChildren()
	return ds.Children()
}

func (o *StoreObject) Child(name string) catalog.Object {
	ds, err := o.Store()
	if err != nil {
		return nil
	}
	ds.HasChildren()
	return ds.Child(name)
}

func (o *StoreObject) GetObject(path string) catalog.Object {
	ds, err := o.Store()
	if err != nil {
		return nil
	}
	return ds.GetObject(path)
}

// Clear drops the open database so the next access reopens it.
func (o *StoreObject) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ds != nil {
		o.ds.Close()
	}
	o.ds = nil
	o.err = nil
	o.BaseContainer.Clear()
}

// Destroy removes the store file and data folder.
func (o *StoreObject) Destroy() error {
	o.mu.Lock()
	ds := o.ds
	o.ds = nil
	o.err = status.Errorf(status.ErrNotFound, "store %q destroyed", o.Name())
	o.mu.Unlock()
	if ds == nil {
		var err error
		ds, err = Open(o.Parent(), o.Name(), o.Path(), o.log)
		if err != nil {
			return err
		}
	}
	// The store and this wrapper share name and parent, so the wrapper
	// leaves the listing with the same RemoveObject call.
	return ds.Destroy()
}
