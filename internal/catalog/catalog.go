package catalog

import (
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"geocat/internal/config"
)

// Catalog is the namespace root. Its direct children are the configured
// root folders; everything below is enumerated lazily.
type Catalog struct {
	BaseContainer

	roots      []string
	factories  []Factory
	showHidden bool
	log        *zap.SugaredLogger
}

var (
	instanceMu sync.Mutex
	instance   *Catalog
)

// SetInstance installs the process-wide catalog. The first call wins; later
// calls are ignored so long-lived references stay valid.
func SetInstance(c *Catalog) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		return
	}
	instance = c
}

// Instance returns the installed catalog, or nil if none was set.
func Instance() *Catalog {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// New builds a catalog rooted at the given local directories. Factories must
// be registered with AddFactory before children are enumerated; registration
// order decides which factory claims a file name first.
func New(roots []string, cfg *config.Config, log *zap.SugaredLogger) *Catalog {
	return &Catalog{
		BaseContainer: NewBaseContainer(nil, TypeRoot, "Catalog", ""),
		roots:         roots,
		showHidden:    cfg.ShowHidden,
		log:           log,
	}
}

// FullName anchors all descendant URIs. A child's FullName becomes
// Scheme + its name because the separator is appended by BaseObject.
func (c *Catalog) FullName() string {
	return strings.TrimSuffix(Scheme, Separator)
}

// Log exposes the catalog logger to helpers built on it.
func (c *Catalog) Log() *zap.SugaredLogger { return c.log }

// AddFactory appends an object factory. Order matters: earlier factories
// claim file names before later ones see them.
func (c *Catalog) AddFactory(f Factory) {
	c.factories = append(c.factories, f)
}

// HasChildren materializes the root folders on first call.
func (c *Catalog) HasChildren() bool {
	if c.ChildrenLoaded() {
		return len(c.Children()) > 0
	}
	for _, root := range c.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			c.log.Warnw("skipping catalog root", "path", root, "error", err)
			continue
		}
		c.AddObject(NewFolder(c, c, filepath.Base(abs), abs))
	}
	c.MarkLoaded()
	return len(c.Children()) > 0
}

// GetObject resolves a catalog path. The path must carry the Scheme prefix;
// the bare scheme resolves to the catalog itself. Returns nil on any failure.
func (c *Catalog) GetObject(path string) Object {
	if path == c.FullName() || path == Scheme {
		return c
	}
	if !strings.HasPrefix(path, Scheme) {
		return nil
	}
	return Resolve(c, strings.TrimPrefix(path, Scheme))
}

// ObjectByLocalPath maps a filesystem path to the catalog object backed by
// it, or nil when the path lies outside every root.
func (c *Catalog) ObjectByLocalPath(p string) Object {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil
	}
	if !c.HasChildren() {
		return nil
	}
	for _, child := range c.Children() {
		folder, ok := child.(*Folder)
		if !ok {
			continue
		}
		if abs == folder.Path() {
			return folder
		}
		prefix := folder.Path() + string(filepath.Separator)
		if !strings.HasPrefix(abs, prefix) {
			continue
		}
		rel := strings.TrimPrefix(abs, prefix)
		rel = strings.ReplaceAll(rel, string(filepath.Separator), Separator)
		if obj := Resolve(folder, rel); obj != nil {
			return obj
		}
	}
	return nil
}

// CreateObjects runs the registered factories over a set of raw file names,
// letting each factory consume the names it recognizes and attach objects to
// parent. Names left over are ignored.
func (c *Catalog) CreateObjects(parent Container, names *[]string) {
	for _, f := range c.factories {
		if !f.Enabled() {
			continue
		}
		f.CreateObjects(parent, names)
		if len(*names) == 0 {
			return
		}
	}
}

// IsFileHidden reports whether a directory entry should be skipped during
// enumeration under the current visibility settings.
func (c *Catalog) IsFileHidden(name string) bool {
	return !c.showHidden && strings.HasPrefix(name, ".")
}

// SetShowHidden toggles hidden-entry visibility and invalidates cached
// listings so the next enumeration reflects the change.
func (c *Catalog) SetShowHidden(show bool) {
	if c.showHidden == show {
		return
	}
	c.showHidden = show
	c.FreeResources()
}

// FreeResources drops every cached child listing below the root folders.
// Root folders themselves stay attached so held references remain valid.
func (c *Catalog) FreeResources() {
	for _, child := range c.Children() {
		if inner, ok := child.(Container); ok {
			inner.Clear()
		}
	}
}
