// Package catalog implements the hierarchical namespace over all known data
// sources: objects, containers with lazy child enumeration, the catalog root
// and the factories that group raw file names into composite objects.
package catalog

import (
	"runtime"
	"strings"
	"sync"

	"geocat/internal/status"
)

// foldNames enables the case-insensitive child lookup fallback on platforms
// whose filesystems compare names that way.
var foldNames = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// Type tags every catalog object. The variant set is closed.
type Type int

const (
	TypeUnknown Type = iota
	TypeRoot
	TypeFolder
	TypeStore
	TypeTable
	TypeFeatureClass
	TypeShapefile
	TypeFile
	TypeRaster
)

func (t Type) String() string {
	switch t {
	case TypeRoot:
		return "root"
	case TypeFolder:
		return "folder"
	case TypeStore:
		return "store"
	case TypeTable:
		return "table"
	case TypeFeatureClass:
		return "feature class"
	case TypeShapefile:
		return "shapefile"
	case TypeFile:
		return "file"
	case TypeRaster:
		return "raster"
	}
	return "unknown"
}

// Separator splits catalog path segments. Segment names must not contain it.
const Separator = "/"

// Scheme is the catalog path prefix.
const Scheme = "geocat://"

// ChangeCode describes what changed for notification observers.
type ChangeCode int

const (
	ChangeCreateObject ChangeCode = iota
	ChangeDeleteObject
	ChangeChangeObject
	ChangeCreateFeature
	ChangeChangeFeature
	ChangeDeleteFeature
)

// NotifyFunc observes catalog mutations. Delivered synchronously at the point
// of mutation.
type NotifyFunc func(uri string, code ChangeCode)

var (
	notifyMu sync.Mutex
	notifyFn NotifyFunc
)

// SetNotifyFunc installs the process-wide change observer. Pass nil to remove.
func SetNotifyFunc(fn NotifyFunc) {
	notifyMu.Lock()
	defer notifyMu.Unlock()
	notifyFn = fn
}

// Notify delivers a change notification to the installed observer, if any.
func Notify(uri string, code ChangeCode) {
	notifyMu.Lock()
	fn := notifyFn
	notifyMu.Unlock()
	if fn != nil {
		fn(uri, code)
	}
}

// Object is a node in the catalog tree.
type Object interface {
	Type() Type
	Name() string
	Path() string // physical location backing the object
	Parent() Container
	FullName() string
	Destroy() error
}

// Container is an object that can have children. Children are enumerated
// lazily on first access and cached until Clear.
type Container interface {
	Object
	HasChildren() bool
	Children() []Object
	Child(name string) Object
	AddObject(Object)
	RemoveObject(name string)
	GetObject(path string) Object
	Clear()
}

// BaseObject carries the identity shared by all catalog objects. The parent
// link is non-owning and used only for name derivation and lookup.
type BaseObject struct {
	objType Type
	name    string
	path    string
	parent  Container
}

// NewBaseObject builds the common object state for embedding.
func NewBaseObject(parent Container, typ Type, name, path string) BaseObject {
	return BaseObject{objType: typ, name: name, path: path, parent: parent}
}

func (o *BaseObject) Type() Type        { return o.objType }
func (o *BaseObject) Name() string      { return o.name }
func (o *BaseObject) Path() string      { return o.path }
func (o *BaseObject) Parent() Container { return o.parent }

// FullName derives the stable catalog URI by walking parents.
func (o *BaseObject) FullName() string {
	if o.parent == nil {
		return o.name
	}
	return o.parent.FullName() + Separator + o.name
}

// Destroy is refused by default; concrete kinds that can be removed override.
func (o *BaseObject) Destroy() error {
	return status.Errorf(status.ErrUnsupported, "%q cannot be removed", o.name)
}

// SetParent rebinds the non-owning parent link.
func (o *BaseObject) SetParent(parent Container) { o.parent = parent }

// BaseContainer implements child bookkeeping for embedding by concrete
// containers. The childrenLoaded latch is one-way until Clear.
type BaseContainer struct {
	BaseObject
	children       []Object
	childrenLoaded bool
}

// NewBaseContainer builds the common container state for embedding.
func NewBaseContainer(parent Container, typ Type, name, path string) BaseContainer {
	return BaseContainer{BaseObject: NewBaseObject(parent, typ, name, path)}
}

// HasChildren reports cached children. Lazily-loading containers override.
func (c *BaseContainer) HasChildren() bool { return len(c.children) > 0 }

func (c *BaseContainer) Children() []Object { return c.children }

// Child finds a direct child by name. On case-insensitive filesystems a
// fold comparison is tried when the exact match fails; elsewhere names are
// distinct on-disk entries and must match exactly.
func (c *BaseContainer) Child(name string) Object {
	for _, child := range c.children {
		if child.Name() == name {
			return child
		}
	}
	if foldNames {
		for _, child := range c.children {
			if strings.EqualFold(child.Name(), name) {
				return child
			}
		}
	}
	return nil
}

func (c *BaseContainer) AddObject(obj Object) {
	c.children = append(c.children, obj)
}

func (c *BaseContainer) RemoveObject(name string) {
	for i, child := range c.children {
		if child.Name() == name {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}

// Clear drops cached children and resets the lazy-load latch.
func (c *BaseContainer) Clear() {
	c.children = nil
	c.childrenLoaded = false
}

// ChildrenLoaded reports whether enumeration already ran.
func (c *BaseContainer) ChildrenLoaded() bool { return c.childrenLoaded }

// MarkLoaded latches the enumeration state.
func (c *BaseContainer) MarkLoaded() { c.childrenLoaded = true }

// Resolve walks path segment by segment against c's children. It returns nil
// when any segment fails to resolve or an inner object is not a container.
func Resolve(c Container, path string) Object {
	if !c.HasChildren() {
		return nil
	}
	seg, rest := splitSegment(path)
	if seg == "" {
		return nil
	}
	child := c.Child(seg)
	if child == nil {
		return nil
	}
	if rest == "" {
		return child
	}
	inner, ok := child.(Container)
	if !ok {
		return nil
	}
	return Resolve(inner, rest)
}

func splitSegment(path string) (string, string) {
	if i := strings.Index(path, Separator); i >= 0 {
		return path[:i], path[i+len(Separator):]
	}
	return path, ""
}
