package mapview

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"geocat/internal/catalog"
	"geocat/internal/geo"
	"geocat/internal/status"
)

// MapExt is the map document file extension.
const MapExt = "gcmap"

// DefaultBackground is the fill color of a new map.
var DefaultBackground = geo.RGBA{R: 210, G: 245, B: 255, A: 255}

// DefaultEPSG is the spatial reference of a new map.
const DefaultEPSG = 3857

// LayerType tags what a layer draws.
type LayerType int

const (
	LayerVector LayerType = iota
	LayerRaster
)

// Layer binds a named slot in the draw order to a data source, addressed by
// catalog path or by file path relative to the map document.
type Layer struct {
	Name    string
	Type    LayerType
	Source  string
	Visible bool
}

// Map is a drawable document: an ordered list of layers over a background.
type Map struct {
	Name        string
	Description string
	EPSG        int
	Bounds      geo.Envelope
	Background  geo.RGBA

	layers        []*Layer
	path          string
	relativePaths bool
	catalog       *catalog.Catalog
}

// NewMap builds an empty map document with default bounds and background.
func NewMap(name, description string) *Map {
	return &Map{
		Name:        name,
		Description: description,
		EPSG:        DefaultEPSG,
		Bounds:      WorldExtent,
		Background:  DefaultBackground,
	}
}

// Path is the file the map was opened from or last saved to.
func (m *Map) Path() string { return m.path }

// SetRelativePaths makes Save store file-backed layer sources relative to
// the map document location.
func (m *Map) SetRelativePaths(on bool) { m.relativePaths = on }

// SetCatalog binds the map to a catalog for layer source validation and
// drawing. Unbound maps fall back to the process-wide instance.
func (m *Map) SetCatalog(cat *catalog.Catalog) { m.catalog = cat }

func (m *Map) catalogRef() *catalog.Catalog {
	if m.catalog != nil {
		return m.catalog
	}
	return catalog.Instance()
}

// Layers returns the draw order, bottom first.
func (m *Map) Layers() []*Layer { return m.layers }

// Layer finds a layer by name, nil when absent.
func (m *Map) Layer(name string) *Layer {
	for _, l := range m.layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// AddLayer appends a layer on top. When a catalog is installed, a source
// with the catalog scheme must resolve.
func (m *Map) AddLayer(name, source string) (*Layer, error) {
	if name == "" || source == "" {
		return nil, status.Errorf(status.ErrInvalidArgument, "layer needs a name and a source")
	}
	if m.Layer(name) != nil {
		return nil, status.Errorf(status.ErrInvalidArgument, "layer %q already exists", name)
	}
	if cat := m.catalogRef(); cat != nil && strings.HasPrefix(source, catalog.Scheme) {
		if cat.GetObject(source) == nil {
			return nil, status.Errorf(status.ErrNotFound, "layer source %q not found", source)
		}
	}
	l := &Layer{Name: name, Type: LayerVector, Source: source, Visible: true}
	m.layers = append(m.layers, l)
	return l, nil
}

// DeleteLayer removes a layer by name.
func (m *Map) DeleteLayer(name string) error {
	for i, l := range m.layers {
		if l.Name == name {
			m.layers = append(m.layers[:i], m.layers[i+1:]...)
			return nil
		}
	}
	return status.Errorf(status.ErrNotFound, "layer %q not found", name)
}

// MoveLayer changes a layer's position in the draw order.
func (m *Map) MoveLayer(name string, to int) error {
	if to < 0 || to >= len(m.layers) {
		return status.Errorf(status.ErrInvalidArgument, "position %d out of range", to)
	}
	from := -1
	for i, l := range m.layers {
		if l.Name == name {
			from = i
			break
		}
	}
	if from < 0 {
		return status.Errorf(status.ErrNotFound, "layer %q not found", name)
	}
	l := m.layers[from]
	m.layers = append(m.layers[:from], m.layers[from+1:]...)
	m.layers = append(m.layers[:to], append([]*Layer{l}, m.layers[to:]...)...)
	return nil
}

type layerDoc struct {
	Name    string `json:"name"`
	Type    int    `json:"type"`
	Source  string `json:"source"`
	Visible bool   `json:"visible"`
}

type mapDoc struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	EPSG          int        `json:"epsg"`
	MinX          float64    `json:"min_x"`
	MinY          float64    `json:"min_y"`
	MaxX          float64    `json:"max_x"`
	MaxY          float64    `json:"max_y"`
	BgColor       int        `json:"bg_color"`
	RelativePaths bool       `json:"relative_paths"`
	Layers        []layerDoc `json:"layers"`
}

// Save writes the map document to path as JSON.
func (m *Map) Save(path string) error {
	doc := mapDoc{
		Name:          m.Name,
		Description:   m.Description,
		EPSG:          m.EPSG,
		MinX:          m.Bounds.MinX,
		MinY:          m.Bounds.MinY,
		MaxX:          m.Bounds.MaxX,
		MaxY:          m.Bounds.MaxY,
		BgColor:       m.Background.Hex(),
		RelativePaths: m.relativePaths,
	}
	dir := filepath.Dir(path)
	for _, l := range m.layers {
		source := l.Source
		if m.relativePaths && !strings.HasPrefix(source, catalog.Scheme) && filepath.IsAbs(source) {
			if rel, err := filepath.Rel(dir, source); err == nil {
				source = rel
			}
		}
		doc.Layers = append(doc.Layers, layerDoc{Name: l.Name, Type: int(l.Type), Source: source, Visible: l.Visible})
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return status.Errorf(status.ErrSaveFailed, "encode map %q: %v", m.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return status.Errorf(status.ErrSaveFailed, "write map %q: %v", path, err)
	}
	m.path = path
	return nil
}

// OpenMap reads a map document from path. Relative layer sources are
// resolved against the document location.
func OpenMap(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "read map %q: %v", path, err)
	}
	var doc mapDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, status.Errorf(status.ErrOpenFailed, "parse map %q: %v", path, err)
	}
	m := &Map{
		Name:          doc.Name,
		Description:   doc.Description,
		EPSG:          doc.EPSG,
		Bounds:        geo.Envelope{MinX: doc.MinX, MinY: doc.MinY, MaxX: doc.MaxX, MaxY: doc.MaxY},
		Background:    geo.RGBAFromHex(doc.BgColor),
		relativePaths: doc.RelativePaths,
		path:          path,
	}
	if !m.Bounds.IsInit() {
		m.Bounds = WorldExtent
	}
	dir := filepath.Dir(path)
	for _, ld := range doc.Layers {
		source := ld.Source
		if !strings.HasPrefix(source, catalog.Scheme) && !filepath.IsAbs(source) {
			source = filepath.Join(dir, source)
		}
		m.layers = append(m.layers, &Layer{Name: ld.Name, Type: LayerType(ld.Type), Source: source, Visible: ld.Visible})
	}
	return m, nil
}
