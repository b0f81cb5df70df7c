package mapview

import (
	"context"
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"geocat/internal/catalog"
	"geocat/internal/geo"
	"geocat/internal/progress"
	"geocat/internal/status"
	"geocat/internal/store"
)

// DrawState tells the draw loop how much work to redo.
type DrawState int

const (
	// DrawNormal draws layers that changed since the last pass.
	DrawNormal DrawState = iota
	// DrawRedraw repaints everything from scratch.
	DrawRedraw
	// DrawPreserved repaints only overlays over the kept layer image.
	DrawPreserved
)

// Renderer receives the draw output. Implementations rasterize or record
// the geometry stream.
type Renderer interface {
	Clear(bg geo.RGBA)
	DrawGeometry(g geom.T, t *Transform) error
}

// Overlay draws on top of the layer stack.
type Overlay interface {
	Visible() bool
	Draw(r Renderer, t *Transform) error
}

// View is a map document bound to a display transform and a renderer.
type View struct {
	*Map
	*Transform

	log      *zap.SugaredLogger
	overlays []Overlay
	edit     *EditOverlay
}

// NewView binds a map document to a fresh transform.
func NewView(m *Map, log *zap.SugaredLogger) *View {
	v := &View{Map: m, Transform: NewTransform(), log: log}
	v.Transform.SetExtentLimits(m.Bounds)
	v.edit = NewEditOverlay(v)
	v.overlays = []Overlay{v.edit}
	return v
}

// EditOverlay returns the interactive editing overlay.
func (v *View) EditOverlay() *EditOverlay { return v.edit }

// Overlays lists the overlay stack, bottom first.
func (v *View) Overlays() []Overlay { return v.overlays }

// Draw paints the background, the visible layers intersecting the current
// extent, then the overlays. A canceled context or a false progress return
// stops between layers.
func (v *View) Draw(ctx context.Context, state DrawState, r Renderer, prog progress.Progress) error {
	if state != DrawPreserved {
		r.Clear(v.Background)
		total := len(v.layers)
		for i, layer := range v.layers {
			if err := ctx.Err(); err != nil {
				return status.Errorf(status.ErrCanceled, "draw canceled")
			}
			if !layer.Visible {
				continue
			}
			if err := v.drawLayer(layer, r); err != nil {
				v.log.Warnw("layer draw failed", "layer", layer.Name, "error", err)
			}
			if !prog.OnProgress(progress.Continue, float64(i+1)/float64(total),
				fmt.Sprintf("drew layer %s", layer.Name)) {
				return status.Errorf(status.ErrCanceled, "draw canceled")
			}
		}
	}
	for _, o := range v.overlays {
		if !o.Visible() {
			continue
		}
		if err := o.Draw(r, v.Transform); err != nil {
			return err
		}
	}
	prog.OnProgress(progress.Finished, 1, "draw complete")
	return nil
}

// resolveSource maps a layer source onto its backing data object through
// the map's catalog.
func (m *Map) resolveSource(source string) catalog.Object {
	cat := m.catalogRef()
	if cat == nil {
		return nil
	}
	var obj catalog.Object
	if strings.HasPrefix(source, catalog.Scheme) {
		obj = cat.GetObject(source)
	} else {
		obj = cat.ObjectByLocalPath(source)
	}
	if sd, ok := obj.(*catalog.SimpleDataset); ok {
		obj = sd.InternalObject()
	}
	return obj
}

func (v *View) drawLayer(layer *Layer, r Renderer) error {
	obj := v.resolveSource(layer.Source)
	if obj == nil {
		return status.Errorf(status.ErrNotFound, "source %q not found", layer.Source)
	}
	extent := v.Extent()
	switch src := obj.(type) {
	case *store.FeatureClass:
		fids, err := src.FeaturesInEnvelope(extent)
		if err != nil {
			return err
		}
		zoom := v.Zoom()
		for _, fid := range fids {
			if v.edit.Hides(src, fid) {
				continue
			}
			g, err := src.OverviewGeometry(zoom, fid)
			if err != nil {
				return err
			}
			if g == nil {
				continue
			}
			if err := r.DrawGeometry(g, v.Transform); err != nil {
				return err
			}
		}
		return nil
	case *store.ShapeTable:
		src.Reset()
		for {
			f, err := src.Next()
			if err != nil {
				break
			}
			if f.Geometry == nil || !geo.Intersects(f.Geometry, extent) {
				continue
			}
			if err := r.DrawGeometry(f.Geometry, v.Transform); err != nil {
				return err
			}
		}
		return nil
	default:
		return status.Errorf(status.ErrUnsupported, "source %q is not drawable", layer.Source)
	}
}
