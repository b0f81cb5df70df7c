package cli

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"geocat/internal/catalog"
	"geocat/internal/geo"
	"geocat/internal/store"
)

var infoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show details of a catalog object",
	Long: `Show what the catalog knows about an object: its type, URI and
physical location, plus fields, feature count and extent for vector
datasets.`,
	Args: cobra.ExactArgs(1),
	Run:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) {
	c := initContext(filepath.Dir(args[0]))
	defer c.Close()

	obj := c.lookup(args[0])
	if obj == nil {
		exitError("no such object: %s", args[0])
	}

	cyan := color.New(color.FgCyan)

	cyan.Print("uri:      ")
	fmt.Println(obj.FullName())
	cyan.Print("type:     ")
	fmt.Println(obj.Type())
	cyan.Print("path:     ")
	fmt.Println(obj.Path())

	switch o := obj.(type) {
	case *catalog.SimpleDataset:
		printDatasetInfo(o, cyan)
	case *store.FeatureClass:
		printFeatureClassInfo(o, cyan)
	case *store.Table:
		printFields(o.Fields(), cyan)
		if n, err := o.Count(); err == nil {
			cyan.Print("rows:     ")
			fmt.Println(n)
		}
	case *store.DataStore:
		printStoreInfo(o, cyan)
	case *store.StoreObject:
		s, err := o.Store()
		if err != nil {
			exitError("%v", err)
		}
		printStoreInfo(s, cyan)
	}
}

func printDatasetInfo(sd *catalog.SimpleDataset, cyan *color.Color) {
	cyan.Print("siblings: ")
	fmt.Println(len(sd.SiblingFiles()))

	internal := sd.InternalObject()
	if internal == nil {
		if err := sd.OpenError(); err != nil {
			fmt.Printf("unreadable: %v\n", err)
		}
		return
	}
	st, ok := internal.(*store.ShapeTable)
	if !ok {
		return
	}
	cyan.Print("geometry: ")
	fmt.Println(st.GeometryType())
	cyan.Print("features: ")
	fmt.Println(st.Count())
	printExtent(st.Extent(), cyan)
	printFields(st.Fields(), cyan)
}

func printFeatureClassInfo(fc *store.FeatureClass, cyan *color.Color) {
	cyan.Print("geometry: ")
	fmt.Println(fc.GeometryType())
	if n, err := fc.Count(); err == nil {
		cyan.Print("features: ")
		fmt.Println(n)
	}
	minZoom, maxZoom := fc.ZoomRange()
	cyan.Print("zooms:    ")
	fmt.Printf("%d..%d\n", minZoom, maxZoom)
	if env, err := fc.Extent(); err == nil {
		printExtent(env, cyan)
	}
	printFields(fc.Fields(), cyan)
}

func printStoreInfo(s *store.DataStore, cyan *color.Color) {
	if v, err := s.Version(); err == nil {
		cyan.Print("version:  ")
		fmt.Println(v)
	}
	if s.HasChildren() {
		cyan.Println("tables:")
		for _, child := range s.Children() {
			fmt.Printf("  %s (%s)\n", child.Name(), child.Type())
		}
	}
}

func printExtent(env geo.Envelope, cyan *color.Color) {
	if !env.IsInit() {
		return
	}
	cyan.Print("extent:   ")
	fmt.Printf("%g %g %g %g\n", env.MinX, env.MinY, env.MaxX, env.MaxY)
}

func printFields(fields []store.Field, cyan *color.Color) {
	if len(fields) == 0 {
		return
	}
	cyan.Println("fields:")
	for _, f := range fields {
		fmt.Printf("  %s %s\n", f.Name, f.Type)
	}
}
