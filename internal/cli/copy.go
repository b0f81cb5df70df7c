package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"geocat/internal/catalog"
	"geocat/internal/progress"
	"geocat/internal/store"
)

var copyCmd = &cobra.Command{
	Use:   "copy <shapefile> <store> [name]",
	Short: "Import a shapefile into a store",
	Long: `Copy the features of a shapefile into a new feature class inside a
geodata store. Attribute fields are carried over one to one; field
names that clash with reserved prefixes are normalized. The feature
class is named after the shapefile unless a name is given.`,
	Args: cobra.RangeArgs(2, 3),
	Run:  runCopy,
}

var (
	copyMinZoom   int
	copyMaxZoom   int
	copyOverviews bool
)

func init() {
	copyCmd.Flags().IntVar(&copyMinZoom, "min-zoom", 0, "Lowest zoom level the feature class is drawn at")
	copyCmd.Flags().IntVar(&copyMaxZoom, "max-zoom", 18, "Highest zoom level the feature class is drawn at")
	copyCmd.Flags().BoolVar(&copyOverviews, "overviews", false, "Build overview geometries after the copy")
}

func runCopy(cmd *cobra.Command, args []string) {
	c := initContext(filepath.Dir(args[0]), filepath.Dir(args[1]))
	defer c.Close()

	src := c.lookup(args[0])
	if src == nil {
		exitError("no such object: %s", args[0])
	}
	sd, ok := src.(*catalog.SimpleDataset)
	if !ok {
		exitError("%s is not a shapefile dataset", src.FullName())
	}
	st, err := store.OpenShapeTable(sd)
	if err != nil {
		exitError("%v", err)
	}

	dstObj := c.lookup(args[1])
	if dstObj == nil {
		exitError("no such object: %s", args[1])
	}
	s, err := storeOf(dstObj)
	if err != nil {
		exitError("%v", err)
	}

	name := st.Name()
	if len(args) == 3 {
		name = args[2]
	}

	geomType := st.GeometryType()
	if geomType == store.GeometryNone {
		exitError("%s has no geometry", sd.FullName())
	}

	fc, err := s.CreateFeatureClass(name, geomType, st.Fields(), copyMinZoom, copyMaxZoom)
	if err != nil {
		exitError("%v", err)
	}

	// Source fields were handed to CreateFeatureClass in order, so the
	// mapping is the identity even after name normalization.
	fieldMap := make([]int, len(fc.Fields()))
	for i := range fieldMap {
		fieldMap[i] = i
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Copying %d features into %s...\n", st.Count(), fc.FullName())
	if err := fc.CopyRows(ctx, st, fieldMap, progressBar()); err != nil {
		exitError("%v", err)
	}
	fmt.Println()

	if copyOverviews {
		fmt.Println("Building overviews...")
		if err := fc.CreateOverviews(ctx, progressBar()); err != nil {
			exitError("%v", err)
		}
		fmt.Println()
	}

	green := color.New(color.FgGreen)
	green.Printf("Done: %s\n", fc.FullName())
}

// progressBar reports completion on a single rewritten line.
func progressBar() progress.Progress {
	return progress.New(func(status progress.Status, complete float64, message string) bool {
		if status == progress.Warning {
			fmt.Fprintf(os.Stderr, "\nwarning: %s\n", message)
			return true
		}
		fmt.Printf("\r%3.0f%%", complete*100)
		return true
	})
}
