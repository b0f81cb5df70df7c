package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"geocat/internal/store"
)

var overviewsCmd = &cobra.Command{
	Use:   "overviews <featureclass>",
	Short: "Build overview geometries for a feature class",
	Long: `Build simplified per-zoom copies of every geometry in a feature
class. Overviews speed up drawing at low zoom levels; the feature
class is addressed as <store>/<name> or by geocat:// URI.`,
	Args: cobra.ExactArgs(1),
	Run:  runOverviews,
}

func runOverviews(cmd *cobra.Command, args []string) {
	c := initContext(filepath.Dir(filepath.Dir(args[0])))
	defer c.Close()

	obj := c.lookup(args[0])
	if obj == nil {
		exitError("no such object: %s", args[0])
	}
	fc, ok := obj.(*store.FeatureClass)
	if !ok {
		exitError("%s is not a feature class", obj.FullName())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	minZoom, maxZoom := fc.ZoomRange()
	fmt.Printf("Building overviews for %s (zoom %d..%d)...\n", fc.FullName(), minZoom, maxZoom)
	if err := fc.CreateOverviews(ctx, progressBar()); err != nil {
		exitError("%v", err)
	}
	fmt.Println()
}
