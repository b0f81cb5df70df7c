package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"geocat/internal/catalog"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List catalog objects",
	Long: `List the children of a catalog object. The path may be a local
directory, a store file or a geocat:// URI. Without a path the
catalog roots are listed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLs,
}

var lsLong bool

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "Show object types and physical paths")
}

func runLs(cmd *cobra.Command, args []string) {
	var extra []string
	if len(args) == 1 {
		extra = append(extra, args[0])
	}
	c := initContext(extra...)
	defer c.Close()

	var obj catalog.Object = c.Catalog
	if len(args) == 1 {
		obj = c.lookup(args[0])
		if obj == nil {
			exitError("no such object: %s", args[0])
		}
	}

	cont, ok := obj.(catalog.Container)
	if !ok {
		printEntry(obj)
		return
	}
	if !cont.HasChildren() {
		return
	}
	for _, child := range cont.Children() {
		printEntry(child)
	}
}

func printEntry(obj catalog.Object) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	name := obj.Name()
	switch obj.Type() {
	case catalog.TypeFolder, catalog.TypeRoot:
		cyan.Print(name)
	case catalog.TypeStore:
		yellow.Print(name)
	case catalog.TypeFeatureClass, catalog.TypeShapefile, catalog.TypeTable:
		green.Print(name)
	default:
		fmt.Print(name)
	}
	if lsLong {
		fmt.Printf("\t%s\t%s", obj.Type(), obj.Path())
	}
	fmt.Println()
}
