package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"geocat/internal/catalog"
	"geocat/internal/geo"
	"geocat/internal/mapview"
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Manage map documents",
	Long:  `Create and inspect map documents and manage their layer lists.`,
}

var mapCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Create a new map document",
	Args:  cobra.ExactArgs(1),
	Run:   runMapCreate,
}

var mapInfoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show a map document",
	Args:  cobra.ExactArgs(1),
	Run:   runMapInfo,
}

var mapAddLayerCmd = &cobra.Command{
	Use:   "add-layer <map> <name> <source>",
	Short: "Append a layer to a map document",
	Long: `Append a layer to a map document. The source is a geocat:// URI or
a path to a vector dataset; with --relative, file sources are stored
relative to the map document.`,
	Args: cobra.ExactArgs(3),
	Run:  runMapAddLayer,
}

var mapRemoveLayerCmd = &cobra.Command{
	Use:   "remove-layer <map> <name>",
	Short: "Delete a layer from a map document",
	Args:  cobra.ExactArgs(2),
	Run:   runMapRemoveLayer,
}

var (
	mapName        string
	mapDescription string
	mapBackground  string
	mapRelative    bool
)

func init() {
	mapCreateCmd.Flags().StringVar(&mapName, "name", "", "Map name (default: file name)")
	mapCreateCmd.Flags().StringVar(&mapDescription, "description", "", "Map description")
	mapCreateCmd.Flags().StringVar(&mapBackground, "background", "", "Background color as AARRGGBB hex")
	mapAddLayerCmd.Flags().BoolVar(&mapRelative, "relative", false, "Store file sources relative to the map document")

	mapCmd.AddCommand(mapCreateCmd)
	mapCmd.AddCommand(mapInfoCmd)
	mapCmd.AddCommand(mapAddLayerCmd)
	mapCmd.AddCommand(mapRemoveLayerCmd)
}

// mapPath normalizes a map document path, appending the extension when
// missing.
func mapPath(arg string) string {
	path, err := filepath.Abs(arg)
	if err != nil {
		exitError("%v", err)
	}
	if !strings.EqualFold(filepath.Ext(path), "."+mapview.MapExt) {
		path += "." + mapview.MapExt
	}
	return path
}

func runMapCreate(cmd *cobra.Command, args []string) {
	path := mapPath(args[0])

	name := mapName
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	m := mapview.NewMap(name, mapDescription)
	if mapBackground != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(mapBackground, "#"), 16, 32)
		if err != nil {
			exitError("invalid background color %q", mapBackground)
		}
		m.Background = geo.RGBAFromHex(int(v))
	}
	if err := m.Save(path); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Created map %s\n", path)
}

func runMapInfo(cmd *cobra.Command, args []string) {
	m, err := mapview.OpenMap(mapPath(args[0]))
	if err != nil {
		exitError("%v", err)
	}

	cyan := color.New(color.FgCyan)
	cyan.Print("name:       ")
	fmt.Println(m.Name)
	if m.Description != "" {
		cyan.Print("about:      ")
		fmt.Println(m.Description)
	}
	cyan.Print("epsg:       ")
	fmt.Println(m.EPSG)
	cyan.Print("background: ")
	fmt.Printf("%08X\n", m.Background.Hex())

	layers := m.Layers()
	cyan.Printf("layers:     ")
	fmt.Println(len(layers))
	for i, layer := range layers {
		marker := " "
		if !layer.Visible {
			marker = "-"
		}
		fmt.Printf("  %s %d %s\t%s\n", marker, i, layer.Name, layer.Source)
	}
}

func runMapAddLayer(cmd *cobra.Command, args []string) {
	path := mapPath(args[0])
	source := args[2]

	// The catalog validates geocat:// sources, so commands touching map
	// layers run with a live catalog.
	c := initContext(filepath.Dir(path), filepath.Dir(source))
	defer c.Close()

	m, err := mapview.OpenMap(path)
	if err != nil {
		exitError("%v", err)
	}
	m.SetCatalog(c.Catalog)
	if !strings.HasPrefix(source, catalog.Scheme) {
		abs, err := filepath.Abs(source)
		if err != nil {
			exitError("%v", err)
		}
		source = abs
	}
	if _, err := m.AddLayer(args[1], source); err != nil {
		exitError("%v", err)
	}
	m.SetRelativePaths(mapRelative)
	if err := m.Save(path); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Added layer %s\n", args[1])
}

func runMapRemoveLayer(cmd *cobra.Command, args []string) {
	path := mapPath(args[0])
	m, err := mapview.OpenMap(path)
	if err != nil {
		exitError("%v", err)
	}
	if err := m.DeleteLayer(args[1]); err != nil {
		exitError("%v", err)
	}
	if err := m.Save(path); err != nil {
		exitError("%v", err)
	}
	fmt.Printf("Removed layer %s\n", args[1])
}
