// Package cli implements the command-line interface for geocat.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"geocat/internal/catalog"
	"geocat/internal/config"
	"geocat/internal/store"
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Catalog *catalog.Catalog
	Log     *zap.SugaredLogger

	logger *zap.Logger
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	c.Catalog.FreeResources()
	if c.logger != nil {
		c.logger.Sync()
	}
}

// initContext loads settings and builds the catalog. extraRoots are
// directories derived from command arguments that must be reachable
// through the catalog in addition to the --root flags.
func initContext(extraRoots ...string) *cmdContext {
	dir, err := os.UserConfigDir()
	if err != nil {
		exitError("%v", err)
	}
	cfg, err := config.Load(filepath.Join(dir, "geocat"))
	if err != nil {
		exitError("%v", err)
	}
	if rootShowHidden {
		cfg.ShowHidden = true
	}

	var logger *zap.Logger
	if rootVerbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		exitError("failed to create logger: %v", err)
	}
	log := logger.Sugar()

	roots := append([]string{}, rootDirs...)
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			exitError("%v", err)
		}
		roots = append(roots, cwd)
	}
	for _, extra := range extraRoots {
		abs, err := filepath.Abs(extra)
		if err != nil {
			continue
		}
		roots = append(roots, abs)
	}

	cat := catalog.New(roots, cfg, log)
	cat.AddFactory(store.NewDataStoreFactory(log))
	cat.AddFactory(catalog.NewSimpleDatasetFactory())
	cat.AddFactory(catalog.NewFolderFactory(cat))
	cat.AddFactory(catalog.NewFileFactory())
	catalog.SetInstance(cat)

	return &cmdContext{Config: cfg, Catalog: cat, Log: log, logger: logger}
}

// lookup resolves a geocat:// URI or a local filesystem path to a
// catalog object. Returns nil when nothing matches.
func (c *cmdContext) lookup(path string) catalog.Object {
	if strings.HasPrefix(path, catalog.Scheme) {
		return c.Catalog.GetObject(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	return c.Catalog.ObjectByLocalPath(abs)
}

// storeOf unwraps a catalog object down to its data store, opening it
// on demand.
func storeOf(obj catalog.Object) (*store.DataStore, error) {
	switch o := obj.(type) {
	case *store.DataStore:
		return o, nil
	case *store.StoreObject:
		return o.Store()
	}
	return nil, fmt.Errorf("%s is not a store", obj.FullName())
}

var rootCmd = &cobra.Command{
	Use:   "geocat",
	Short: "Geodata catalog and store tool",
	Long: `geocat browses a hierarchy of geodata sources, imports vector data
into spatialite-style stores and manages map documents. Objects are
addressed either by local path or by geocat:// catalog URI.`,
}

var (
	rootDirs       []string
	rootShowHidden bool
	rootVerbose    bool
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringArrayVar(&rootDirs, "root", nil, "Catalog root directory (repeatable, default: working directory)")
	rootCmd.PersistentFlags().BoolVar(&rootShowHidden, "show-hidden", false, "Show hidden files in the catalog")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(overviewsCmd)
	rootCmd.AddCommand(mapCmd)
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
