package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"geocat/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Create a new geodata store",
	Long: `Create an empty geodata store at the given path. The store is a
single sqlite file; attachments live in a sibling ".data" directory.
The ".gcdb" extension is appended when missing.`,
	Args: cobra.ExactArgs(1),
	Run:  runInit,
}

func runInit(cmd *cobra.Command, args []string) {
	path, err := filepath.Abs(args[0])
	if err != nil {
		exitError("%v", err)
	}
	if !strings.EqualFold(filepath.Ext(path), "."+store.Ext) {
		path += "." + store.Ext
	}

	c := initContext(filepath.Dir(path))
	defer c.Close()

	s, err := store.Create(nil, filepath.Base(path), path, c.Log)
	if err != nil {
		exitError("%v", err)
	}
	defer s.Close()

	fmt.Printf("Created store %s\n", path)
}
