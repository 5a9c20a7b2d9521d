// cmd/av/commands/import.go

package commands

import (
	"fmt"
	"time"

	"assetvault/pkg/importer"

	"github.com/spf13/cobra"
)

var importFolder string

var importCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Import a file or directory tree into the vault",
	Long:  `Walk the given path, skip anything matched by .avignore, and insert every file. Identical bytes dedup to a single asset id no matter how many times you import them.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		targetPath := args[0] // 可能是文件，也可能是目录

		imp, err := importer.New(AV.Manager, AV.RootPath)
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := imp.ImportPath(cmd.Context(), targetPath, importFolder, func(path string, size int64) {
			fmt.Printf("\rImporting: %s (%d)", path, size) // \r 简单进度条
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Println() // 换行

		if res.Files > 0 {
			fmt.Printf("✅ Imported %d files (%d bytes) in %s\n", res.Files, res.Bytes, time.Since(start))
		} else {
			fmt.Println("⚠️  No files imported.")
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFolder, "folder", "", "Folder prefix for imported assets")
	rootCmd.AddCommand(importCmd)
}
