// cmd/av/commands/export.go

package commands

import (
	"fmt"
	"os"

	"assetvault/pkg/assetref"
	"assetvault/pkg/types"

	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export [id|reference]",
	Short: "Export an HTML asset as a standalone file",
	Long:  `Resolve every internal reference into an embedded data URL (stylesheets inlined, linked pages pre-rendered) so the output renders with no access to the vault.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}

		id := types.ID(args[0])
		if !id.IsValid() {
			ref, err := assetref.Parse(args[0])
			if err != nil {
				return fmt.Errorf("not an id or reference: %s", args[0])
			}
			id = ref.ID
		}

		rec, ok := AV.Meta.Get(id)
		if !ok {
			return fmt.Errorf("unknown asset: %s", id)
		}
		data, err := AV.Store.Get(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("asset bytes not available locally: %w", err)
		}

		out, err := AV.Resolver.ResolveHTMLAsDataURLs(cmd.Context(), string(data), rec.FolderPath)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		// 【关键点】默认写 stdout，方便重定向；-o 指定文件
		if exportOutput == "" {
			_, err = os.Stdout.WriteString(out)
			return err
		}
		if err := os.WriteFile(exportOutput, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOutput, err)
		}
		fmt.Printf("✅ Exported %s -> %s (%d bytes)\n", rec.Filename, exportOutput, len(out))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
