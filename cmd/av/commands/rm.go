package commands

import (
	"fmt"

	"assetvault/pkg/assetref"
	"assetvault/pkg/types"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm [id|reference...]",
	Short: "Delete assets from the vault",
	Long:  `Delete metadata, local blob and ephemeral handle, then fire a best-effort remote delete. The remote failing never brings the asset back locally.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}

		count := 0
		for _, arg := range args {
			id := types.ID(arg)
			// 也接受完整的 asset:// 引用
			if !id.IsValid() {
				ref, err := assetref.Parse(arg)
				if err != nil {
					fmt.Printf("⚠️  Skipped (not an id or reference): %s\n", arg)
					continue
				}
				id = ref.ID
			}

			if err := AV.Manager.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, err)
			}
			fmt.Printf("Deleted: %s\n", id)
			count++
		}

		if count > 0 {
			fmt.Printf("✅ Removed %d assets.\n", count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
