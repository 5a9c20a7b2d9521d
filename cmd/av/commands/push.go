package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload pending assets to the origin server",
	Long:  `Iterates over every asset with uploaded=false, pushes its bytes and metadata to the origin, and flips the flag on success. Failures stay pending and retry on the next push.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if AV.Origin == nil {
			return fmt.Errorf("no origin configured (set origin.type in config.yaml)")
		}

		s := AV.Manager.Stats()
		if s.Pending == 0 {
			fmt.Println("Nothing to push. Run 'av import <path>' first.")
			return nil
		}
		fmt.Printf("📦 Pushing %d pending assets...\n", s.Pending)

		uploaded, failed, err := AV.Manager.UploadPending(cmd.Context())
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		fmt.Printf("\nSummary: %d succeeded, %d failed.\n", len(uploaded), len(failed))
		if len(failed) > 0 {
			return fmt.Errorf("some assets failed to upload")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
