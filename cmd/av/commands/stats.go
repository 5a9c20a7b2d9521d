// cmd/av/commands/stats.go

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show project statistics",
	Long:  `Derived purely from metadata: stays fast however large the blobs are.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}

		s := AV.Manager.Stats()
		fmt.Printf("Project:    %s\n", AV.Project)
		fmt.Printf("Assets:     %d\n", s.Total)
		fmt.Printf("Uploaded:   %d\n", s.Uploaded)
		fmt.Printf("Pending:    %d\n", s.Pending)
		fmt.Printf("Total size: %d bytes\n", s.TotalSize)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
