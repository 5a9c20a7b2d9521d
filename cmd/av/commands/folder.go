// cmd/av/commands/folder.go

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Bulk folder operations",
	Long:  `Folders are not entities, just folderPath prefixes on asset metadata. Every subcommand rewrites the whole prefix in one atomic batch: collaborators never observe half a folder.`,
}

var folderMvCmd = &cobra.Command{
	Use:   "mv [folder] [destination-parent]",
	Short: "Move a folder under a new parent (\"\" = root)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if err := AV.Manager.MoveFolder(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✅ Moved folder %s -> %s\n", args[0], args[1])
		return nil
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename [folder] [new-path]",
	Short: "Rename a folder (prefix rewrite over every nested asset)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if err := AV.Manager.RenameFolder(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✅ Renamed folder %s -> %s\n", args[0], args[1])
		return nil
	},
}

var folderRmCmd = &cobra.Command{
	Use:   "rm [folder]",
	Short: "Delete every asset at or under a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}
		if err := AV.Manager.DeleteFolderContents(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✅ Deleted folder contents: %s\n", args[0])
		return nil
	},
}

func init() {
	folderCmd.AddCommand(folderMvCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderRmCmd)
	rootCmd.AddCommand(folderCmd)
}
