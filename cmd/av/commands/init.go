package commands

import (
	"fmt"
	"os"

	"assetvault/pkg/project"
	"assetvault/pkg/types"

	"github.com/spf13/cobra"
)

var initProjectID string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an AssetVault workspace",
	Long:  `Create the .av metadata directory and mint (or adopt) a project id. Collaborators joining an existing project should pass --project with the shared id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		proj := project.NewManager(wd)
		if existing, err := proj.ProjectID(); err == nil {
			fmt.Printf("⚠️  AssetVault workspace already exists (project %s)\n", existing)
			return nil
		}

		id, err := proj.Init(types.ProjectID(initProjectID))
		if err != nil {
			return fmt.Errorf("failed to initialize workspace: %w", err)
		}

		fmt.Printf("✅ Initialized AssetVault workspace in %s (project %s)\n", proj.Dir(), id)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initProjectID, "project", "", "Join an existing project by id (default: mint a new one)")
	rootCmd.AddCommand(initCmd)
}
