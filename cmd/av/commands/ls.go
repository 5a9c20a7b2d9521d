// cmd/av/commands/ls.go

package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"assetvault/pkg/replica"
	"assetvault/pkg/types"

	"github.com/spf13/cobra"
)

var lsFolder string

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List assets in the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if AV == nil {
			return fmt.Errorf("app not initialized")
		}

		type row struct {
			id  types.ID
			rec replica.Record
		}
		var rows []row
		AV.Meta.ForEach(func(id types.ID, rec replica.Record) bool {
			if lsFolder != "" && !types.FolderContains(types.CleanFolderPath(lsFolder), rec.FolderPath) {
				return true
			}
			rows = append(rows, row{id, rec})
			return true
		})

		if len(rows) == 0 {
			fmt.Println("No assets. Run 'av import <path>' first.")
			return nil
		}

		// 按目录 + 文件名排序，输出稳定
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].rec.FolderPath != rows[j].rec.FolderPath {
				return rows[i].rec.FolderPath < rows[j].rec.FolderPath
			}
			return rows[i].rec.Filename < rows[j].rec.Filename
		})

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFOLDER\tNAME\tSIZE\tSTATE")
		for _, r := range rows {
			state := "pending"
			if r.rec.Uploaded {
				state = "uploaded"
			}
			folder := r.rec.FolderPath
			if folder == "" {
				folder = "/"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.id, folder, r.rec.Filename, r.rec.Size, state)
		}
		return w.Flush()
	},
}

func init() {
	lsCmd.Flags().StringVar(&lsFolder, "folder", "", "Only list assets under this folder")
	rootCmd.AddCommand(lsCmd)
}
