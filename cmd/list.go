package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"covfold.dev/pkg/covfold/internal/controller"
	"covfold.dev/pkg/covfold/internal/domain"
	m "covfold.dev/pkg/covfold/internal/model"
)

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [SNAPSHOT]",
		Short: "List covered files and their percentages",
		Long:  listLongDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coverage, err := loadSnapshotArg(args)
			if err != nil {
				return err
			}

			return controller.NewSimpleUI(cmd).RenderSummary(context.Background(), domain.Summarize(coverage))
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// loadSnapshotArg loads the snapshot named by the first positional
// argument, falling back to the configured output directory.
func loadSnapshotArg(args []string) (m.CoverageMap, error) {
	path := snapshotFilePath()
	if len(args) > 0 {
		path = m.Path(args[0])
	}

	return snapshotStore.Load(path)
}
