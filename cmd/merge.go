package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"covfold.dev/pkg/covfold/internal/domain"
	m "covfold.dev/pkg/covfold/internal/model"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge FILE...",
		Short: "Merge fragment files into the snapshot",
		Long: `Merge coverage fragments or snapshots produced by other processes into
the output snapshot, refreshing the summary alongside it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runMerge(parsePaths(args))
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(files []m.Path) error {
	target := snapshotFilePath()
	coverage := snapshotStore.LoadOrEmpty(target)

	for _, file := range files {
		fragment, err := snapshotStore.Load(file)
		if err != nil {
			return err
		}

		merger.Merge(coverage, fragment)
	}

	if err := snapshotStore.Save(target, coverage); err != nil {
		return err
	}

	return snapshotStore.WriteSummary(summaryFilePath(), domain.Summarize(coverage))
}

func snapshotFilePath() m.Path {
	return m.Path(filepath.Join(viper.GetString(outputFlagName), domain.SnapshotFileName))
}

func summaryFilePath() m.Path {
	return m.Path(filepath.Join(viper.GetString(outputFlagName), domain.SummaryFileName))
}
