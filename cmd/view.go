package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"covfold.dev/pkg/covfold/internal/controller"
	"covfold.dev/pkg/covfold/internal/domain"
)

var viewPlainFlag bool

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view [SNAPSHOT]",
		Short: "Browse a coverage snapshot",
		Long: `Browse per-file coverage from a snapshot in an interactive viewer.
Falls back to a static table when output is not a terminal or --plain
is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coverage, err := loadSnapshotArg(args)
			if err != nil {
				return err
			}

			viewer := ui
			if viewPlainFlag {
				viewer = controller.NewSimpleUI(cmd)
			}

			return viewer.RenderSummary(context.Background(), domain.Summarize(coverage))
		},
	}

	cmd.Flags().BoolVar(&viewPlainFlag, plainFlagName, false, "print a static table instead of the interactive viewer")

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
