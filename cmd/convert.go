package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"covfold.dev/pkg/covfold/internal/adapter"
	"covfold.dev/pkg/covfold/internal/domain"
	m "covfold.dev/pkg/covfold/internal/model"
)

// defaultFragmentFile is where convert writes when --to is not given.
const defaultFragmentFile = "coverage-fragment.json"

var convertToFlag string

// convertCmd represents the convert command.
var convertCmd = newConvertCmd()

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert FILE...",
		Short: "Convert raw coverage dumps into a fragment file",
		Long: `Convert raw V8 coverage dumps into a coverage fragment keyed by original
source files, leaving the running snapshot untouched. Fragment files can
be inspected directly or combined later with the merge command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := resolveRunConfig()
			if err != nil {
				return err
			}

			return runConversion(context.Background(), cfg, parsePaths(args), m.Path(convertToFlag))
		},
	}

	cmd.Flags().StringVar(&convertToFlag, "to", defaultFragmentFile, "destination fragment file")

	return cmd
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

func runConversion(ctx context.Context, cfg m.RunConfig, files []m.Path, to m.Path) error {
	resolver := adapter.NewLocalSourceResolver(cfg.ClientRoots)
	converter := domain.NewConverter(resolver, fileAdapter, merger)

	fragment := m.CoverageMap{}

	for _, file := range files {
		raw, err := snapshotStore.LoadRaw(file)
		if err != nil {
			return err
		}

		merger.Merge(fragment, converter.ConvertBatch(ctx, raw, cfg.WorkDir))
	}

	fragment = domain.Filter(fragment, cfg.Exclusion())

	return snapshotStore.Save(to, fragment)
}
