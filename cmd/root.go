// Package cmd provides the root command and CLI setup for covfold.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"covfold.dev/pkg/covfold/internal/adapter"
	"covfold.dev/pkg/covfold/internal/controller"
	"covfold.dev/pkg/covfold/internal/domain"
	m "covfold.dev/pkg/covfold/internal/model"
)

var fileAdapter adapter.JSFileAdapter
var snapshotStore adapter.SnapshotStore
var merger domain.Merger
var ui controller.UI

// snapshotDirFlag is a root-level flag shared by commands that read/write the snapshot.
var snapshotDirFlag string

// excludePatterns is a root-level flag that drops covered files for applicable commands.
var excludePatterns []string

// verboseFlag raises the log level to debug.
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fileAdapter = adapter.NewTreeSitterFileAdapter()
	snapshotStore = adapter.NewJSONSnapshotStore()
	merger = domain.NewMerger()
}

const snapshotHelp = `The running snapshot lives in the output directory (default .covfold):
  coverage-final.json     merged coverage map
  coverage-summary.yaml   per-file totals`

const rootLongDescription = `Covfold collects per-test JavaScript coverage. It folds raw V8 coverage
dumps into a statement, branch and function model keyed by original
source files, merges results across tests and processes, and reports
the totals.

` + snapshotHelp

const collectLongDescription = `Run a collection session: seed from the persisted snapshot, absorb one
coverage event per raw dump file, fetch backend coverage and write the
merged snapshot plus summary.

` + snapshotHelp

const listLongDescription = `List covered files with statement, branch, function and line
percentages from a snapshot.

` + snapshotHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = baseRootCmd()

func baseRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "covfold",
		Short: "JavaScript coverage collection and merge tool",
		Long:  rootLongDescription,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if configReadErr != nil {
				return fmt.Errorf("read %s: %w", configFileName, configReadErr)
			}

			configureLogger("", viper.GetBool(logVerboseKey))

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVarP(
			&snapshotDirFlag, outputFlagName, "o",
			viper.GetString(outputFlagName),
			"output directory for the coverage snapshot and summary",
		)
	bindFlagToConfig(cmd.PersistentFlags().Lookup(outputFlagName), outputFlagName)

	cmd.PersistentFlags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude covered files matching glob (can be repeated)")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.PersistentFlags().BoolVar(&verboseFlag, verboseFlagName, viper.GetBool(logVerboseKey), "enable debug logging")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}
