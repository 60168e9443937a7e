package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"covfold.dev/pkg/covfold/internal/adapter"
	"covfold.dev/pkg/covfold/internal/domain"
	m "covfold.dev/pkg/covfold/internal/model"
)

var collectParallelFlag int
var collectRawDirFlag string
var collectLabelPrefixFlag string
var collectMandatoryFlag bool
var collectFreshFlag bool

// collectCmd represents the collect command.
var collectCmd = newCollectCmd()

func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect coverage from raw dumps and backends",
		Long:  collectLongDescription,
		Args:  cobra.ExactArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := resolveRunConfig()
			if err != nil {
				return err
			}

			return runCollection(context.Background(), cfg)
		},
	}

	configureCollectFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func configureCollectFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&collectParallelFlag, runParallelFlagName, "p", viper.GetInt(runParallelConfigKey), "number of raw dump files absorbed in parallel")
	bindFlagToConfig(cmd.Flags().Lookup(runParallelFlagName), runParallelConfigKey)

	cmd.Flags().StringVar(&collectRawDirFlag, rawDirFlagName, viper.GetString(runRawDirKey), "directory of raw coverage dumps, one collection event per file")
	bindFlagToConfig(cmd.Flags().Lookup(rawDirFlagName), runRawDirKey)

	cmd.Flags().StringVar(&collectLabelPrefixFlag, labelPrefixFlagName, viper.GetString(runLabelPrefixKey), "prefix for event labels derived from dump file names")
	bindFlagToConfig(cmd.Flags().Lookup(labelPrefixFlagName), runLabelPrefixKey)

	cmd.Flags().BoolVar(&collectMandatoryFlag, mandatoryBackendFlagName, viper.GetBool(runMandatoryKey), "fail the run when a backend endpoint yields no coverage")
	bindFlagToConfig(cmd.Flags().Lookup(mandatoryBackendFlagName), runMandatoryKey)

	cmd.Flags().BoolVar(&collectFreshFlag, freshFlagName, viper.GetBool(runFreshKey), "discard the persisted snapshot instead of accumulating onto it")
	bindFlagToConfig(cmd.Flags().Lookup(freshFlagName), runFreshKey)
}

// resolveRunConfig assembles and validates the run configuration from
// config file, environment and flags.
func resolveRunConfig() (m.RunConfig, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return m.RunConfig{}, fmt.Errorf("resolve work dir: %w", err)
	}

	cfg := m.RunConfig{
		Client:                viper.GetBool(clientEnabledKey),
		ClientRoots:           viper.GetStringMapString(clientRootsKey),
		SSRDump:               m.Path(viper.GetString(runSSRDumpKey)),
		API:                   viper.GetStringSlice(runBackendsKey),
		ExpectBackendCoverage: viper.GetBool(runMandatoryKey),
		Exclude:               viper.GetStringSlice(excludeConfigKey),
		TestGlobs:             viper.GetStringSlice(testGlobsConfigKey),
		WorkDir:               m.Path(workDir),
		SnapshotDir:           m.Path(viper.GetString(outputFlagName)),
		DebugDir:              m.Path(viper.GetString(debugDirKey)),
		Fresh:                 viper.GetBool(runFreshKey),
		FetchTimeout:          time.Duration(viper.GetInt64(runFetchTimeoutKey)) * time.Second,
		PollInterval:          time.Duration(viper.GetInt64(runPollIntervalKey)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return m.RunConfig{}, err
	}

	return cfg, nil
}

func runCollection(ctx context.Context, cfg m.RunConfig) error {
	resolver := adapter.NewLocalSourceResolver(cfg.ClientRoots)
	converter := domain.NewConverter(resolver, fileAdapter, merger)
	backend := adapter.NewHTTPBackendClient(cfg.FetchTimeout)
	sink := adapter.NewFileDebugSink(cfg.DebugDir)

	session := domain.NewSession(cfg, snapshotStore, backend, sink, converter, merger, nil, ui)

	if err := session.RunStart(ctx); err != nil {
		return err
	}

	if err := absorbRawDir(ctx, cfg, session); err != nil {
		return err
	}

	_, err := session.RunEnd(ctx)

	return err
}

// absorbRawDir feeds every dump file in the configured raw dir to the
// session as one collection event. An unreadable dump is skipped so a
// single corrupt file cannot void the rest of the run.
func absorbRawDir(ctx context.Context, cfg m.RunConfig, session domain.Session) error {
	rawDir := viper.GetString(runRawDirKey)
	if rawDir == "" {
		return nil
	}

	files, err := listRawDumps(rawDir)
	if err != nil {
		return err
	}

	labelPrefix := viper.GetString(runLabelPrefixKey)

	grp, grpCtx := errgroup.WithContext(ctx)
	if parallel := viper.GetInt(runParallelConfigKey); parallel > 0 {
		grp.SetLimit(parallel)
	}

	for _, file := range files {
		grp.Go(func() error {
			raw, err := snapshotStore.LoadRaw(m.Path(file))
			if err != nil {
				slog.Warn("skipping unreadable raw dump", "file", file, "error", err)
				return nil
			}

			return session.CollectEvent(grpCtx, m.CollectionEvent{
				Label:    labelPrefix + dumpLabel(file),
				RootHint: cfg.WorkDir,
				Raw:      raw,
			})
		})
	}

	return grp.Wait()
}

func listRawDumps(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read raw dump dir: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	return files, nil
}

func dumpLabel(file string) string {
	base := filepath.Base(file)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
