package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "covfold"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName           = "output"
	excludeFlagName          = "exclude"
	verboseFlagName          = "verbose"
	runParallelFlagName      = "parallel"
	rawDirFlagName           = "raw-dir"
	labelPrefixFlagName      = "label-prefix"
	mandatoryBackendFlagName = "mandatory-backend"
	freshFlagName            = "fresh"
	plainFlagName            = "plain"

	excludeConfigKey   = "paths.exclude"
	testGlobsConfigKey = "paths.test_globs"

	clientEnabledKey = "client.enabled"
	clientRootsKey   = "client.roots"

	runParallelConfigKey = "run.parallel"
	runRawDirKey         = "run.raw_dir"
	runLabelPrefixKey    = "run.label_prefix"
	runBackendsKey       = "run.backends"
	runMandatoryKey      = "run.mandatory_backend"
	runFreshKey          = "run.fresh"
	runSSRDumpKey        = "run.ssr_dump"
	runFetchTimeoutKey   = "run.fetch_timeout"
	runPollIntervalKey   = "run.poll_interval"

	debugDirKey = "debug.dir"

	defaultSnapshotDir  = ".covfold"
	defaultRunParallel  = 1
	defaultFetchTimeout = 10 * time.Second
	defaultPollInterval = time.Second

	envPrefix = "COVFOLD"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".covfold.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

// defaultTestGlobs matches the file layouts JavaScript test runners use
// out of the box.
var defaultTestGlobs = []string{"**/*.test.*", "**/*.spec.*", "**/__tests__/**"}

var (
	globalLogger *slog.Logger

	// configReadErr holds a parse failure from covfold.yaml so commands can
	// refuse to run on a broken config instead of silently using defaults.
	configReadErr error
)

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultSnapshotDir)
	viper.SetDefault(excludeConfigKey, []string{})
	viper.SetDefault(testGlobsConfigKey, defaultTestGlobs)

	viper.SetDefault(clientEnabledKey, false)
	viper.SetDefault(clientRootsKey, map[string]string{})

	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(runRawDirKey, "")
	viper.SetDefault(runLabelPrefixKey, "")
	viper.SetDefault(runBackendsKey, []string{})
	viper.SetDefault(runMandatoryKey, false)
	viper.SetDefault(runFreshKey, false)
	viper.SetDefault(runSSRDumpKey, "")
	viper.SetDefault(runFetchTimeoutKey, int64(defaultFetchTimeout.Seconds()))
	viper.SetDefault(runPollIntervalKey, int64(defaultPollInterval.Seconds()))

	viper.SetDefault(debugDirKey, "")

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		// Running without a config file is fine; a file that exists but
		// cannot be parsed is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			configReadErr = err
		}
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
