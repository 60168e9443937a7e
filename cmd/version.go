package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version information",
		Long: "Displays the build version, the Go version used to build this tool\n" +
			"and the configuration schema version it writes.",
		Run: func(cmd *cobra.Command, _ []string) {
			info, ok := debug.ReadBuildInfo()
			if !ok {
				cmd.Println("tool version\t unknown")
				cmd.Println("config version\t", currentConfigVersion)
				return
			}

			version := info.Main.Version
			if version == "" {
				version = "devel"
			}

			cmd.Println("tool version\t", version)
			cmd.Println("go version\t", info.GoVersion)
			cmd.Println("config version\t", currentConfigVersion)

			if revision := buildSetting(info, "vcs.revision"); revision != "" {
				cmd.Println("revision\t", revision)
			}
		},
	}
}

func buildSetting(info *debug.BuildInfo, key string) string {
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}

	return ""
}

// versionCmd represents the version command.
var versionCmd = newVersionCmd()

func init() {
	rootCmd.AddCommand(versionCmd)
}
