package cmd

import (
    "path/filepath"

    "github.com/spf13/cobra"
    "go.uber.org/zap"
    "snapsift/internal"
)

// Version is overridden from the embedded VERSION file.
var Version = "dev"

var (
    configFlag   string
    logLevelFlag string
    verboseFlag  bool
)

var rootCmd = &cobra.Command{
    Use:           "snapsift",
    Short:         "Snapsift cleans up photo and video exports",
    SilenceUsage:  true,
    SilenceErrors: false,
}

func Execute() error {
    return rootCmd.Execute()
}

// ApplyVersion copies Version onto the root command.
func ApplyVersion() {
    rootCmd.Version = Version
}

func init() {
    rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: <user config dir>/snapsift/snapsift.toml)")
    rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
    rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Shortcut for --log-level debug")
    ApplyVersion()
}

func loadConfig() (*internal.Config, error) {
    return internal.LoadConfigFile(configFlag)
}

// setupLogger builds the console logger and the JSON log under the state dir.
func setupLogger(cmd *cobra.Command, conf *internal.Config) (*zap.Logger, func() error, error) {
    level := conf.LogLevel
    if logLevelFlag != "" {
        level = logLevelFlag
    }
    if verboseFlag {
        level = "debug"
    }
    return internal.NewLogger(internal.LogOptions{
        Level:   level,
        Console: cmd.ErrOrStderr(),
        File:    filepath.Join(conf.StateDir, "snapsift.log"),
    })
}
