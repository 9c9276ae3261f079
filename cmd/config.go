package cmd

import (
    "fmt"
    "path/filepath"

    "github.com/spf13/cobra"
    "snapsift/internal"
)

var forceFlag bool

var configCmd = &cobra.Command{
    Use:   "config",
    Short: "Manage the snapsift configuration file",
}

var configInitCmd = &cobra.Command{
    Use:   "init",
    Short: "Write a sample config with the default settings",
    Args:  cobra.NoArgs,
    RunE: func(cmd *cobra.Command, args []string) error {
        path := configFlag
        if path == "" {
            dir, err := internal.ConfigDir()
            if err != nil {
                return err
            }
            path = filepath.Join(dir, "snapsift.toml")
        }

        if err := internal.WriteSampleConfig(path, internal.DefaultConfig(), forceFlag); err != nil {
            return err
        }
        fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote %s\n", path)
        return nil
    },
}

func init() {
    configInitCmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing config file")

    configCmd.AddCommand(configInitCmd)
    rootCmd.AddCommand(configCmd)
}
