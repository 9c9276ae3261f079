package cmd

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"
    "snapsift/internal"
)

var pruneDryRunFlag bool

var pruneCmd = &cobra.Command{
    Use:   "prune [folder]",
    Short: "Remove thumbnails, non-media files, and empty folders",
    Args:  cobra.ExactArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        folder := args[0]

        info, err := os.Stat(folder)
        if err != nil || !info.IsDir() {
            return fmt.Errorf("folder does not exist or is not a directory: %s", folder)
        }

        conf, err := loadConfig()
        if err != nil {
            return err
        }

        files, fileErr := internal.PruneFiles(folder, conf, pruneDryRunFlag)
        dirs, dirErr := internal.RemoveEmptyDirs(folder, pruneDryRunFlag)
        failures := append(internal.SplitErrors(fileErr), internal.SplitErrors(dirErr)...)

        out := cmd.OutOrStdout()
        for _, f := range failures {
            fmt.Fprintf(out, "  ❌ %v\n", f)
        }
        verb := "Removed"
        if pruneDryRunFlag {
            fmt.Fprintln(out, "Dry run mode: nothing will be removed")
            verb = "Would remove"
        }
        for _, f := range files {
            fmt.Fprintf(out, "  🗑️  %s\n", f)
        }
        for _, d := range dirs {
            fmt.Fprintf(out, "  📁 %s\n", d)
        }
        fmt.Fprintf(out, "%s %d files and %d empty folders\n", verb, len(files), len(dirs))
        if len(failures) > 0 {
            return fmt.Errorf("%d items could not be pruned", len(failures))
        }
        return nil
    },
}

func init() {
    pruneCmd.Flags().BoolVar(&pruneDryRunFlag, "dry-run", false, "List what would be removed")

    rootCmd.AddCommand(pruneCmd)
}
