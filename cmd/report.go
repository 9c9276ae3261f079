package cmd

import (
    "fmt"

    "github.com/spf13/cobra"
    "go.uber.org/zap"
    "snapsift/internal"
)

var (
    formatFlag      string
    reportPruneFlag bool
)

var reportCmd = &cobra.Command{
    Use:   "report [folder]",
    Short: "Show what a run would do without changing anything",
    Long: `Report hashes every media file in the folder and prints the duplicate sets,
the surviving file and where its date came from, the overlay pairs that would
be composited, voice memos, and files whose content does not match their
extension.`,
    Args: cobra.ExactArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        folder := args[0]

        if formatFlag != "table" && formatFlag != "json" {
            return fmt.Errorf("invalid format %q: use table or json", formatFlag)
        }

        conf, err := loadConfig()
        if err != nil {
            return err
        }

        // Quiet unless --verbose.
        logger := zap.NewNop()
        if verboseFlag {
            var closeLog func() error
            logger, closeLog, err = setupLogger(cmd, conf)
            if err != nil {
                return err
            }
            defer closeLog()
        }

        rc := internal.NewRunConfig(conf, folder)
        rc.DryRun = true
        rc.Prune = reportPruneFlag

        pipe := internal.NewPipeline(rc, internal.PipelineDeps{}, logger)
        defer pipe.Close()

        return showPlan(cmd.Context(), pipe, cmd.OutOrStdout(), formatFlag)
    },
}

func init() {
    reportCmd.Flags().StringVar(&formatFlag, "format", "table", "Output format: table, json")
    reportCmd.Flags().BoolVar(&reportPruneFlag, "prune", false, "Also list files that --prune would remove")

    rootCmd.AddCommand(reportCmd)
}
