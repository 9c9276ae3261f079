package cmd

import (
    "fmt"

    "github.com/spf13/cobra"
    "snapsift/internal"
)

var intoFlag string

var extractCmd = &cobra.Command{
    Use:   "extract [zip...]",
    Short: "Unpack export archives into a work folder",
    Args:  cobra.MinimumNArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        if intoFlag == "" {
            return fmt.Errorf("missing --into")
        }

        conf, err := loadConfig()
        if err != nil {
            return err
        }
        logger, closeLog, err := setupLogger(cmd, conf)
        if err != nil {
            return err
        }
        defer closeLog()

        results, err := internal.ExtractArchives(cmd.Context(), args, intoFlag, logger)
        if err != nil {
            return err
        }

        out := cmd.OutOrStdout()
        failed := 0
        for _, r := range results {
            if r.Err != nil {
                failed++
                fmt.Fprintf(out, "❌ %s: %v\n", r.Archive, r.Err)
                continue
            }
            fmt.Fprintf(out, "📦 %s: %d files\n", r.Archive, r.Files)
        }
        if failed > 0 {
            return fmt.Errorf("%d of %d archives failed to extract", failed, len(results))
        }
        return nil
    },
}

func init() {
    extractCmd.Flags().StringVar(&intoFlag, "into", "", "Destination folder")

    rootCmd.AddCommand(extractCmd)
}
