package cmd

import (
    "context"
    "fmt"
    "io"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"
    "snapsift/internal"
)

var (
    runDryRun       bool
    runPrune        bool
    runConvertMemos bool
    runBrowseLinks  bool
    runNoProgress   bool
    runScratchDir   string
    runStateDir     string
)

var runCmd = &cobra.Command{
    Use:   "run [folder]",
    Short: "Dedupe, date, and composite an export folder in place",
    Args:  cobra.ExactArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        folder := args[0]

        info, err := os.Stat(folder)
        if err != nil || !info.IsDir() {
            return fmt.Errorf("folder does not exist or is not a directory: %s", folder)
        }

        // Load config
        conf, err := loadConfig()
        if err != nil {
            return err
        }
        applyRunFlags(cmd, conf)

        logger, closeLog, err := setupLogger(cmd, conf)
        if err != nil {
            return err
        }
        defer closeLog()

        rc := internal.NewRunConfig(conf, folder)
        rc.DryRun = runDryRun
        rc.Prune = runPrune
        rc.Progress = !runNoProgress && internal.IsTerminal(os.Stderr)
        rc.ProgressOut = os.Stderr

        ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
        defer stop()

        pipe := internal.NewPipeline(rc, internal.PipelineDeps{}, logger)
        defer pipe.Close()

        out := cmd.OutOrStdout()
        if runDryRun {
            fmt.Fprintln(out, "🔍 Dry run mode: no files will be changed")
            return showPlan(ctx, pipe, out, "table")
        }

        sum, err := pipe.Run(ctx)
        if sum != nil {
            internal.RenderSummary(out, sum)
        }
        if err != nil {
            return err
        }
        if sum.Failed() {
            return fmt.Errorf("%d files could not be processed", sum.Errors.Total)
        }
        return nil
    },
}

// applyRunFlags lets explicitly set flags win over config values.
func applyRunFlags(cmd *cobra.Command, conf *internal.Config) {
    flags := cmd.Flags()
    if flags.Changed("convert-voice-memos") {
        conf.ConvertVoiceMemos = runConvertMemos
    }
    if flags.Changed("browse-links") {
        conf.BrowseLinks = runBrowseLinks
    }
    if runScratchDir != "" {
        conf.ScratchDir = runScratchDir
    }
    if runStateDir != "" {
        conf.StateDir = runStateDir
    }
}

func showPlan(ctx context.Context, pipe *internal.Pipeline, out io.Writer, format string) error {
    plan, err := pipe.Plan(ctx)
    if err != nil {
        return err
    }
    return internal.DisplayPlan(out, plan, internal.ReportOptions{Format: format})
}

func init() {
    runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the plan without changing any file")
    runCmd.Flags().BoolVar(&runPrune, "prune", false, "Remove non-media files and empty folders")
    runCmd.Flags().BoolVar(&runConvertMemos, "convert-voice-memos", false, "Transcode voice memos to mp3")
    runCmd.Flags().BoolVar(&runBrowseLinks, "browse-links", false, "Hardlink composites into the run folder")
    runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "Disable progress bars")
    runCmd.Flags().StringVar(&runScratchDir, "scratch-dir", "", "Scratch folder for intermediate files")
    runCmd.Flags().StringVar(&runStateDir, "state-dir", "", "Folder for run manifests and logs")

    rootCmd.AddCommand(runCmd)
}
