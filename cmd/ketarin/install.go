package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/JimH44/Ketarin4Linux/internal/common/output"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/update"
	"github.com/spf13/cobra"
)

var (
	// installUpdate forces an update pass before installing
	installUpdate bool
	// installProgress shows per-job progress bars
	installProgress bool
)

var installCmd = &cobra.Command{
	Use:   "install [job...]",
	Short: "Update and install applications",
	Long: `Resolve, download and install the given jobs, or all jobs, one after the other.

A failing job is logged and the batch continues. When a download fails but an
earlier download of the job exists, the earlier file is installed instead.
Jobs without setup instructions are skipped. Press Ctrl+C to cancel; the job
in progress stops at its next phase.

Examples:
  ketarin install                  Install all jobs
  ketarin install firefox vlc      Install two jobs
  ketarin install --update=false   Reuse existing downloads where possible
  ketarin install --progress       Show download and setup progress`,
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVar(&installUpdate, "update", true, "Download a new version even when one was downloaded before (default from update.always)")
	installCmd.Flags().BoolVar(&installProgress, "progress", false, "Show progress bars")

	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	jobs, err := a.selectJobs(args)
	if err != nil {
		return err
	}

	always := a.cfg.Update.GetAlways()
	if cmd.Flags().Changed("update") {
		always = installUpdate
	}
	u, err := a.newUpdater(always)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := runBatch(ctx, update.NewRunner(u), jobs, cmd.OutOrStdout(), installProgress)
	if summary.Installed < summary.Total {
		return fmt.Errorf("%d of %d applications failed or were skipped", summary.Total-summary.Installed, summary.Total)
	}
	return nil
}

// runBatch starts the batch on a worker and prints its events as they arrive.
func runBatch(ctx context.Context, r *update.Runner, jobs []*job.Job, w io.Writer, progress bool) update.Summary {
	b := r.Start(ctx, jobs)
	for ev := range b.Events() {
		printEvent(w, ev, progress)
	}
	summary := b.Wait()

	fmt.Fprintln(w)
	switch {
	case summary.Status == update.StatusCancelled:
		output.Fprintln(w, output.Warning, "Cancelled. "+summary.String())
	case summary.Installed == summary.Total:
		output.Fprintln(w, output.Success, summary.String())
	default:
		output.Fprintln(w, output.Error, summary.String())
	}
	return summary
}

func printEvent(w io.Writer, ev update.Event, progress bool) {
	switch ev.Kind {
	case update.EventStatus:
		output.Fprintln(w, output.Header, ev.Message)
	case update.EventProgress:
		if progress {
			fmt.Fprintf(w, "  %-12s %s\n", ev.Progress.Phase, output.ProgressBar(ev.Progress.Percent, 30))
		}
	case update.EventLog:
		fmt.Fprintln(w, output.FormatLogEntry(ev.Entry.Severity.String(), ev.Entry.Message))
		if ev.Entry.Detail != "" {
			output.Fprintln(w, output.Dim, "    "+ev.Entry.Detail)
		}
	}
}
