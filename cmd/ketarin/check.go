package main

import (
	"context"
	"fmt"
	"io"

	"github.com/JimH44/Ketarin4Linux/internal/common/output"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/update"
	"github.com/spf13/cobra"
)

// checkShowVars prints every resolved variable
var checkShowVars bool

var checkCmd = &cobra.Command{
	Use:   "check [job...]",
	Short: "Resolve download URLs without downloading",
	Long: `Fetch the pages each job's variables extract from and print the resulting
download URL. Nothing is downloaded or installed.

Examples:
  ketarin check                Check all jobs
  ketarin check firefox        Check one job
  ketarin check --vars vlc     Also print every resolved variable`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkShowVars, "vars", false, "Print resolved variables")

	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	jobs, err := a.selectJobs(args)
	if err != nil {
		return err
	}
	u, err := a.newUpdater(true)
	if err != nil {
		return err
	}

	failed := checkJobs(cmd.Context(), u, jobs, cmd.OutOrStdout(), checkShowVars)
	if failed > 0 {
		return fmt.Errorf("%d job(s) could not be resolved", failed)
	}
	return nil
}

// resolver resolves one job; *update.Updater implements it.
type resolver interface {
	Resolve(ctx context.Context, j *job.Job) (*update.Resolution, error)
}

// checkJobs prints the resolution of each job and returns the number of failures.
func checkJobs(ctx context.Context, r resolver, jobs []*job.Job, w io.Writer, showVars bool) int {
	failed := 0
	for _, j := range jobs {
		res, err := r.Resolve(ctx, j)
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s: %s\n", output.FormatJob(j.Category, j.Name), output.Sprintf(output.Error, "%v", err))
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", output.FormatJob(j.Category, j.Name), res.URL)
		if showVars {
			for _, name := range res.Order {
				fmt.Fprintf(w, "    %s\n", output.FormatVariable(name, res.Values[name]))
			}
		}
	}
	return failed
}
