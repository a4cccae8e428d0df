package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/JimH44/Ketarin4Linux/internal/common/output"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/variable"
	"github.com/spf13/cobra"
)

var (
	// evalContentFile reads page content from a file instead of the network
	evalContentFile string
	// evalPattern tries a pattern without saving it
	evalPattern string
	// evalRightToLeft tries right-to-left matching without saving it
	evalRightToLeft bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <job> <variable>",
	Short: "Evaluate one variable against its page",
	Long: `Fetch the page of a variable and show what its rule extracts. The
--pattern and --rtl flags try a different rule without saving it.

Examples:
  ketarin eval firefox ver
  ketarin eval firefox ver --pattern 'Firefox (\d+)'
  ketarin eval firefox ver --content-file page.html`,
	Args: cobra.ExactArgs(2),
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalContentFile, "content-file", "", "Read the page from a file")
	evalCmd.Flags().StringVar(&evalPattern, "pattern", "", "Try this pattern instead of the saved rule")
	evalCmd.Flags().BoolVar(&evalRightToLeft, "rtl", false, "Try right-to-left matching")

	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	j, err := a.findJob(args[0])
	if err != nil {
		return err
	}

	opts := evalOptions{
		pattern:        evalPattern,
		patternChanged: cmd.Flags().Changed("pattern"),
		rightToLeft:    evalRightToLeft,
		rtlChanged:     cmd.Flags().Changed("rtl"),
	}
	if evalContentFile != "" {
		data, err := os.ReadFile(evalContentFile)
		if err != nil {
			return err
		}
		opts.content = string(data)
		opts.hasContent = true
	}

	fetchFn := a.fetcher.ContentFunc(j.UserAgent)
	expOpts := []variable.ExpanderOption{
		variable.WithGlobals(a.globals),
		variable.WithJobInfo(j.Category, j.Name),
		variable.WithMatchTimeout(a.cfg.Match.GetTimeout()),
	}
	return evaluate(cmd.Context(), cmd.OutOrStdout(), j, args[1], fetchFn, expOpts, opts)
}

type evalOptions struct {
	content        string
	hasContent     bool
	pattern        string
	patternChanged bool
	rightToLeft    bool
	rtlChanged     bool
}

// evaluate runs one variable through an edit session that is always
// discarded, so trial rules never reach the jobs file.
func evaluate(ctx context.Context, w io.Writer, j *job.Job, name string, fetchFn variable.ContentFunc, expOpts []variable.ExpanderOption, opts evalOptions) error {
	v, ok := j.Variables.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", variable.ErrVariableNotFound, name)
	}

	if !v.Rule.NeedsContent() && !opts.patternChanged {
		exp := variable.NewExpander(j.Variables, append(expOpts, variable.WithContentFunc(fetchFn))...)
		value, err := exp.Resolve(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, output.FormatVariable(name, value))
		return nil
	}

	s := j.EditVariables()
	defer s.Discard()

	if err := s.Select(name); err != nil {
		return err
	}
	if opts.patternChanged {
		if err := s.SetKind(name, variable.KindPattern); err != nil {
			return err
		}
		if err := s.SetPattern(name, opts.pattern); err != nil {
			return err
		}
	}
	if opts.rtlChanged {
		if err := s.SetRightToLeft(name, opts.rightToLeft); err != nil {
			return err
		}
	}

	if opts.hasContent {
		err := s.SetContent(name, opts.content)
		if err != nil {
			return err
		}
	} else if err := s.Reload(ctx, name, fetchFn, expOpts...); err != nil {
		return err
	}

	if _, err := s.Wait(ctx); err != nil {
		return err
	}
	if err := s.EvalError(name); err != nil {
		return err
	}
	m, found := s.Match(name)
	if !found {
		output.Fprintln(w, output.Warning, fmt.Sprintf("{%s}: no match", name))
		return variable.ErrNoMatch
	}
	fmt.Fprintf(w, "%s %s\n", output.FormatVariable(name, m.Value), output.Sprintf(output.Dim, "(offset %d)", m.Offset))
	return nil
}
