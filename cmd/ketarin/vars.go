package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/JimH44/Ketarin4Linux/internal/common/logger"
	"github.com/JimH44/Ketarin4Linux/internal/common/output"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/variable"
	"github.com/spf13/cobra"
)

var (
	varKind        string
	varURL         string
	varPostData    string
	varStart       string
	varEnd         string
	varPattern     string
	varRightToLeft bool
	varValue       string
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "List and edit job variables",
	Long:  `Commands for listing, adding, changing, renaming and removing the variables of a job.`,
}

var varsListCmd = &cobra.Command{
	Use:   "list <job>",
	Short: "List the variables of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		j, err := a.findJob(args[0])
		if err != nil {
			return err
		}
		listVariables(cmd.OutOrStdout(), j)
		return nil
	},
}

var varsSetCmd = &cobra.Command{
	Use:   "set <job> <name>",
	Short: "Add or change a variable",
	Long: `Add a variable to a job, or change an existing one. Only the given flags
are changed. Without --kind, the kind follows from --pattern, --value or
--start/--end.

Examples:
  ketarin vars set firefox ver --url https://example.org/releases --pattern 'v(\d+\.\d+)'
  ketarin vars set firefox ver --kind delimited --start 'Version ' --end '<'
  ketarin vars set firefox file --value 'firefox-{ver}.tar.bz2'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editJob(args[0], func(s *variable.Session) error {
			return applyVarFlags(cmd, s, args[1])
		})
	},
}

var varsRenameCmd = &cobra.Command{
	Use:   "rename <job> <old> <new>",
	Short: "Rename a variable",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editJob(args[0], func(s *variable.Session) error {
			return s.Rename(args[1], args[2])
		})
	},
}

var varsRemoveCmd = &cobra.Command{
	Use:     "rm <job> <name>",
	Aliases: []string{"remove"},
	Short:   "Remove a variable",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editJob(args[0], func(s *variable.Session) error {
			return s.Remove(args[1])
		})
	},
}

func init() {
	f := varsSetCmd.Flags()
	f.StringVar(&varKind, "kind", "", "Extraction kind: literal, delimited or pattern")
	f.StringVar(&varURL, "url", "", "Page to extract from")
	f.StringVar(&varPostData, "post-data", "", "Form data to POST to the page")
	f.StringVar(&varStart, "start", "", "Text before the value (delimited)")
	f.StringVar(&varEnd, "end", "", "Text after the value (delimited)")
	f.StringVar(&varPattern, "pattern", "", "Regular expression; the first group is the value")
	f.BoolVar(&varRightToLeft, "rtl", false, "Use the last match instead of the first")
	f.StringVar(&varValue, "value", "", "Literal value (may reference other variables)")

	varsCmd.AddCommand(varsListCmd, varsSetCmd, varsRenameCmd, varsRemoveCmd)
	rootCmd.AddCommand(varsCmd)
}

// editJob runs fn in an edit session of the named job and saves the jobs
// file when fn succeeds.
func editJob(name string, fn func(*variable.Session) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	j, err := a.findJob(name)
	if err != nil {
		return err
	}

	s := j.EditVariables(variable.WithSessionMatchTimeout(a.cfg.Match.GetTimeout()))
	if err := fn(s); err != nil {
		s.Discard()
		return err
	}
	pruned, err := j.SaveVariables(s)
	if err != nil {
		return err
	}
	for _, p := range pruned {
		logger.Info("removed empty variable {%s}", p)
	}
	if err := a.jobs.Save(); err != nil {
		return err
	}
	output.PrintSuccess("saved %s", j)
	return nil
}

// applyVarFlags applies the changed set flags to the variable called name,
// adding it first if needed.
func applyVarFlags(cmd *cobra.Command, s *variable.Session, name string) error {
	if _, ok := s.Get(name); !ok {
		if _, err := s.Add(name); err != nil {
			return err
		}
	}
	changed := cmd.Flags().Changed

	kindName := varKind
	if !changed("kind") {
		switch {
		case changed("pattern"):
			kindName = "pattern"
		case changed("value"):
			kindName = "literal"
		case changed("start") || changed("end"):
			kindName = "delimited"
		}
	}
	if kindName != "" {
		kind, err := variable.ParseKind(kindName)
		if err != nil {
			return err
		}
		if err := s.SetKind(name, kind); err != nil {
			return err
		}
	}
	if changed("url") {
		if err := s.SetURL(name, varURL); err != nil {
			return err
		}
	}
	if changed("post-data") {
		if err := s.SetPostData(name, varPostData); err != nil {
			return err
		}
	}
	if changed("start") || changed("end") {
		v, _ := s.Get(name)
		start, end := v.Rule.StartText, v.Rule.EndText
		if changed("start") {
			start = varStart
		}
		if changed("end") {
			end = varEnd
		}
		if err := s.SetDelimiters(name, start, end); err != nil {
			return err
		}
	}
	if changed("pattern") {
		if err := s.SetPattern(name, varPattern); err != nil {
			return err
		}
	}
	if changed("rtl") {
		if err := s.SetRightToLeft(name, varRightToLeft); err != nil {
			return err
		}
	}
	if changed("value") {
		if err := s.SetLiteral(name, varValue); err != nil {
			return err
		}
	}
	return nil
}

func listVariables(w io.Writer, j *job.Job) {
	output.Fprintln(w, output.Header, j.String())
	if j.Variables.Len() == 0 {
		output.Fprintln(w, output.Dim, "  no variables")
		return
	}
	for _, v := range j.Variables.Variables() {
		fmt.Fprintf(w, "  {%s} %s\n", v.Name, describeRule(v))
	}
}

func describeRule(v *variable.Variable) string {
	var b strings.Builder
	r := v.Rule
	switch r.Kind {
	case variable.KindLiteral:
		fmt.Fprintf(&b, "= %q", r.Literal)
		return b.String()
	case variable.KindDelimited:
		fmt.Fprintf(&b, "between %q and %q", r.StartText, r.EndText)
	case variable.KindPattern:
		fmt.Fprintf(&b, "matching %s", r.Pattern)
	}
	if r.RightToLeft {
		b.WriteString(" (last match)")
	}
	if v.URL != "" {
		fmt.Fprintf(&b, " from %s", v.URL)
	}
	if v.PostData != "" {
		b.WriteString(" (POST)")
	}
	return b.String()
}
