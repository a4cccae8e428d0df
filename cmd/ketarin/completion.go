package main

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for ketarin.

Bash:
  $ source <(ketarin completion bash)
  $ ketarin completion bash > /etc/bash_completion.d/ketarin

Zsh:
  $ ketarin completion zsh > "${fpath[1]}/_ketarin"

Fish:
  $ ketarin completion fish > ~/.config/fish/completions/ketarin.fish

PowerShell:
  PS> ketarin completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(w, true)
		case "zsh":
			return rootCmd.GenZshCompletion(w)
		case "fish":
			return rootCmd.GenFishCompletion(w, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(w)
		}
	},
}

// jobNameCompletion completes job names from the configured jobs file.
func jobNameCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	a, err := loadApp()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(a.jobs.Jobs))
	for _, j := range a.jobs.Jobs {
		names = append(names, j.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	for _, cmd := range []*cobra.Command{installCmd, checkCmd} {
		cmd.ValidArgsFunction = jobNameCompletion
	}
	rootCmd.AddCommand(completionCmd)
}
