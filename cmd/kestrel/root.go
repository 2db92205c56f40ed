package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// options are the flags shared by every command.
type options struct {
	configPath string
	profile    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "kestrel",
		Short: "AML policy escalation trigger engine",
		Long: `Kestrel evaluates flagged cases against a configurable escalation policy:
critical triggers escalate on their own, regular triggers escalate once at
least N of them are met. With no subcommand it runs the API server.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.profile, "profile", "default", "base configuration profile (default|cluster)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newPolicyCmd(opts))
	root.AddCommand(newEvaluateCmd(opts))
	root.AddCommand(newBacktestCmd(opts))
	return root
}
