package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wenzapen/browse/cmd/check"
	"github.com/wenzapen/browse/cmd/run"
	"github.com/wenzapen/browse/engine"
	"github.com/wenzapen/browse/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version",
	Long:  "print version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version.Printer(cmd.OutOrStdout())
	},
}

// helpCmd describes script capabilities; command names fall back to cobra's usage.
var helpCmd = &cobra.Command{
	Use:   "help [capability|command]",
	Short: "describe a script capability or a command",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		if len(args) == 1 {
			if c, _, err := root.Find(args); err == nil && c != root {
				return c.Help()
			}
		}
		// browsers launch on the first visit, so none is started here
		e := engine.NewEngine()
		defer e.Close()
		key := ""
		if len(args) == 1 {
			key = args[0]
		}
		fmt.Fprintln(cmd.OutOrStdout(), e.Help(e.NewBrowserScope(e.Root()), key))
		return nil
	},
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "browse",
		Short:         "browser driven data extraction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(run.RunCmd, check.CheckCmd, versionCmd)
	rootCmd.SetHelpCommand(helpCmd)
	return rootCmd
}

func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "browse:", err)
		os.Exit(1)
	}
}
