package check

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wenzapen/browse/script"
)

var CheckCmd = &cobra.Command{
	Use:   "check <script>",
	Short: "validate a crawl script",
	Long:  "validate a crawl script's rules and url patterns without starting a browser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := script.Load(args[0])
		if err != nil {
			return err
		}
		if err := sc.Check(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d rules, %d nested browsers\n",
			args[0], len(sc.Pages), len(sc.Rules), len(sc.Browsers))
		return nil
	},
}
