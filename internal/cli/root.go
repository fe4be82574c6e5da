package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root warden command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Admission control for authentication surfaces",
		Long: `Warden rate-limits an authentication surface with priority-ordered rules,
load-adaptive throttling, and temporary blocks. Run the server, then manage
rules and blocks or inspect decisions with the client commands.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServerCmd(),
		newSimulateCmd(),
		newCheckCmd(),
		newRulesCmd(),
		newBlockCmd(),
		newUnblockCmd(),
		newBlockedCmd(),
		newStatsCmd(),
		newInitConfigCmd(),
	)

	return root
}
