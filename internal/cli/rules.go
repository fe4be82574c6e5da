package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenlimit/warden/internal/config"
	"github.com/wardenlimit/warden/internal/rule"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage rules on a running server",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesAddCmd(), newRulesRemoveCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	var (
		serverURL  string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)

			var rules []rule.Rule
			if err := client.get("/api/v1/rules", &rules); err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rules)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-24s %8s %-16s %-10s %6s %-10s\n",
				"ID", "NAME", "PRIORITY", "ALGORITHM", "SCOPE", "MAX", "WINDOW")
			for _, r := range rules {
				fmt.Fprintf(out, "%-20s %-24s %8d %-16s %-10s %6d %-10s\n",
					r.ID, r.Name, r.Priority, r.Config.Algorithm, r.Config.Scope,
					r.Config.MaxRequests, r.Config.Window)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output rules as JSON")
	return cmd
}

func newRulesAddCmd() *cobra.Command {
	var (
		serverURL string
		spec      config.RuleSpec
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a rule",
		Example: `  warden rules add login-burst --algorithm token_bucket --scope per_ip \
    --max 20 --window 1m --burst 40 --priority 50 --block-duration 10m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Name = args[0]
			client := newAPIClient(serverURL)

			var created rule.Rule
			if err := client.post("/api/v1/rules", spec, &created); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added rule %s (id %s)\n", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	cmd.Flags().StringVar(&spec.ID, "id", "", "rule ID (generated when empty)")
	cmd.Flags().StringVar(&spec.Description, "description", "", "rule description")
	cmd.Flags().IntVar(&spec.Priority, "priority", 0, "rule priority (higher wins)")
	cmd.Flags().StringVar(&spec.Algorithm, "algorithm", "sliding_window", "admission algorithm")
	cmd.Flags().StringVar(&spec.Scope, "scope", "per_ip", "rule scope (global, per_user, per_ip, per_session)")
	cmd.Flags().IntVar(&spec.MaxRequests, "max", 0, "requests allowed per window")
	cmd.Flags().StringVar(&spec.Window, "window", "1m", "window duration")
	cmd.Flags().IntVar(&spec.Burst, "burst", 0, "max burst (token_bucket only)")
	cmd.Flags().StringVar(&spec.BlockDuration, "block-duration", "", "block duration applied on denial")
	cmd.Flags().BoolVar(&spec.Adaptive, "adaptive", false, "enable the adaptive throttle gate")
	cmd.Flags().Float64Var(&spec.LoadThreshold, "load-threshold", 0, "adaptive gate load threshold")

	return cmd
}

func newRulesRemoveCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a rule and discard its limiter state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)
			if err := client.delete("/api/v1/rules/" + args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed rule %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	return cmd
}
