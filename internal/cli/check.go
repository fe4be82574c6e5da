package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenlimit/warden/internal/engine"
)

func newCheckCmd() *cobra.Command {
	var (
		serverURL  string
		userID     string
		sourceIP   string
		sessionID  string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "check <identifier>",
		Short: "Ask a running server for an admission decision",
		Example: `  warden check 203.0.113.7 --source-ip 203.0.113.7
  warden check alice --user-id alice --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)

			var decision engine.Decision
			err := client.post("/api/v1/check", map[string]string{
				"identifier": args[0],
				"user_id":    userID,
				"source_ip":  sourceIP,
				"session_id": sessionID,
			}, &decision)
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(decision)
			}

			out := cmd.OutOrStdout()
			if decision.Allowed {
				fmt.Fprintf(out, "ALLOW  remaining=%d", decision.Remaining)
				if decision.RuleID != "" {
					fmt.Fprintf(out, " rule=%s", decision.RuleID)
				}
				fmt.Fprintln(out)
				return nil
			}

			fmt.Fprintf(out, "DENY   reason=%s", decision.Reason)
			if decision.RuleID != "" {
				fmt.Fprintf(out, " rule=%s", decision.RuleID)
			}
			if decision.UnblockTime != nil {
				fmt.Fprintf(out, " unblock_at=%s", decision.UnblockTime.Format(time.RFC3339))
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	cmd.Flags().StringVar(&userID, "user-id", "", "user ID for scope matching")
	cmd.Flags().StringVar(&sourceIP, "source-ip", "", "source IP for scope matching")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session ID for scope matching")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output the decision as JSON")

	return cmd
}
