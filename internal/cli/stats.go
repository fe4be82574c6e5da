package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenlimit/warden/internal/stats"
)

func newStatsCmd() *cobra.Command {
	var (
		serverURL  string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)

			var snap stats.Snapshot
			if err := client.get("/api/v1/stats", &snap); err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total requests:   %d\n", snap.TotalRequests)
			fmt.Fprintf(out, "allowed:          %d\n", snap.Allowed)
			fmt.Fprintf(out, "blocked:          %d\n", snap.Blocked)
			fmt.Fprintf(out, "avg processing:   %s\n", time.Duration(snap.AvgProcessingNs))
			fmt.Fprintf(out, "active rules:     %d\n", snap.ActiveRules)
			fmt.Fprintf(out, "cached limiters:  %d\n", snap.CachedLimiters)
			fmt.Fprintf(out, "block entries:    %d\n", snap.BlockEntries)
			fmt.Fprintf(out, "memory estimate:  %d bytes\n", snap.MemoryBytes)
			if !snap.LastCleanup.IsZero() {
				fmt.Fprintf(out, "last cleanup:     %s\n", snap.LastCleanup.Format(time.RFC3339))
			}
			if len(snap.PerScope) > 0 {
				fmt.Fprintln(out, "\nper scope:")
				for scope, counts := range snap.PerScope {
					fmt.Fprintf(out, "  %-12s total=%d allowed=%d blocked=%d\n",
						scope, counts.Total, counts.Allowed, counts.Blocked)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output the snapshot as JSON")
	return cmd
}
