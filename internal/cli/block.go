package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenlimit/warden/internal/store"
)

func newBlockCmd() *cobra.Command {
	var (
		serverURL string
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:     "block <identifier>",
		Short:   "Block an identifier for a duration",
		Example: `  warden block 203.0.113.7 --duration 1h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)

			var resp struct {
				Identifier string    `json:"identifier"`
				UnblockAt  time.Time `json:"unblock_at"`
			}
			err := client.post("/api/v1/blocked", map[string]string{
				"identifier": args[0],
				"duration":   duration.String(),
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %s until %s\n",
				resp.Identifier, resp.UnblockAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	cmd.Flags().DurationVar(&duration, "duration", 15*time.Minute, "how long to block")
	return cmd
}

func newUnblockCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "unblock <identifier>",
		Short: "Remove a block before it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)
			if err := client.delete("/api/v1/blocked/" + args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	return cmd
}

func newBlockedCmd() *cobra.Command {
	var (
		serverURL  string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "List currently blocked identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(serverURL)

			var entries []store.Entry
			if err := client.get("/api/v1/blocked", &entries); err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no blocked identifiers")
				return nil
			}
			fmt.Fprintf(out, "%-32s %s\n", "IDENTIFIER", "UNBLOCK AT")
			for _, e := range entries {
				fmt.Fprintf(out, "%-32s %s\n", e.Identifier, e.UnblockAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "warden server URL")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output entries as JSON")
	return cmd
}
