package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenlimit/warden/internal/clock"
	"github.com/wardenlimit/warden/internal/engine"
	"github.com/wardenlimit/warden/internal/limiter"
	"github.com/wardenlimit/warden/internal/rule"
)

func newSimulateCmd() *cobra.Command {
	var (
		algorithm     string
		maxRequests   int
		window        time.Duration
		burst         int
		blockDuration time.Duration
		systemLoad    float64
		adaptive      bool
		loadThreshold float64
		requests      int
		identifiers   []string
		fastForward   time.Duration
		outputJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run admission scenarios against a virtual clock",
		Long: `Runs admission checks against an in-process engine on a virtual clock,
so limits spanning minutes or hours verify in milliseconds.

The simulation sends a batch of requests per identifier, optionally
fast-forwards time, then sends a second batch to show how limits and
blocks recover.`,
		Example: `  warden simulate --requests 8 --max 5 --window 1m
  warden simulate --algorithm token_bucket --max 10 --burst 20 --window 1m
  warden simulate --max 5 --window 1m --block-duration 15m --fast-forward 20m
  warden simulate --adaptive --load 0.95 --load-threshold 0.7 --max 5 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(identifiers) == 0 {
				identifiers = []string{"203.0.113.7"}
			}

			algo := limiter.Algorithm(algorithm)
			if !algo.Valid() {
				return fmt.Errorf("unknown algorithm %q", algorithm)
			}

			vc := clock.NewVirtualClock(time.Now().Truncate(time.Second))
			eng := engine.New(engine.Options{
				Clock:  vc,
				Logger: slog.New(slog.DiscardHandler),
				Rules:  rule.NewEmptyStore(vc),
			})
			eng.LoadSource().Set(systemLoad)

			err := eng.AddRule(&rule.Rule{
				ID:       "simulated",
				Name:     "simulated",
				Priority: 1,
				Active:   true,
				Config: rule.Config{
					Algorithm:     algo,
					Scope:         rule.ScopePerIP,
					MaxRequests:   maxRequests,
					Window:        window,
					Burst:         burst,
					BlockDuration: blockDuration,
					Adaptive:      adaptive,
					LoadThreshold: loadThreshold,
				},
			})
			if err != nil {
				return err
			}

			result := runSimulation(vc, eng, identifiers, requests, fastForward)
			result.Algorithm = algorithm
			result.MaxRequests = maxRequests
			result.Window = window.String()
			if fastForward > 0 {
				result.FastForward = fastForward.String()
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printSimulation(cmd, &result)
			return nil
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "sliding_window", "admission algorithm (token_bucket, sliding_window, fixed_window)")
	cmd.Flags().IntVar(&maxRequests, "max", 5, "requests allowed per window")
	cmd.Flags().DurationVar(&window, "window", time.Minute, "window duration")
	cmd.Flags().IntVar(&burst, "burst", 0, "max burst (token_bucket only, 0 = max)")
	cmd.Flags().DurationVar(&blockDuration, "block-duration", 0, "block duration applied on denial")
	cmd.Flags().Float64Var(&systemLoad, "load", 0, "injected system load (0..1)")
	cmd.Flags().BoolVar(&adaptive, "adaptive", false, "enable the adaptive throttle gate")
	cmd.Flags().Float64Var(&loadThreshold, "load-threshold", 0.8, "adaptive gate load threshold")
	cmd.Flags().IntVar(&requests, "requests", 8, "requests per identifier per batch")
	cmd.Flags().StringSliceVar(&identifiers, "identifiers", nil, "identifiers to simulate")
	cmd.Flags().DurationVar(&fastForward, "fast-forward", 0, "virtual time to skip between batches")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

// SimulationResult captures the full output of a simulate run.
type SimulationResult struct {
	Algorithm   string             `json:"algorithm"`
	MaxRequests int                `json:"max_requests"`
	Window      string             `json:"window"`
	FastForward string             `json:"fast_forward,omitempty"`
	Batches     []BatchResult      `json:"batches"`
	Summary     map[string]Summary `json:"summary"`
}

// BatchResult holds the decisions of one batch.
type BatchResult struct {
	Label     string           `json:"label"`
	Time      string           `json:"time"`
	Decisions []DecisionRecord `json:"decisions"`
}

// DecisionRecord pairs an identifier with its decision.
type DecisionRecord struct {
	Identifier string          `json:"identifier"`
	Decision   engine.Decision `json:"decision"`
}

// Summary aggregates per-identifier outcomes across all batches.
type Summary struct {
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
	Blocked int `json:"blocked"`
}

func runSimulation(vc *clock.VirtualClock, eng *engine.Engine, identifiers []string, requests int, fastForward time.Duration) SimulationResult {
	result := SimulationResult{Summary: make(map[string]Summary)}

	runBatch := func(label string) {
		batch := BatchResult{
			Label: label,
			Time:  vc.Now().Format(time.RFC3339),
		}
		for _, id := range identifiers {
			for i := 0; i < requests; i++ {
				d := eng.Check(context.Background(), id, rule.RequestContext{SourceIP: id})
				batch.Decisions = append(batch.Decisions, DecisionRecord{Identifier: id, Decision: d})

				s := result.Summary[id]
				switch {
				case d.Allowed:
					s.Allowed++
				case d.Reason == engine.ReasonBlocked:
					s.Blocked++
				default:
					s.Denied++
				}
				result.Summary[id] = s
			}
		}
		result.Batches = append(result.Batches, batch)
	}

	runBatch("initial")
	if fastForward > 0 {
		vc.Advance(fastForward)
		runBatch(fmt.Sprintf("after %s", fastForward))
	}
	return result
}

func printSimulation(cmd *cobra.Command, result *SimulationResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "algorithm=%s max=%d window=%s\n\n", result.Algorithm, result.MaxRequests, result.Window)

	for _, batch := range result.Batches {
		fmt.Fprintf(out, "batch %q at %s\n", batch.Label, batch.Time)
		for _, rec := range batch.Decisions {
			verdict := "ALLOW"
			if !rec.Decision.Allowed {
				verdict = "DENY"
				if rec.Decision.Reason != "" {
					verdict = "DENY(" + rec.Decision.Reason + ")"
				}
			}
			fmt.Fprintf(out, "  %-20s %-28s remaining=%d\n", rec.Identifier, verdict, rec.Decision.Remaining)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "summary:")
	for id, s := range result.Summary {
		fmt.Fprintf(out, "  %-20s allowed=%d denied=%d blocked=%d\n", id, s.Allowed, s.Denied, s.Blocked)
	}
}
