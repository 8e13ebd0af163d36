package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gdp-network/gdpnet/internal/app/eligibility"
	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/dberror"
)

func init() {
	rootCmd.AddCommand(tiersCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(claimsCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(balanceCmd)

	evaluateCmd.Flags().Bool("json", false, "Print the report as JSON")
}

// ─── tiers ──────────────────────────────────────────────────────────────────

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show the reward tier table",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		stdout("%-6s  %-26s  %-34s  %s\n", "TIER", "THRESHOLDS", "WEIGHTS", "DIRECT")
		for _, t := range domain.Tiers() {
			stdout("%-6s  %-26s  %-34s  %d\n", t.ID, joinInts(t.Thresholds), joinFloats(t.Weights), t.DirectOnly)
		}
	},
}

// ─── evaluate ───────────────────────────────────────────────────────────────

var evaluateCmd = &cobra.Command{
	Use:   "evaluate USER_ID",
	Short: "Show a member's progress toward every tier",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	report, err := d.Engine.Report(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	flags, err := d.Claims.Flags(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(output)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(report, flags)
	return nil
}

func printReport(r *eligibility.Report, flags domain.ClaimFlags) {
	stdout("User %s  (reference price %g, %d descendants)\n", r.UserID, r.ReferencePrice, r.Descendants)
	stdout("Qualifying per generation: %s\n\n", joinInts(r.Counts[:]))
	for _, ev := range r.Tiers {
		state := domain.StateUnclaimed.Label()
		if flags.Has(ev.TierID) {
			state = domain.StateClaimed.Label()
		}
		line := fmt.Sprintf("  %-6s %7.2f%%  %-9s", ev.TierID, ev.ProgressPercent, state)
		if ev.Eligible {
			line += "  eligible"
		} else if ev.Explanation != nil {
			line += "  " + ev.Explanation.String()
		}
		stdout("%s\n", line)
	}
}

// ─── claim ──────────────────────────────────────────────────────────────────

var claimCmd = &cobra.Command{
	Use:   "claim USER_ID TIER",
	Short: "Claim a reward tier for a member",
	Long: `Claim a reward tier. Eligibility is re-checked on a fresh snapshot.
Claiming a tier that is already settled is not an error.`,
	Args: cobra.ExactArgs(2),
	RunE: runClaim,
}

type claimOutcome struct {
	rec     *domain.ClaimRecord
	settled bool
}

func runClaim(cmd *cobra.Command, args []string) error {
	tierID, err := domain.ParseTierID(args[1])
	if err != nil {
		return err
	}
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	out, err := dberror.Retry(cmd.Context(), dberror.DefaultRetryConfig(), func() (claimOutcome, error) {
		rec, err := d.Claims.Claim(cmd.Context(), args[0], tierID)
		if domain.IsSettled(err) {
			return claimOutcome{rec: rec, settled: true}, nil
		}
		return claimOutcome{rec: rec}, err
	})
	if err != nil {
		return err
	}

	if out.settled {
		stdout("Tier %s already claimed by %s at %s.\n", tierID, args[0], out.rec.ClaimedAt.Format("2006-01-02 15:04:05"))
		return nil
	}
	stdout("✅ Claimed tier %s for %s\n", tierID, args[0])
	stdout("   Claim:  %s\n", out.rec.ID)
	stdout("   Amount: %s\n", out.rec.Amount.StringFixed(2))
	return nil
}

// ─── claims ─────────────────────────────────────────────────────────────────

var claimsCmd = &cobra.Command{
	Use:   "claims USER_ID",
	Short: "List a member's claimed tiers",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaims,
}

func runClaims(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	recs, err := d.Claims.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		stdout("No claims for %s.\n", args[0])
		return nil
	}
	for _, r := range recs {
		stdout("  %-6s  %s  %12s  %s\n", r.TierID, r.ClaimedAt.Format("2006-01-02 15:04:05"), r.Amount.StringFixed(2), r.ID)
	}
	return nil
}

// ─── reconcile ──────────────────────────────────────────────────────────────

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Credit settled claims that have no ledger entry",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.Reconciler.Once(cmd.Context())
	if err != nil {
		return err
	}
	stdout("Pending: %d  Credited: %d  Failed: %d\n", res.Pending, res.Credited, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d credits failed", res.Failed)
	}
	return nil
}

// ─── balance ────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance USER_ID",
	Short: "Show a member's credited reward balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		bal, err := d.Store.Balance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		stdout("%s\n", bal.StringFixed(2))
		return nil
	},
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, " / ")
}

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return strings.Join(parts, " / ")
}
