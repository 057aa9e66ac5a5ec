package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Crew Boss trust and autonomy",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var trustSetCmd = &cobra.Command{
	Use:   "set <right-hand|human> <score>",
	Short: "Set the Crew Boss trust score (1-10)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTrustSet,
}

var trustShowCmd = &cobra.Command{
	Use:   "show <right-hand>",
	Short: "Show the autonomy level derived from trust",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustShow,
}

var burnoutCmd = &cobra.Command{
	Use:   "burnout",
	Short: "Human burnout score",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var burnoutSetCmd = &cobra.Command{
	Use:   "set <human> <score>",
	Short: "Set the human's burnout score (1-10)",
	Args:  cobra.ExactArgs(2),
	RunE:  runBurnoutSet,
}

var deliverCheckCmd = &cobra.Command{
	Use:   "deliver-check <human>",
	Short: "Ask the timing gate whether a message would reach the human now",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeliverCheck,
}

func init() {
	deliverCheckCmd.Flags().String("priority", string(models.PriorityNormal), "message priority")
	deliverCheckCmd.Flags().Bool("apply", false, "deliver every queued message the gate lets through")

	trustCmd.AddCommand(trustSetCmd, trustShowCmd)
	burnoutCmd.AddCommand(burnoutSetCmd)
	rootCmd.AddCommand(trustCmd, burnoutCmd, deliverCheckCmd)
}

func parseScore(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("score must be an integer, got %q", s)
	}
	return n, nil
}

func runTrustSet(cmd *cobra.Command, args []string) error {
	score, err := parseScore(args[1])
	if err != nil {
		return err
	}
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		a, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		if err := svc.UpdateTrustScore(ctx, a.ID, score); err != nil {
			return err
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Trust score set to %d\n", score)
		return nil
	})
}

func runTrustShow(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		a, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		level, err := svc.GetAutonomyLevel(ctx, a.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), level)
		}
		w := cmd.OutOrStdout()
		headColor.Fprintf(w, "%s: trust %d (%s)\n", level.RightHand, level.TrustScore, level.Level)
		fmt.Fprintf(w, "  %s\n", level.Description)
		fmt.Fprintf(w, "  decisions: %d, overrides: %d, accuracy: %.1f%%\n",
			level.TotalDecisions, level.Overrides, level.AccuracyPct)
		if level.Recommendation != "" {
			warnColor.Fprintf(w, "  %s\n", level.Recommendation)
		}
		return nil
	})
}

func runBurnoutSet(cmd *cobra.Command, args []string) error {
	score, err := parseScore(args[1])
	if err != nil {
		return err
	}
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		a, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		if err := svc.UpdateBurnoutScore(ctx, a.ID, score); err != nil {
			return err
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Burnout score set to %d\n", score)
		return nil
	})
}

func runDeliverCheck(cmd *cobra.Command, args []string) error {
	priority, _ := cmd.Flags().GetString("priority")
	apply, _ := cmd.Flags().GetBool("apply")
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		human, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		if apply {
			report, err := svc.DeliverPending(ctx, human.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d, deferred %d\n", len(report.Delivered), len(report.Deferred))
			return nil
		}

		d, err := svc.ShouldDeliverNow(ctx, human.ID, models.Priority(priority))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), d)
		}
		w := cmd.OutOrStdout()
		if d.Deliver {
			okColor.Fprint(w, "DELIVER")
		} else {
			warnColor.Fprint(w, "DEFER")
		}
		fmt.Fprintf(w, " %s", d.Reason)
		if d.DelayUntil != nil {
			fmt.Fprintf(w, " (until %s)", d.DelayUntil.Format(time.RFC3339))
		}
		fmt.Fprintln(w)
		return nil
	})
}
