package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage private sessions between the human and an agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <human> <agent>",
	Short: "Open (or return) the private session for a pair",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionStart,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a private session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionEnd,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a private session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close every expired private session",
	Args:  cobra.NoArgs,
	RunE:  runSessionSweep,
}

func init() {
	sessionStartCmd.Flags().String("channel", "", "session channel (defaults to config)")
	sessionStartCmd.Flags().Int("timeout", -1, "idle timeout in minutes (defaults to config)")
	sessionEndCmd.Flags().String("by", string(models.EndedByHuman), "who ended the session (human, timeout, system)")

	sessionCmd.AddCommand(sessionStartCmd, sessionEndCmd, sessionShowCmd, sessionSweepCmd)
	rootCmd.AddCommand(sessionCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	channel, _ := cmd.Flags().GetString("channel")
	req := crew.StartSessionRequest{Channel: channel}
	if cmd.Flags().Changed("timeout") {
		timeout, _ := cmd.Flags().GetInt("timeout")
		req.TimeoutMinutes = &timeout
	}
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		human, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		agent, err := resolveAgent(ctx, svc, args[1])
		if err != nil {
			return err
		}
		req.HumanID, req.AgentID = human.ID, agent.ID
		sess, err := svc.StartPrivateSession(ctx, req)
		if err != nil {
			return err
		}
		return printSession(cmd, sess)
	})
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	by, _ := cmd.Flags().GetString("by")
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		res, err := svc.EndPrivateSession(ctx, args[0], models.SessionEnder(by))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		if res.AlreadyEnded {
			warnColor.Fprintf(cmd.OutOrStdout(), "Session %s was already ended\n", res.SessionID)
			return nil
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Ended session %s\n", res.SessionID)
		return nil
	})
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		sess, err := svc.GetPrivateSession(ctx, args[0])
		if err != nil {
			return err
		}
		return printSession(cmd, sess)
	})
}

func runSessionSweep(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		n, err := svc.CleanupExpiredSessions(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]int{"closed": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Closed %d expired session(s)\n", n)
		return nil
	})
}

func printSession(cmd *cobra.Command, sess *models.PrivateSession) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), sess)
	}
	w := cmd.OutOrStdout()
	headColor.Fprintf(w, "Session %s\n", sess.ID)
	fmt.Fprintf(w, "  channel:  %s\n", sess.Channel)
	fmt.Fprint(w, "  state:    ")
	if sess.Active {
		okColor.Fprintln(w, "active")
	} else {
		warnColor.Fprintf(w, "ended (%s)\n", sess.EndedBy)
	}
	fmt.Fprintf(w, "  messages: %d\n", sess.MessageCount)
	fmt.Fprintf(w, "  expires:  %s\n", sess.ExpiresAt.Format(time.RFC3339))
	return nil
}
