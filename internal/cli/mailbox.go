package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

var mailboxCmd = &cobra.Command{
	Use:   "mailbox",
	Short: "Team mailboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var mailboxSendCmd = &cobra.Command{
	Use:   "send <from>",
	Short: "Drop an entry in the sender's team mailbox",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailboxSend,
}

var mailboxListCmd = &cobra.Command{
	Use:   "list <manager>",
	Short: "List a team mailbox",
	Args:  cobra.ExactArgs(1),
	RunE:  runMailboxList,
}

func init() {
	f := mailboxSendCmd.Flags()
	f.String("subject", "", "entry subject")
	f.String("body", "", "entry body")
	f.String("severity", string(models.SeverityInfo), "severity (info, warning, code_red)")
	_ = mailboxSendCmd.MarkFlagRequired("subject")

	mailboxListCmd.Flags().Bool("unread", false, "only unread entries")
	mailboxListCmd.Flags().Int("limit", 50, "maximum entries")

	mailboxCmd.AddCommand(mailboxSendCmd, mailboxListCmd)
	rootCmd.AddCommand(mailboxCmd)
}

func runMailboxSend(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	subject, _ := f.GetString("subject")
	body, _ := f.GetString("body")
	severity, _ := f.GetString("severity")
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		from, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		entry, err := svc.SendToTeamMailbox(ctx, crew.MailboxRequest{
			FromAgentID: from.ID,
			Subject:     subject,
			Body:        body,
			Severity:    models.MailboxSeverity(severity),
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		okColor.Fprintf(cmd.OutOrStdout(), "Posted %s to team %s\n", entry.ID, entry.TeamID)
		return nil
	})
}

func runMailboxList(cmd *cobra.Command, args []string) error {
	unread, _ := cmd.Flags().GetBool("unread")
	limit, _ := cmd.Flags().GetInt("limit")
	return withService(cmd, func(ctx context.Context, svc *crew.Service) error {
		team, err := resolveAgent(ctx, svc, args[0])
		if err != nil {
			return err
		}
		entries, err := svc.GetTeamMailbox(ctx, team.ID, unread, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Mailbox is empty.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		headColor.Fprintln(tw, "SEVERITY\tFROM\tREAD\tSUBJECT\tID")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", e.Severity, e.FromAgentName, e.Read, e.Subject, e.ID)
		}
		return tw.Flush()
	})
}
